package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TxnType is the direction of a transaction.
type TxnType string

const (
	TxnDebit  TxnType = "Debit"
	TxnCredit TxnType = "Credit"
)

// Categories is the closed set of ledger categories.
var Categories = []string{
	"Food",
	"Shopping",
	"Rent",
	"Salary",
	"Utilities",
	"Entertainment",
	"Travel",
	"Others",
}

// CategoryOther is used when a source category does not map onto Categories.
const CategoryOther = "Others"

// Transaction represents one ledger entry as it is embedded and returned by search.
// Date is kept as the raw "YYYY-MM-DD" string; it is only split when a month
// filter is applied, so malformed dates survive loading.
type Transaction struct {
	ID          string  `json:"id" validate:"required"`
	UserID      string  `json:"userId" validate:"required"`
	Date        string  `json:"date" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Amount      float64 `json:"amount" validate:"gte=0"`
	Type        TxnType `json:"type" validate:"oneof=Debit Credit"`
	Category    string  `json:"category" validate:"oneof=Food Shopping Rent Salary Utilities Entertainment Travel Others"`
	Balance     float64 `json:"balance"`
}

// MonthSegment returns the second "-" separated component of Date.
// ok is false when the date has no such component.
func (t Transaction) MonthSegment() (month string, ok bool) {
	parts := strings.Split(t.Date, "-")
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// FormatAmount renders an amount in its shortest form: 1500, 1500.5.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// CanonicalText is the text the embedder sees for a transaction.
// The template is fixed; changing it changes every stored vector, so indexes
// built with a different template must be rebuilt.
//
//	"{type} of ₹{amount} on {date} for {description} under {category} category."
func CanonicalText(t Transaction) string {
	return fmt.Sprintf("%s of ₹%s on %s for %s under %s category.",
		t.Type, FormatAmount(t.Amount), t.Date, t.Description, t.Category)
}

// NormalizeCategory maps a free-form category name onto Categories,
// case-insensitively, falling back to CategoryOther.
func NormalizeCategory(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, c := range Categories {
		if strings.EqualFold(c, trimmed) {
			return c
		}
	}
	return CategoryOther
}

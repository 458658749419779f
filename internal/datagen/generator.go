// Package datagen produces synthetic transaction ledgers for demos and tests.
package datagen

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"strings"
	"time"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/recordstore"
)

// Generation parameters.
const (
	StartingBalance = 100000
	MinAmount       = 50
	MaxAmount       = 55000
	DebitWeight     = 0.7
	DateSpanDays    = 365
	wordsPerLine    = 4
)

// DefaultStart is the first day transactions may fall on.
var DefaultStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var words = []string{
	"grocery", "market", "online", "order", "monthly", "payment", "cafe", "dinner",
	"fuel", "station", "electricity", "bill", "mobile", "recharge", "flight", "ticket",
	"hotel", "booking", "movie", "night", "salary", "transfer", "refund", "store",
	"pharmacy", "rent", "apartment", "water", "internet", "subscription", "taxi", "ride",
	"bookshop", "gift", "clothing", "sale", "restaurant", "lunch", "weekend", "trip",
}

// Generate draws up to n transactions for userID. Debits that would take the
// running balance below zero are skipped, so fewer than n records may be
// returned; ids keep the attempt number ("txn_{user}_{i}"). Records come back
// in generation order, which is also balance order.
func Generate(userID string, n int, start time.Time, rng *rand.Rand) []domain.Transaction {
	balance := float64(StartingBalance)
	out := make([]domain.Transaction, 0, n)

	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, rng.Intn(DateSpanDays+1))
		amount := float64(MinAmount + rng.Intn(MaxAmount-MinAmount+1))
		txnType := domain.TxnCredit
		if rng.Float64() < DebitWeight {
			txnType = domain.TxnDebit
		}
		category := domain.Categories[rng.Intn(len(domain.Categories))]
		description := sentence(rng)

		if txnType == domain.TxnDebit {
			if balance-amount < 0 {
				continue
			}
			balance -= amount
		} else {
			balance += amount
		}

		out = append(out, domain.Transaction{
			ID:          fmt.Sprintf("txn_%s_%d", userID, i),
			UserID:      userID,
			Date:        date.Format(time.DateOnly),
			Description: description,
			Amount:      amount,
			Type:        txnType,
			Category:    category,
			Balance:     balance,
		})
	}
	return out
}

// GenerateUsers generates n attempts for each user and concatenates them.
func GenerateUsers(users []string, n int, start time.Time, rng *rand.Rand) []domain.Transaction {
	var out []domain.Transaction
	for _, u := range users {
		out = append(out, Generate(u, n, start, rng)...)
	}
	return out
}

// AppendToFile appends txns to the JSON ledger at path, creating it if needed.
// It returns the total number of records in the file.
func AppendToFile(path string, txns []domain.Transaction) (int, error) {
	existing, err := recordstore.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("AppendToFile: %w", err)
	}
	all := append(existing, txns...)
	if err := recordstore.WriteFile(path, all); err != nil {
		return 0, fmt.Errorf("AppendToFile: %w", err)
	}
	return len(all), nil
}

func sentence(rng *rand.Rand) string {
	parts := make([]string, wordsPerLine)
	for i := range parts {
		parts[i] = words[rng.Intn(len(words))]
	}
	parts[0] = strings.ToUpper(parts[0][:1]) + parts[0][1:]
	return strings.Join(parts, " ") + "."
}

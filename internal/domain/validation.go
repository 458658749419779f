package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	return validate
}

// ValidateTransaction checks that every required field is present and that
// type, category and amount are in range.
func ValidateTransaction(t Transaction) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("transaction %q: %s", t.ID, describeValidation(err))
	}
	return nil
}

// ValidateTransactions validates a whole ledger and rejects duplicate ids.
func ValidateTransactions(txns []Transaction) error {
	seen := make(map[string]int, len(txns))
	for i, t := range txns {
		if err := ValidateTransaction(t); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if prev, dup := seen[t.ID]; dup {
			return fmt.Errorf("record %d: duplicate id %q (first seen at record %d)", i, t.ID, prev)
		}
		seen[t.ID] = i
	}
	return nil
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}

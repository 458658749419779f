package search

import (
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-search/internal/domain"
)

// ParseMonth normalizes a month filter to two digits ("01".."12").
// It accepts a bare one or two digit number ("2", "02") or a value starting
// with a four digit year and "-", whose next segment is that number ("2024-02").
// An empty input means no filter and yields ("", nil).
func ParseMonth(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	if year, after, found := strings.Cut(s, "-"); found {
		if len(year) != 4 || !isDigits(year) {
			return "", fmt.Errorf("month %q: expected a four digit year before \"-\": %w", raw, domain.ErrInvalidArgument)
		}
		s, _, _ = strings.Cut(after, "-")
	}
	if len(s) < 1 || len(s) > 2 || !isDigits(s) {
		return "", fmt.Errorf("month %q: expected 1-2 digits or YYYY-MM: %w", raw, domain.ErrInvalidArgument)
	}
	if len(s) == 1 {
		s = "0" + s
	}
	if s < "01" || s > "12" {
		return "", fmt.Errorf("month %q: must be between 01 and 12: %w", raw, domain.ErrInvalidArgument)
	}
	return s, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package recordstore loads the transaction ledger and fixes each record's
// ordinal position for the lifetime of a build.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dvloznov/ledger-search/internal/domain"
)

// Store is an immutable, validated, ordered view of the ledger. Record i has
// ordinal i.
type Store struct {
	records []domain.Transaction
}

// New validates records and wraps them in a Store. The slice is copied.
func New(records []domain.Transaction) (*Store, error) {
	if err := domain.ValidateTransactions(records); err != nil {
		return nil, fmt.Errorf("recordstore.New: %w", err)
	}
	cp := make([]domain.Transaction, len(records))
	copy(cp, records)
	return &Store{records: cp}, nil
}

// Load reads every record from src and returns a validated Store.
func Load(ctx context.Context, src Source) (*Store, error) {
	records, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("recordstore.Load: %w", err)
	}
	return New(records)
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// At returns the record with ordinal i.
func (s *Store) At(i int) domain.Transaction { return s.records[i] }

// Records returns a copy of all records in ordinal order.
func (s *Store) Records() []domain.Transaction {
	out := make([]domain.Transaction, len(s.records))
	copy(out, s.records)
	return out
}

// DecodeJSON reads a JSON array of transactions. Unknown fields are rejected
// so that a schema drift is caught at load time.
func DecodeJSON(r io.Reader) ([]domain.Transaction, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var records []domain.Transaction
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("DecodeJSON: %w", err)
	}
	return records, nil
}

// ReadFile reads a JSON ledger from path.
func ReadFile(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	defer f.Close()
	return DecodeJSON(f)
}

// WriteFile writes records as an indented JSON array, replacing path
// atomically. Parent directories are created as needed.
func WriteFile(path string, records []domain.Transaction) error {
	if records == nil {
		records = []domain.Transaction{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteFile: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("WriteFile: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("WriteFile: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("WriteFile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("WriteFile: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("WriteFile: rename: %w", err)
	}
	return nil
}

package recordstore

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/gcs"
	infra "github.com/dvloznov/ledger-search/internal/infra/bigquery"
)

// Source yields the full ledger in generation order.
type Source interface {
	Load(ctx context.Context) ([]domain.Transaction, error)
	Close() error
}

// FileSource reads a JSON array from the local filesystem.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context) ([]domain.Transaction, error) {
	return ReadFile(s.Path)
}

// Close implements Source.
func (s *FileSource) Close() error { return nil }

// GCSSource reads a JSON array from a Cloud Storage object.
type GCSSource struct {
	URI   string
	Store gcs.ObjectStore

	owned bool
}

// Load implements Source.
func (s *GCSSource) Load(ctx context.Context) ([]domain.Transaction, error) {
	data, err := s.Store.Download(ctx, s.URI)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Load: %w", err)
	}
	return DecodeJSON(bytes.NewReader(data))
}

// Close implements Source. The object store is closed only when the source created it.
func (s *GCSSource) Close() error {
	if s.owned {
		return s.Store.Close()
	}
	return nil
}

// BigQuerySource reads the finance.transactions table.
type BigQuerySource struct {
	Reader infra.TransactionReader
}

// Load implements Source.
func (s *BigQuerySource) Load(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.Reader.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQuerySource.Load: %w", err)
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, RowToTransaction(row))
	}
	return out, nil
}

// Close implements Source.
func (s *BigQuerySource) Close() error { return s.Reader.Close() }

// RowToTransaction maps a signed BigQuery row onto a ledger record:
// non-negative amounts are credits, negative amounts are debits.
func RowToTransaction(row *infra.TransactionRow) domain.Transaction {
	amount := ratToFloat(row.Amount)
	txnType := domain.TxnCredit
	if amount < 0 {
		txnType = domain.TxnDebit
		amount = -amount
	}
	category := domain.CategoryOther
	if row.CategoryName.Valid {
		category = domain.NormalizeCategory(row.CategoryName.StringVal)
	}
	return domain.Transaction{
		ID:          row.TransactionID,
		UserID:      row.UserID,
		Date:        row.TransactionDate.String(),
		Description: strings.TrimSpace(row.RawDescription),
		Amount:      amount,
		Type:        txnType,
		Category:    category,
		Balance:     ratToFloat(row.BalanceAfter),
	}
}

func ratToFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}

// ParseBigQueryURI splits "bigquery://project/dataset/table".
func ParseBigQueryURI(uri string) (infra.TableRef, error) {
	rest, ok := strings.CutPrefix(uri, "bigquery://")
	if !ok {
		return infra.TableRef{}, fmt.Errorf("invalid BigQuery URI: %s", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return infra.TableRef{}, fmt.Errorf("invalid BigQuery URI (want project/dataset/table): %s", uri)
	}
	ref := infra.TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}
	if err := ref.Validate(); err != nil {
		return infra.TableRef{}, err
	}
	return ref, nil
}

// Open picks a Source by URI scheme: "gs://" objects, "bigquery://" tables,
// anything else is a local path. The caller must Close the source.
func Open(ctx context.Context, uri string) (Source, error) {
	switch {
	case gcs.IsURI(uri):
		store, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return &GCSSource{URI: uri, Store: store, owned: true}, nil
	case strings.HasPrefix(uri, "bigquery://"):
		ref, err := ParseBigQueryURI(uri)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		reader, err := infra.NewBigQueryTransactionReader(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return &BigQuerySource{Reader: reader}, nil
	case uri == "":
		return nil, fmt.Errorf("Open: empty transactions URI")
	default:
		return &FileSource{Path: uri}, nil
	}
}

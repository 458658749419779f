// Package bigquery reads the ledger from the finance.transactions table.
package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"regexp"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// TransactionRow is the subset of finance.transactions the search index uses.
type TransactionRow struct {
	TransactionID   string              `bigquery:"transaction_id"`
	UserID          string              `bigquery:"user_id"`
	TransactionDate civil.Date          `bigquery:"transaction_date"`
	RawDescription  string              `bigquery:"raw_description"`
	Amount          *big.Rat            `bigquery:"amount"`        // IN = positive, OUT = negative
	BalanceAfter    *big.Rat            `bigquery:"balance_after"` // NULLABLE
	CategoryName    bigquery.NullString `bigquery:"category_name"`
}

// TableRef names a BigQuery table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Validate rejects identifiers that cannot be safely interpolated into SQL.
func (r TableRef) Validate() error {
	for _, part := range []string{r.Project, r.Dataset, r.Table} {
		if !identPattern.MatchString(part) {
			return fmt.Errorf("invalid BigQuery identifier %q", part)
		}
	}
	return nil
}

// String returns project.dataset.table.
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.Project, r.Dataset, r.Table)
}

// TransactionReader lists ledger rows in generation order.
type TransactionReader interface {
	ListTransactions(ctx context.Context) ([]*TransactionRow, error)
	Close() error
}

// BigQueryTransactionReader is the concrete TransactionReader. It holds a
// shared BigQuery client.
type BigQueryTransactionReader struct {
	client *bigquery.Client
	table  TableRef
}

// NewBigQueryTransactionReader creates a reader for the given table.
func NewBigQueryTransactionReader(ctx context.Context, table TableRef) (*BigQueryTransactionReader, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("NewBigQueryTransactionReader: %w", err)
	}
	client, err := bigquery.NewClient(ctx, table.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryTransactionReader: creating client: %w", err)
	}
	return &BigQueryTransactionReader{client: client, table: table}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryTransactionReader) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListTransactions implements TransactionReader.
func (r *BigQueryTransactionReader) ListTransactions(ctx context.Context) ([]*TransactionRow, error) {
	return ListTransactionsWithClient(ctx, r.client, r.table)
}

// ListTransactionsWithClient reads every row of the table ordered so that each
// owner's running balance is consistent with row order.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, table TableRef) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			t.transaction_id,
			t.user_id,
			t.transaction_date,
			t.raw_description,
			t.amount,
			t.balance_after,
			t.category_name
		FROM `+"`%s`"+` t
		ORDER BY t.user_id, t.transaction_date, t.created_ts, t.transaction_id
	`, table.String()))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

var _ TransactionReader = (*BigQueryTransactionReader)(nil)

package datagen

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/recordstore"
)

func TestGenerate_Invariants(t *testing.T) {
	txns := Generate("user_1", 200, DefaultStart, rand.New(rand.NewSource(7)))
	require.NotEmpty(t, txns)
	assert.LessOrEqual(t, len(txns), 200)
	require.NoError(t, domain.ValidateTransactions(txns))

	end := DefaultStart.AddDate(0, 0, DateSpanDays)
	balance := float64(StartingBalance)
	for _, tx := range txns {
		assert.Equal(t, "user_1", tx.UserID)
		assert.True(t, strings.HasPrefix(tx.ID, "txn_user_1_"))
		assert.GreaterOrEqual(t, tx.Amount, float64(MinAmount))
		assert.LessOrEqual(t, tx.Amount, float64(MaxAmount))

		d, err := time.Parse(time.DateOnly, tx.Date)
		require.NoError(t, err)
		assert.False(t, d.Before(DefaultStart) || d.After(end), tx.Date)

		if tx.Type == domain.TxnDebit {
			balance -= tx.Amount
		} else {
			balance += tx.Amount
		}
		assert.Equal(t, balance, tx.Balance, "running balance for %s", tx.ID)
		assert.GreaterOrEqual(t, tx.Balance, 0.0)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate("user_2", 50, DefaultStart, rand.New(rand.NewSource(42)))
	b := Generate("user_2", 50, DefaultStart, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}

func TestGenerateUsers(t *testing.T) {
	txns := GenerateUsers([]string{"user_1", "user_2"}, 30, DefaultStart, rand.New(rand.NewSource(1)))
	require.NoError(t, domain.ValidateTransactions(txns), "ids must stay unique across users")

	users := map[string]int{}
	for _, tx := range txns {
		users[tx.UserID]++
	}
	assert.Len(t, users, 2)
}

func TestAppendToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "transactions.json")
	rng := rand.New(rand.NewSource(3))

	first := Generate("user_1", 10, DefaultStart, rng)
	total, err := AppendToFile(path, first)
	require.NoError(t, err)
	assert.Equal(t, len(first), total)

	second := Generate("user_2", 10, DefaultStart, rng)
	total, err = AppendToFile(path, second)
	require.NoError(t, err)
	assert.Equal(t, len(first)+len(second), total)

	got, err := recordstore.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), got)
}

package search

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-search/internal/datagen"
	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/embedding"
	"github.com/dvloznov/ledger-search/internal/indexer"
	"github.com/dvloznov/ledger-search/internal/snapshot"
	"github.com/dvloznov/ledger-search/internal/vectorindex"
)

const testDim = 128

// fixtureRecords is the fixed 200-record ledger used across tests.
func fixtureRecords(t *testing.T) []domain.Transaction {
	t.Helper()
	all := datagen.GenerateUsers([]string{"user_1", "user_2", "user_3", "user_4"}, 150,
		datagen.DefaultStart, rand.New(rand.NewSource(2024)))
	require.GreaterOrEqual(t, len(all), 200)
	return all[:200]
}

func buildSnapshot(t *testing.T, records []domain.Transaction) *snapshot.Snapshot {
	t.Helper()
	cache := embedding.NewCache(embedding.NewHashEmbedder(testDim))
	vecs, err := indexer.EmbedRecords(context.Background(), cache, records)
	require.NoError(t, err)
	idx, err := vectorindex.New(testDim)
	require.NoError(t, err)
	require.NoError(t, idx.Add(vecs...))
	snap, err := snapshot.New(idx, records, "test")
	require.NoError(t, err)
	return snap
}

func newTestPipeline(t *testing.T, records []domain.Transaction) *Pipeline {
	t.Helper()
	holder := snapshot.NewHolder(buildSnapshot(t, records))
	return NewPipeline(holder, embedding.NewHashEmbedder(testDim), zerolog.Nop())
}

func request(query string, mutate func(*Request)) Request {
	r := NewRequest(query)
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"2", "02", false},
		{"02", "02", false},
		{"12", "12", false},
		{" 8 ", "08", false},
		{"2024-02", "02", false},
		{"2024-2", "02", false},
		{"2024-11-05", "11", false},
		{"13", "", true},
		{"0", "", true},
		{"00", "", true},
		{"2024-13", "", true},
		{"2024-", "", true},
		{"123", "", true},
		{"aug", "", true},
		{"2024-0x", "", true},
		{"-5", "", true},
		{"x-08", "", true},
		{"24-08", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonth(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_TopExpensesRerankedByAmount(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))

	resp, err := p.Search(context.Background(), request("Top 5 expenses in August for user_1", func(r *Request) {
		r.UserID = "user_1"
		r.Month = "8"
	}))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.LessOrEqual(t, resp.Count, 5)

	for i := 1; i < len(resp.Results); i++ {
		assert.Greater(t, resp.Results[i-1].Amount, resp.Results[i].Amount,
			"results must be strictly descending by amount")
	}
	for _, r := range resp.Results {
		assert.Equal(t, "user_1", r.UserID)
		m, _ := r.MonthSegment()
		assert.Equal(t, "08", m)
	}
}

func TestSearch_RerankKeepsLargestSurvivors(t *testing.T) {
	records := fixtureRecords(t)
	p := newTestPipeline(t, records)

	// initial_fetch covers the whole index, so the top amounts overall must win
	resp, err := p.Search(context.Background(), request("top spending", func(r *Request) {
		r.UserID = "user_2"
		r.TopK = 3
	}))
	require.NoError(t, err)

	var largest float64
	for _, rec := range records {
		if rec.UserID == "user_2" && rec.Amount > largest {
			largest = rec.Amount
		}
	}
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, largest, resp.Results[0].Amount)
}

func TestSearch_WithoutTriggerKeepsSimilarityOrder(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))

	resp, err := p.Search(context.Background(), request("restaurant dinner under Food category", func(r *Request) {
		r.TopK = 20
	}))
	require.NoError(t, err)
	require.Len(t, resp.Results, 20)
	assert.Equal(t, 200, resp.TotalBeforeLimit)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))
	req := request("salary credit", func(r *Request) { r.Month = "2024-03"; r.TopK = 10 })

	a, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	b, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSearch_MonthFormsAreEquivalent(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))

	var results [][]Result
	var totals []int
	for _, m := range []string{"2", "02", "2024-02"} {
		resp, err := p.Search(context.Background(), request("groceries", func(r *Request) { r.Month = m; r.TopK = 50 }))
		require.NoError(t, err)
		results = append(results, resp.Results)
		totals = append(totals, resp.TotalBeforeLimit)

		require.NotNil(t, resp.Month)
		assert.Equal(t, m, *resp.Month, "month is echoed as given")
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
	assert.Equal(t, totals[0], totals[2])
	assert.Positive(t, totals[0])
}

func TestSearch_FilterCorrectnessAndTruncation(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))

	reqs := []Request{
		request("rent", func(r *Request) { r.UserID = "user_1" }),
		request("rent", func(r *Request) { r.UserID = "user_2"; r.Month = "11"; r.TopK = 100 }),
		request("travel", func(r *Request) { r.Month = "1"; r.InitialFetch = 30 }),
		request("top expense", func(r *Request) { r.UserID = "nobody" }),
		request("movie", func(r *Request) { r.TopK = 1000 }),
	}

	for _, req := range reqs {
		resp, err := p.Search(context.Background(), req)
		require.NoError(t, err)

		assert.LessOrEqual(t, resp.Count, req.TopK)
		assert.LessOrEqual(t, resp.Count, resp.TotalBeforeLimit)
		assert.LessOrEqual(t, resp.TotalBeforeLimit, req.InitialFetch)
		assert.Len(t, resp.Results, resp.Count)

		month, _ := ParseMonth(req.Month)
		for _, r := range resp.Results {
			if req.UserID != "" {
				assert.Equal(t, req.UserID, r.UserID)
			}
			if month != "" {
				m, _ := r.MonthSegment()
				assert.Equal(t, month, m)
			}
		}
	}
}

func TestSearch_InitialFetchSmallerThanTopK(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))

	resp, err := p.Search(context.Background(), request("fuel", func(r *Request) {
		r.TopK = 10
		r.InitialFetch = 3
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, 3, resp.TotalBeforeLimit)
}

func TestSearch_InvalidArguments(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t))

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"top_k zero", func(r *Request) { r.TopK = 0 }},
		{"top_k negative", func(r *Request) { r.TopK = -1 }},
		{"initial_fetch zero", func(r *Request) { r.InitialFetch = 0 }},
		{"month 13", func(r *Request) { r.Month = "13" }},
		{"month word", func(r *Request) { r.Month = "August" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Search(context.Background(), request("anything", tt.mutate))
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestSearch_MissingIndex(t *testing.T) {
	var calls atomic.Int32
	emb := embedding.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		calls.Add(1)
		return embedding.NewHashEmbedder(testDim).Embed(ctx, texts)
	})
	p := NewPipeline(snapshot.NewHolder(nil), emb, zerolog.Nop())

	resp, err := p.Search(context.Background(), NewRequest("Top 5 expenses"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.Zero(t, calls.Load(), "query is not embedded without an index")
}

func TestSearch_UpstreamFailure(t *testing.T) {
	boom := errors.New("embedding service down")
	holder := snapshot.NewHolder(buildSnapshot(t, fixtureRecords(t)[:5]))
	p := NewPipeline(holder, embedding.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}), zerolog.Nop())

	_, err := p.Search(context.Background(), NewRequest("rent"))
	assert.ErrorIs(t, err, domain.ErrUpstreamService)
	assert.ErrorIs(t, err, boom)
}

func TestSearch_UnparseableDateDroppedOnlyUnderMonthFilter(t *testing.T) {
	records := []domain.Transaction{
		{ID: "a", UserID: "u", Date: "2024-05-01", Description: "book", Amount: 10, Type: domain.TxnDebit, Category: "Shopping"},
		{ID: "b", UserID: "u", Date: "20240501", Description: "book", Amount: 20, Type: domain.TxnDebit, Category: "Shopping"},
	}
	p := newTestPipeline(t, records)

	resp, err := p.Search(context.Background(), NewRequest("book"))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)

	resp, err = p.Search(context.Background(), request("book", func(r *Request) { r.Month = "05" }))
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "a", resp.Results[0].ID)
}

func TestResponse_JSONShape(t *testing.T) {
	p := newTestPipeline(t, fixtureRecords(t)[:3])

	resp, err := p.Search(context.Background(), request("rent", func(r *Request) { r.TopK = 1 }))
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got["userId"])
	assert.Nil(t, got["month"])
	assert.EqualValues(t, 1, got["count"])
	assert.EqualValues(t, 3, got["total_before_limit"])

	results := got["results"].([]any)
	first := results[0].(map[string]any)
	for _, key := range []string{"id", "userId", "date", "description", "amount", "type", "category", "balance", "score"} {
		assert.Contains(t, first, key)
	}
}

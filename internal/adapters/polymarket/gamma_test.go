package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdielMag/MoneyMaker/internal/adapters/polymarket"
	"github.com/AdielMag/MoneyMaker/internal/domain"
)

func newTestClient(srv *httptest.Server) *polymarket.Client {
	return polymarket.NewClient(srv.URL, 2*time.Second)
}

func serveFixture(t *testing.T, path, wantPath string) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchMarkets_Success(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_markets.json", "/markets")

	markets, err := newTestClient(srv).FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2, "entry without id is dropped")

	m := markets[0]
	assert.Equal(t, "512345", m.ID)
	assert.Equal(t, "Crypto", m.Category)
	assert.InDelta(t, 15234.55, m.Volume, 0.001)
	assert.InDelta(t, 2300.5, m.Liquidity, 0.001)
	assert.Equal(t, time.Date(2026, 6, 1, 12, 45, 0, 0, time.UTC), m.EndDate)
	require.Len(t, m.Outcomes, 2)
	assert.Equal(t, "Yes", m.Outcomes[0].Name)
	assert.InDelta(t, 0.62, m.Price(), 0.0001)
	assert.True(t, m.Active)

	// Arrays nativos, liquidez vacía y categoría desde groupItemTitle
	m = markets[1]
	assert.Equal(t, "Sports", m.Category)
	assert.Equal(t, 0.0, m.Liquidity)
	assert.InDelta(t, 0.41, m.Price(), 0.0001)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), m.EndDate)
}

func TestFetchMarkets_QueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	markets, err := newTestClient(srv).WithMarketLimit(25).FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestFetchMarkets_ServerErrorIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchMarkets(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load(), "no internal retries")
}

func TestFetchMarkets_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchMarkets(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
}

func TestFetchMarkets_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv).FetchMarkets(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
}

func TestFetchQuote_Success(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_market.json", "/markets/512345")

	q, err := newTestClient(srv).FetchQuote(context.Background(), "512345")
	require.NoError(t, err)

	assert.Equal(t, "512345", q.MarketID)
	p, ok := q.PriceOf("")
	require.True(t, ok)
	assert.InDelta(t, 0.71, p, 0.0001)
	assert.True(t, q.Tradable())
	assert.False(t, q.FetchedAt.IsZero())
	assert.Equal(t, time.Date(2026, 6, 1, 11, 40, 12, 654321000, time.UTC), q.UpdatedAt)
}

func TestFetchQuote_AgeFollowsSourceUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"7","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.4\",\"0.6\"]",` +
			`"active":true,"closed":false,"updatedAt":"2020-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv).FetchQuote(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), q.UpdatedAt)
	assert.Greater(t, q.Age(time.Now()), 24*time.Hour, "old source data is old even if fetched just now")
}

func TestFetchQuote_NoUpdatedAtFallsBackToFetchTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"7","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.4\",\"0.6\"]","active":true}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv).FetchQuote(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, q.UpdatedAt.IsZero())
	assert.Less(t, q.Age(time.Now()), time.Minute)
}

func TestFetchQuote_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchQuote(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchQuote_EmptyID(t *testing.T) {
	_, err := polymarket.NewClient("http://127.0.0.1:1", time.Second).FetchQuote(context.Background(), "")
	assert.True(t, domain.IsValidation(err))
}

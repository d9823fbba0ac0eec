package ranking_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdielMag/MoneyMaker/internal/adapters/ranking"
	"github.com/AdielMag/MoneyMaker/internal/domain"
)

func TestClient_Rank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Markets []struct {
				ID    string  `json:"id"`
				Price float64 `json:"price"`
			} `json:"markets"`
			Count int `json:"count"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 3, body.Count)
		if assert.Len(t, body.Markets, 1) {
			assert.Equal(t, "m1", body.Markets[0].ID)
			assert.Equal(t, 0.5, body.Markets[0].Price)
		}

		w.Write([]byte(`{"suggestions": []}`))
	}))
	defer srv.Close()

	raw, err := ranking.NewClient(srv.URL, " secret ", time.Second).Rank(context.Background(), markets("m1"), 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": []}`, string(raw))
}

func TestClient_RankErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	_, err := ranking.NewClient(srv.URL, "", time.Second).Rank(context.Background(), markets("m1"), 1)
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
	assert.Contains(t, err.Error(), "503")
}

func TestClient_NoURLConfigured(t *testing.T) {
	_, err := ranking.NewClient("", "", time.Second).Rank(context.Background(), markets("m1"), 1)
	assert.True(t, domain.IsExternal(err))
}

func TestAdapterOverClient_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"suggestions": [{"market_id": "m1", "confidence": 0.9, "recommended_stake": 12}]}`))
	}))
	defer srv.Close()

	a := ranking.NewAdapter(ranking.NewClient(srv.URL, "", time.Second), 0.7)
	got, err := a.Suggest(context.Background(), markets("m1"), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.0, got[0].RecommendedStake)
}

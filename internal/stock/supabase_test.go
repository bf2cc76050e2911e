package stock

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvb-stock-bot/internal/cache"
	"pvb-stock-bot/internal/config"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	return NewClient(config.SupabaseConfig{
		URL:      url,
		Key:      "test-key",
		Game:     "plantsvsbrainrots",
		Timeout:  2 * time.Second,
		CacheTTL: 10 * time.Second,
		Retries:  1,
	}, c, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestFetchStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "eq.plantsvsbrainrots", r.URL.Query().Get("game"))

		switch r.URL.Query().Get("type") {
		case "eq.seeds":
			w.Write([]byte(`[
				{"display_name":"Mr Carrot","multiplier":2,"type":"seeds","active":true},
				{"display_name":"Cactus","multiplier":5,"type":"seeds","active":true},
				{"display_name":"","multiplier":9,"type":"seeds","active":true},
				{"display_name":"Grape","multiplier":0,"type":"seeds","active":true}
			]`))
		case "eq.gear":
			w.Write([]byte(`[{"display_name":"Bat","multiplier":1,"type":"gear","active":true}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	snap, rows, err := testClient(t, srv.URL).FetchStock(context.Background())
	require.NoError(t, err)

	// Nameless and zero-quantity rows carry no stock information.
	assert.Equal(t, Snapshot{"Mr Carrot": 2, "Cactus": 5, "Bat": 1}, snap)
	assert.Len(t, rows, 5)
}

func TestFetchStockPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") == "eq.seeds" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"display_name":"Bat","multiplier":3,"type":"gear","active":true}]`))
	}))
	defer srv.Close()

	snap, _, err := testClient(t, srv.URL).FetchStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{"Bat": 3}, snap)
}

func TestFetchStockTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := testClient(t, srv.URL).FetchStock(context.Background())
	assert.Error(t, err)
}

func TestFetchRowsUsesCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"display_name":"Cactus","multiplier":1,"type":"seeds","active":true}]`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.fetchRows(ctx, "seeds")
	require.NoError(t, err)
	_, err = client.fetchRows(ctx, "seeds")
	require.NoError(t, err)

	assert.Equal(t, int64(1), hits.Load())
}

func TestFetchWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"item_id":"gold","ends_at":"2025-01-01T12:00:00Z","type":"weather","active":true},
			{"item_id":"frozen","ends_at":"2025-01-01T10:00:00Z","type":"weather","active":true}
		]`))
	}))
	defer srv.Close()

	row, err := testClient(t, srv.URL).FetchWeather(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "gold", row.ItemID)
}

func TestFetchWeatherPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	row, err := testClient(t, srv.URL).FetchWeather(context.Background())
	require.NoError(t, err)
	assert.Nil(t, row)
}

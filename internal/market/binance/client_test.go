package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/market"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"serverTime":1704067200000}`)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `[
			[1704067200000,"42000.1","42100.5","41900.0","42050.2","12.5",1704067259999,"525000.0",150,"6.0","252000.0","0"],
			[1704067260000,"42050.2","42060.0","42000.0","42010.0","3.25",1704067319999,"136500.0",42,"1.0","42000.0","0"]
		]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ServerTime(t *testing.T) {
	srv := newTestServer(t)
	c := New(Options{BaseURL: srv.URL})

	ts, err := c.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1704067200000), ts)
}

func TestClient_Klines(t *testing.T) {
	srv := newTestServer(t)
	c := New(Options{BaseURL: srv.URL})

	candles, err := c.Klines(context.Background(), market.KlineRequest{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		StartTime: 1704067200000,
		Limit:     2,
	})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, domain.Candle{
		OpenTime:  1704067200000,
		CloseTime: 1704067259999,
		Open:      42000.1,
		High:      42100.5,
		Low:       41900.0,
		Close:     42050.2,
		Volume:    12.5,
		Trades:    150,
	}, candles[0])
}

func TestClient_Klines_InvalidRequest(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:0"})

	_, err := c.Klines(context.Background(), market.KlineRequest{Symbol: "BTCUSDT", Interval: "1m", Limit: 5000})
	assert.ErrorIs(t, err, market.ErrInvalidRequest)
}

func TestClient_ServerTime_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":-1000,"msg":"internal"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Options{BaseURL: srv.URL}).ServerTime(context.Background())
	assert.Error(t, err)
}

func TestToCandle_BadNumber(t *testing.T) {
	_, err := toCandle(1, 2, "x", "1", "1", "1", "1", 0)
	assert.Error(t, err)
}

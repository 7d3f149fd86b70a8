package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ecbServer(t *testing.T, perEuro map[string]string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "jsondata", r.URL.Query().Get("format"))

		// /D.USD.EUR.SP00.A
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), ".")
		value, ok := perEuro[parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"dataSets":[{"series":{"0:0:0:0:0":{"observations":{"0":[` + value + `,0,0,null,null]}}}}]}`))
	}))
}

func TestRate(t *testing.T) {
	var calls int32
	server := ecbServer(t, map[string]string{"USD": "1.25", "PLN": "4.0"}, &calls)
	defer server.Close()

	source := NewECBSource(server.URL, "EUR", time.Hour)
	ctx := context.Background()

	rate, err := source.Rate(ctx, "usd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.8")), "got %s", rate)

	_, err = source.Rate(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup is served from cache")

	one, err := source.Rate(ctx, "EUR")
	require.NoError(t, err)
	assert.True(t, one.Equal(decimal.NewFromInt(1)))
}

func TestRate_CrossQuote(t *testing.T) {
	var calls int32
	server := ecbServer(t, map[string]string{"USD": "1.25", "PLN": "4.0"}, &calls)
	defer server.Close()

	source := NewECBSource(server.URL, "PLN", time.Hour)

	rate, err := source.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("3.2")), "got %s", rate)

	rate, err = source.Rate(context.Background(), "EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("4")), "got %s", rate)
}

func TestRate_Unavailable(t *testing.T) {
	var calls int32
	server := ecbServer(t, map[string]string{}, &calls)
	defer server.Close()

	source := NewECBSource(server.URL, "EUR", time.Hour)
	_, err := source.Rate(context.Background(), "GBP")
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestRefresh(t *testing.T) {
	var calls int32
	server := ecbServer(t, map[string]string{"USD": "1.25"}, &calls)
	defer server.Close()

	source := NewECBSource(server.URL, "EUR", time.Hour)
	refreshed := source.Refresh(context.Background(), []string{"USD", "EUR", "GBP"})
	assert.Equal(t, 1, refreshed)

	_, err := source.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "USD fetched once by refresh, GBP failed once")
}

func TestRate_HangingServerIsCutOff(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	source := NewECBSource(server.URL, "EUR", time.Hour)
	source.lookupTimeout = 50 * time.Millisecond

	started := time.Now()
	_, err := source.Rate(context.Background(), "USD")
	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.Less(t, time.Since(started), time.Second)

	started = time.Now()
	_, err = source.Rate(context.Background(), "USD")
	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.Less(t, time.Since(started), 20*time.Millisecond, "a recent failure is answered from cache")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRefresh_ClearsRememberedFailure(t *testing.T) {
	var calls int32
	var published atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !published.Load() {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"dataSets":[{"series":{"0:0:0:0:0":{"observations":{"0":[1.25,0,0,null,null]}}}}]}`))
	}))
	defer server.Close()

	source := NewECBSource(server.URL, "EUR", time.Hour)
	_, err := source.Rate(context.Background(), "USD")
	require.ErrorIs(t, err, ErrRateUnavailable)

	published.Store(true)
	assert.Equal(t, 1, source.Refresh(context.Background(), []string{"USD"}))

	rate, err := source.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.8")), "got %s", rate)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

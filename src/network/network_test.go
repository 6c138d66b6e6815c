package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(retries int) *AsyncNetworkManager {
	cfg := &models.MConfig{}
	cfg.Network.RequestTimeout = 5
	cfg.Network.MaxRetries = retries
	cfg.Network.ConcurrentRequests = 2
	cfg.Network.UserAgent = "exchange-test"
	return NewAsyncNetworkManager(cfg, logger.NewDiscardLogger("network"))
}

func TestGetSendsParamsAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "INFY", r.URL.Query().Get("symbol"))
		assert.Equal(t, "exchange-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://example.test/", r.Header.Get("Referer"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := newTestManager(0).Get(context.Background(), srv.URL+"/quote", map[string]string{"symbol": "INFY"}, map[string]string{"Referer": "https://example.test/"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestManager(1).Get(context.Background(), srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestManager(3).Get(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var netErr *helpers.NetworkError
	require.True(t, errors.As(err, &netErr))
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.Code)
}

func TestGetKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			return
		}
		c, err := r.Cookie("session")
		if err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("authorized"))
	}))
	defer srv.Close()

	nm := newTestManager(0)
	_, err := nm.Get(context.Background(), srv.URL+"/", nil, nil)
	require.NoError(t, err)

	body, err := nm.Get(context.Background(), srv.URL+"/api", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "authorized", string(body))
}

func TestGetStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestManager(5).Get(ctx, srv.URL, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

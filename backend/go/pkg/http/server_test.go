package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_WithAddress(t *testing.T) {
	cfg := config.Default()
	srv := NewServer(cfg, http.NotFoundHandler(), WithAddress(":9999"))
	assert.Equal(t, ":9999", srv.Addr())
	assert.Equal(t, 10*time.Second, srv.shutdownTimeout)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	srv := NewServer(cfg, http.NotFoundHandler(), WithAddress("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestClientTripsOnServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(time.Second, circuitbreaker.New(circuitbreaker.Settings{FailureThreshold: 2, Timeout: time.Minute}))
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
		resp, err := c.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	_, err := c.Do(req)
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.Equal(t, 2, calls)
}

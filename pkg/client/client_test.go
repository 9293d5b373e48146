package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/harness/internal/server"
	"github.com/loykin/harness/internal/supervisor"
)

type fakeSup struct {
	mu    sync.Mutex
	owned bool
	err   error
	waits []time.Duration
}

func (f *fakeSup) StartIfNeeded(_ supervisor.Endpoint, wait time.Duration) (supervisor.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, wait)
	if f.err != nil {
		return 0, f.err
	}
	f.owned = true
	return supervisor.StartedAndReady, nil
}

func (f *fakeSup) StopIfStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owned = false
}

func (f *fakeSup) Status() supervisor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.owned {
		return supervisor.Status{}
	}
	return supervisor.Status{Owned: true, Alive: true, PID: 7, URL: "http://127.0.0.1:4723"}
}

func newAPI(t *testing.T, sup server.Supervisor) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ep := supervisor.Endpoint{Host: "127.0.0.1", Port: 4723}
	h := server.NewRouter(sup, ep, 20*time.Second, "/api",
		server.WithProbe(func(string, int, time.Duration) bool { return false })).Handler()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api", Timeout: 2 * time.Second})
}

func TestStatusStartStop(t *testing.T) {
	sup := &fakeSup{}
	c := newAPI(t, sup)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))
	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Owned)
	assert.Equal(t, "http://127.0.0.1:4723", st.Endpoint)

	res, err := c.Start(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "StartedAndReady", res.Outcome)
	_, err = c.Start(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 20 * time.Second}, sup.waits)

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Owned)
	assert.Equal(t, 7, st.PID)

	require.NoError(t, c.Stop(ctx))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Owned)
}

func TestStartErrorIsDecoded(t *testing.T) {
	c := newAPI(t, &fakeSup{err: supervisor.ErrStartTimeout})
	_, err := c.Start(context.Background(), time.Second)
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusGatewayTimeout, se.Code)
	assert.Contains(t, se.Message, "deadline")
	assert.True(t, IsTimeout(err))
}

func TestUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	c := New(Config{BaseURL: url + "/api", Timeout: 500 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
}

func TestNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer ts.Close()
	err := New(Config{BaseURL: ts.URL}).Stop(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTeapot, se.Code)
	assert.Equal(t, "HTTP 418", se.Error())
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, "http://127.0.0.1:8080/api", c.baseURL)
	assert.Equal(t, 10*time.Second, c.client.Timeout)
}

package statsserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{ n int }

func (f fakeCounter) ActiveCount() int { return f.n }

func TestHealthzAndStatsEndpoints(t *testing.T) {
	s := New("127.0.0.1:0", fakeCounter{n: 3}, nil)
	s.httpServer.Addr = "127.0.0.1:18733"
	s.Start()
	defer func() { require.NoError(t, s.Shutdown(context.Background())) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18733/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18733/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.EqualValues(t, 3, got["active_workers"])
}

func TestStatsHandlerToleratesNilCounter(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil)
	s.httpServer.Addr = "127.0.0.1:18734"
	s.Start()
	defer func() { require.NoError(t, s.Shutdown(context.Background())) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18734/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

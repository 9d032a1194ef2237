//
//  Copyright © Manetu Inc. All rights reserved.
//

package pdp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manetu/policygateway/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineInput struct {
	User     string `json:"user"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

type engineQuery struct {
	Input engineInput `json:"input"`
}

// newEngine returns a stub policy engine whose decision logic is supplied
// by the caller, plus a counter of decision calls received.
func newEngine(t *testing.T, decide func(in engineInput) bool) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	calls := &atomic.Int64{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/data/authz/allow", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var q engineQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		_ = json.NewEncoder(w).Encode(map[string]bool{"result": decide(q.Input)})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, calls
}

func newTestClient(t *testing.T, url string, opts ...OptionsFunc) *Client {
	t.Helper()
	base := []OptionsFunc{
		WithBaseURL(url),
		WithTimeout(500 * time.Millisecond),
		WithRetry(0, 10*time.Millisecond),
		WithBreaker(5, 100*time.Millisecond, 100*time.Millisecond),
	}
	client, err := NewClient(append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func TestDecideAllow(t *testing.T) {
	engine, _ := newEngine(t, func(in engineInput) bool {
		return in.User == "alice" && in.Action == "read"
	})
	client := newTestClient(t, engine.URL)

	result, err := client.Decide(context.Background(), Request{Subject: "alice", Action: "read", Resource: "document:1"})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, SourceEngine, result.Source)
	assert.Greater(t, result.Latency, time.Duration(0))
}

func TestDecideDeny(t *testing.T) {
	engine, _ := newEngine(t, func(in engineInput) bool { return false })
	client := newTestClient(t, engine.URL)

	result, err := client.Decide(context.Background(), Request{Subject: "bob", Action: "write", Resource: "document:2"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, SourceEngine, result.Source)
}

func TestDecideIdempotentWhileStable(t *testing.T) {
	engine, _ := newEngine(t, func(in engineInput) bool { return in.User == "alice" })
	client := newTestClient(t, engine.URL)

	req := Request{Subject: "alice", Action: "read", Resource: "document:1"}
	for i := 0; i < 5; i++ {
		result, err := client.Decide(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestDecideInvalidInput(t *testing.T) {
	engine, calls := newEngine(t, func(in engineInput) bool { return true })
	client := newTestClient(t, engine.URL)

	tests := []Request{
		{Subject: "", Action: "read", Resource: "document:1"},
		{Subject: "alice", Action: "  ", Resource: "document:1"},
		{Subject: "alice", Action: "read", Resource: ""},
	}

	for _, req := range tests {
		_, err := client.Decide(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, common.ReasonInvalidInput, common.CodeOf(err))
	}

	assert.Equal(t, int64(0), calls.Load(), "invalid input must never reach the engine")
}

func TestDecideRetriesExhaustedFailsClosed(t *testing.T) {
	calls := &atomic.Int64{}
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(engine.Close)

	client := newTestClient(t, engine.URL, WithRetry(2, 5*time.Millisecond))

	result, err := client.Decide(context.Background(), Request{Subject: "alice", Action: "read", Resource: "document:1"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, int64(3), calls.Load(), "initial attempt plus two retries")
}

func TestDecideParseFailureFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing result", `{"decision": true}`},
		{"non-boolean result", `{"result": "yes"}`},
		{"malformed json", `{"result":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(engine.Close)

			client := newTestClient(t, engine.URL)

			result, err := client.Decide(context.Background(), Request{Subject: "alice", Action: "read", Resource: "document:1"})
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Equal(t, SourceFallback, result.Source)
		})
	}
}

func TestDecideTimeoutFailsClosed(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(engine.Close)

	client := newTestClient(t, engine.URL, WithTimeout(30*time.Millisecond))

	start := time.Now()
	result, err := client.Decide(context.Background(), Request{Subject: "alice", Action: "read", Resource: "document:1"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Less(t, time.Since(start), time.Second, "decide must be bounded by timeout + retries")
}

func TestDecideCallerCancellation(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// drain the body so the server detects client disconnect and
		// cancels the request context
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(engine.Close)

	client := newTestClient(t, engine.URL, WithRetry(5, 50*time.Millisecond), WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := client.Decide(ctx, Request{Subject: "alice", Action: "read", Resource: "document:1"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abandon the retry loop")
}

func TestBreakerOpensAndShortCircuits(t *testing.T) {
	calls := &atomic.Int64{}
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(engine.Close)

	client := newTestClient(t, engine.URL,
		WithRetry(0, time.Millisecond),
		WithBreaker(3, time.Minute, time.Minute))

	req := Request{Subject: "alice", Action: "read", Resource: "document:1"}

	// exactly threshold consecutive failures trip the circuit
	for i := 0; i < 3; i++ {
		result, err := client.Decide(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
	}
	assert.Equal(t, StateOpen, client.BreakerState())
	assert.Equal(t, int64(3), calls.Load())

	// while open, calls short-circuit without touching the engine
	result, err := client.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, int64(3), calls.Load())
}

func TestBreakerRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result": true}`))
	}))
	t.Cleanup(engine.Close)

	client, err := NewClient(
		WithBaseURL(engine.URL),
		WithPolicyPath("/v1/data/authz/allow"),
		WithTimeout(500*time.Millisecond),
		WithRetry(0, time.Millisecond),
		WithBreaker(1, 50*time.Millisecond, time.Minute))
	require.NoError(t, err)

	req := Request{Subject: "alice", Action: "read", Resource: "document:1"}

	_, err = client.Decide(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateOpen, client.BreakerState())

	// recover the engine and wait out the open window
	failing.Store(false)
	time.Sleep(60 * time.Millisecond)

	// the next call is the half-open probe; its success closes the circuit
	result, err := client.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, SourceEngine, result.Source)
	assert.Equal(t, StateClosed, client.BreakerState())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(engine.Close)

	client := newTestClient(t, engine.URL,
		WithRetry(0, time.Millisecond),
		WithBreaker(1, 20*time.Millisecond, time.Minute))

	req := Request{Subject: "alice", Action: "read", Resource: "document:1"}

	_, err := client.Decide(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateOpen, client.BreakerState())

	time.Sleep(30 * time.Millisecond)

	_, err = client.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, client.BreakerState())
}

func TestCheckHealthUp(t *testing.T) {
	engine, _ := newEngine(t, func(in engineInput) bool { return true })
	client := newTestClient(t, engine.URL)

	status := client.CheckHealth(context.Background())
	assert.True(t, status.Up)
	assert.Equal(t, engine.URL, status.URL)
	assert.Empty(t, status.Detail)
}

func TestCheckHealthDown(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	engine.Close()

	client := newTestClient(t, engine.URL)

	status := client.CheckHealth(context.Background())
	assert.False(t, status.Up)
	assert.NotEmpty(t, status.Detail)
}

func TestCheckHealthNon2xx(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(engine.Close)

	client := newTestClient(t, engine.URL)

	status := client.CheckHealth(context.Background())
	assert.False(t, status.Up)
	assert.Contains(t, status.Detail, "500")
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Subject: "alice", Action: "read", Resource: "document:1"}.Validate())
	assert.Error(t, Request{Action: "read", Resource: "document:1"}.Validate())
	assert.Error(t, Request{Subject: " ", Action: "read", Resource: "document:1"}.Validate())
}

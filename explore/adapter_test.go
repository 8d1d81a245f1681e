package explore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore/internal/targettest"
)

func newFakeTarget(t *testing.T, opts targettest.Options) (*targettest.Server, *HTTPTarget) {
	t.Helper()
	srv := targettest.NewServer(opts)
	t.Cleanup(srv.Close)
	target, err := NewHTTPTarget(srv.URL, DefaultTargetConfig())
	require.NoError(t, err)
	return srv, target
}

func purchase(item string, qty int, expedite bool) ActionInstance {
	return ActionInstance{Name: "purchase", Method: "POST", Path: "/purchase",
		JSON: Params{"item": item, "quantity": qty, "expedite": expedite}}
}

func TestNewHTTPTarget_ValidatesBaseURL(t *testing.T) {
	for _, bad := range []string{"", "localhost:8000", "ftp://example.com", "http://", "://x"} {
		_, err := NewHTTPTarget(bad, DefaultTargetConfig())
		assert.Error(t, err, "base URL %q", bad)
	}
	target, err := NewHTTPTarget("http://127.0.0.1:8000/", TargetConfig{})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", target.BaseURL())

	_, err = NewHTTPTarget("http://127.0.0.1:8000", TargetConfig{RateLimit: -1})
	assert.Error(t, err)
}

func TestHTTPTarget_Reset_ReturnsInitialState(t *testing.T) {
	_, target := newFakeTarget(t, targettest.DefaultOptions())

	obs := target.Reset(context.Background())

	assert.Equal(t, http.StatusOK, obs.StatusCode)
	assert.Equal(t, StateFromEndpoint, obs.State.Source)
	inv := obs.State.Snapshot["inventory"].(map[string]any)
	assert.Equal(t, float64(6), inv["widgets"])
	assert.Equal(t, float64(3), inv["gadgets"])
	assert.Equal(t, float64(2), inv["doodads"])
	assert.Empty(t, obs.Markers)
	assert.NotEmpty(t, obs.LogExcerpt())
}

func TestHTTPTarget_Perform_ExpeditedOversell(t *testing.T) {
	// GIVEN a freshly reset store with 3 gadgets
	_, target := newFakeTarget(t, targettest.DefaultOptions())
	ctx := context.Background()
	target.Reset(ctx)

	// WHEN 4 gadgets are bought on the expedite path
	obs := target.Perform(ctx, purchase("gadgets", 4, true))

	// THEN the target accepts and goes negative
	assert.Equal(t, http.StatusCreated, obs.StatusCode)
	inv := obs.State.Snapshot["inventory"].(map[string]any)
	assert.Equal(t, float64(-1), inv["gadgets"])
	assert.Equal(t, []string{MarkerAlertsPresent, MarkerInvariantViolated}, obs.Markers)
}

func TestHTTPTarget_Perform_ValidatedPurchaseConflict(t *testing.T) {
	_, target := newFakeTarget(t, targettest.DefaultOptions())
	ctx := context.Background()
	target.Reset(ctx)

	obs := target.Perform(ctx, purchase("gadgets", 4, false))

	assert.Equal(t, http.StatusConflict, obs.StatusCode)
	assert.Equal(t, "not enough inventory", obs.Response["error"])
	assert.Equal(t, []string{MarkerClientError}, obs.Markers)
}

func TestHTTPTarget_Perform_TransportFailure(t *testing.T) {
	// GIVEN a target whose server has gone away
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	target, err := NewHTTPTarget(base, TargetConfig{Timeout: time.Second, Markers: DefaultMarkerConfig()})
	require.NoError(t, err)

	// WHEN an action is performed
	obs := target.Perform(context.Background(), purchase("widgets", 1, false))

	// THEN the failure is data, not an error
	assert.Equal(t, 0, obs.StatusCode)
	assert.Contains(t, obs.Response, "transport_error")
	assert.False(t, obs.State.Available())
	assert.Equal(t, []string{MarkerTransportError, MarkerStateUnavailable}, obs.Markers)
}

func TestHTTPTarget_Perform_Timeout(t *testing.T) {
	// GIVEN a target slower than the configured timeout
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	target, err := NewHTTPTarget(srv.URL, TargetConfig{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	// WHEN an action is performed
	start := time.Now()
	obs := target.Perform(context.Background(), ResetAction())

	// THEN it fails fast as a transport error
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, obs.StatusCode)
	assert.Contains(t, obs.Markers, MarkerTransportError)
}

func TestHTTPTarget_StateFallsBackToResponse(t *testing.T) {
	// GIVEN a target whose state endpoint is broken
	_, target := newFakeTarget(t, targettest.Options{StateStatus: http.StatusInternalServerError})
	ctx := context.Background()

	// WHEN the store is reset (the reset response embeds the state)
	obs := target.Reset(ctx)

	// THEN the embedded state is used and its provenance recorded
	assert.Equal(t, StateFromResponse, obs.State.Source)
	assert.Contains(t, obs.State.Reason, "500")
	assert.NotContains(t, obs.Markers, MarkerStateUnavailable)
	inv := obs.State.Snapshot["inventory"].(map[string]any)
	assert.Equal(t, float64(3), inv["gadgets"])
}

func TestHTTPTarget_StateUnavailable(t *testing.T) {
	_, target := newFakeTarget(t, targettest.Options{StateStatus: http.StatusServiceUnavailable})

	obs := target.Perform(context.Background(), ActionInstance{Name: "text", Method: "GET", Path: "/text"})

	assert.Equal(t, http.StatusOK, obs.StatusCode)
	assert.Equal(t, map[string]any{"raw_body": "plain text body"}, obs.Response)
	assert.False(t, obs.State.Available())
	assert.Equal(t, []string{MarkerStateUnavailable}, obs.Markers)
}

func TestHTTPTarget_ServerErrorAndRedirect(t *testing.T) {
	_, target := newFakeTarget(t, targettest.DefaultOptions())
	ctx := context.Background()

	crash := target.Perform(ctx, ActionInstance{Name: "crash", Method: "POST", Path: "/crash", JSON: Params{}})
	assert.Equal(t, http.StatusInternalServerError, crash.StatusCode)
	assert.Equal(t, []string{MarkerServerError}, crash.Markers)

	// Redirects are reported, not followed
	redirect := target.Perform(ctx, ActionInstance{Name: "redirect", Method: "POST", Path: "/redirect", JSON: Params{}})
	assert.Equal(t, http.StatusFound, redirect.StatusCode)
}

func TestHTTPTarget_OneRequestPerAction(t *testing.T) {
	srv, target := newFakeTarget(t, targettest.DefaultOptions())
	before := srv.Requests()

	target.Perform(context.Background(), purchase("widgets", 1, false))

	// action + state fetch
	assert.Equal(t, int64(2), srv.Requests()-before)
}

func TestHTTPTarget_SendsCanonicalJSONBody(t *testing.T) {
	var got string
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/purchase" {
			b, _ := io.ReadAll(r.Body)
			got = string(b)
			method = r.Method
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	target, err := NewHTTPTarget(srv.URL, DefaultTargetConfig())
	require.NoError(t, err)

	obs := target.Perform(context.Background(), purchase("gadgets", 4, true))

	assert.Equal(t, "POST", method)
	assert.Equal(t, `{"expedite":true,"item":"gadgets","quantity":4}`, got)
	assert.Equal(t, map[string]any{"ok": true}, obs.Response)
}

func TestHTTPTarget_RateLimit(t *testing.T) {
	_, fake := newFakeTarget(t, targettest.DefaultOptions())
	target, err := NewHTTPTarget(fake.BaseURL(), TargetConfig{RateLimit: 20})
	require.NoError(t, err)

	// 3 actions = 6 requests at 20/s with burst 1: at least 250ms
	start := time.Now()
	for i := 0; i < 3; i++ {
		target.Perform(context.Background(), ResetAction())
	}
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestHTTPTarget_Probe(t *testing.T) {
	// GIVEN a healthy target, one whose state endpoint fails, and one that is gone
	srv, healthy := newFakeTarget(t, targettest.DefaultOptions())
	_, failing := newFakeTarget(t, targettest.Options{StateStatus: http.StatusServiceUnavailable})
	gone := httptest.NewServer(http.NotFoundHandler())
	base := gone.URL
	gone.Close()
	unreachable, err := NewHTTPTarget(base, TargetConfig{Timeout: time.Second})
	require.NoError(t, err)

	// WHEN each is probed
	// THEN only the healthy target passes, and probing costs one read
	require.NoError(t, healthy.Probe(context.Background()))
	assert.Equal(t, int64(1), srv.Requests())
	assert.ErrorContains(t, failing.Probe(context.Background()), "status 503")
	assert.ErrorContains(t, unreachable.Probe(context.Background()), "not reachable")
}

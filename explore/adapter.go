package explore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Target is the system under test.
type Target interface {
	// Reset returns the target to its initial state.
	Reset(ctx context.Context) Observation
	// Perform executes one action. Transport failures are reported inside
	// the observation, never as an error.
	Perform(ctx context.Context, action ActionInstance) Observation
	BaseURL() string
}

const (
	// DefaultTargetTimeout bounds each request to the target.
	DefaultTargetTimeout = 5 * time.Second
	// maxResponseBody caps how much of a response body is read.
	maxResponseBody = 1 << 20
	statePath       = "/state"
)

// TargetConfig configures an HTTPTarget.
type TargetConfig struct {
	// Timeout bounds each request, including the state fetch. Zero means
	// DefaultTargetTimeout.
	Timeout time.Duration
	// RateLimit caps requests per second across action and state calls.
	// Zero disables throttling.
	RateLimit float64
	Markers   MarkerConfig
}

// DefaultTargetConfig returns a 5s timeout, no rate limit and the default
// marker rules.
func DefaultTargetConfig() TargetConfig {
	return TargetConfig{
		Timeout: DefaultTargetTimeout,
		Markers: DefaultMarkerConfig(),
	}
}

// HTTPTarget drives a target over HTTP. It is bound to one base URL for its
// whole lifetime.
type HTTPTarget struct {
	baseURL string
	cfg     TargetConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPTarget validates baseURL and builds a pooled client that does not
// follow redirects.
func NewHTTPTarget(baseURL string, cfg TargetConfig) (*HTTPTarget, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: want absolute http or https URL", baseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTargetTimeout
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must be >= 0, got %v", cfg.RateLimit)
	}

	t := &HTTPTarget{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		client:  newClient(cfg.Timeout),
	}
	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return t, nil
}

func newClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: time.Second,
		DialContext:           dialer.DialContext,
	}
	return &http.Client{
		Transport: transport,
		// Redirects are part of the target's observable behavior.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// BaseURL returns the URL the target is bound to.
func (t *HTTPTarget) BaseURL() string { return t.baseURL }

// Reset performs the reset action.
func (t *HTTPTarget) Reset(ctx context.Context) Observation {
	return t.Perform(ctx, ResetAction())
}

// Perform sends exactly one request for action, then fetches the state.
func (t *HTTPTarget) Perform(ctx context.Context, action ActionInstance) Observation {
	start := time.Now()
	status, body, callErr := t.do(ctx, action.Method, action.Path, action.JSON)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	var response map[string]any
	if callErr != nil {
		status = 0
		response = map[string]any{"transport_error": callErr.Error()}
	} else {
		response = decodeBody(body)
	}

	state := t.fetchState(ctx, response)
	return NewObservation(action, status, latencyMs, response, state, t.cfg.Markers)
}

// Probe checks that the target answers GET /state with a 2xx status. It does
// not change target state.
func (t *HTTPTarget) Probe(ctx context.Context) error {
	status, _, err := t.do(ctx, http.MethodGet, statePath, nil)
	if err != nil {
		return fmt.Errorf("target %s not reachable: %w", t.baseURL, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("target %s: state endpoint returned status %d", t.baseURL, status)
	}
	return nil
}

// fetchState asks GET /state for a snapshot and falls back to a "state"
// object embedded in the action response.
func (t *HTTPTarget) fetchState(ctx context.Context, response map[string]any) StateResult {
	var reason string
	status, body, err := t.do(ctx, http.MethodGet, statePath, nil)
	switch {
	case err != nil:
		reason = "state endpoint: " + err.Error()
	case status < 200 || status >= 300:
		reason = fmt.Sprintf("state endpoint returned status %d", status)
	default:
		obj, ok := decodeObject(body)
		if snap, isObj := obj["state"].(map[string]any); ok && isObj {
			return StateResult{Snapshot: snap, Source: StateFromEndpoint}
		}
		reason = "state endpoint returned no state object"
	}

	if snap, ok := response["state"].(map[string]any); ok {
		return StateResult{Snapshot: snap, Source: StateFromResponse, Reason: reason}
	}
	return StateResult{Source: StateUnavailable, Reason: reason}
}

func (t *HTTPTarget) do(ctx context.Context, method, path string, params Params) (int, []byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	var body io.Reader
	hasBody := method != http.MethodGet && method != http.MethodHead
	if hasBody {
		if params == nil {
			params = Params{}
		}
		payload, err := canonicalJSON(params)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// decodeBody returns the body as a JSON object, or wraps its text as
// {"raw_body": text} when it is anything else.
func decodeBody(body []byte) map[string]any {
	if obj, ok := decodeObject(body); ok {
		return obj
	}
	return map[string]any{"raw_body": strings.ToValidUTF8(string(body), "\uFFFD")}
}

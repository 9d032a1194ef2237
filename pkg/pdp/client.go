//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package pdp provides a resilient client for a remote Policy Decision
// Point reached over HTTP.
//
// The client submits subject/action/resource tuples to the engine's
// decision document and enforces a bounded per-call timeout, a bounded
// retry loop, and an explicit circuit breaker. Every failure path resolves
// to a fail-closed deny; the engine being unreachable is never observable
// to callers as anything other than a denial.
//
// # Wire contract
//
// Decisions are requested with
//
//	POST <base><policyPath>
//	{"input": {"user": <subject>, "action": <action>, "resource": <resource>}}
//
// and the engine must answer with a JSON body containing a boolean
// "result" field. Any other shape is treated as an engine failure.
//
// # Usage
//
//	client, err := pdp.NewClient(pdp.WithBaseURL("http://opa:8181"))
//	result, err := client.Decide(ctx, pdp.Request{
//	    Subject:  "alice",
//	    Action:   "read",
//	    Resource: "document:7",
//	})
package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/manetu/policygateway/internal/logging"
	"github.com/manetu/policygateway/pkg/gateway/config"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("policygateway.pdp")

const agent string = "client"

// Options holds the tunables of a [Client]. Zero values are replaced by
// the configuration defaults in [config].
type Options struct {
	BaseURL       string
	PolicyPath    string
	Timeout       time.Duration
	HealthTimeout time.Duration
	MaxRetries    int
	RetryDelay    time.Duration

	BreakerThreshold    int
	BreakerOpenDuration time.Duration
	BreakerHalfOpenWait time.Duration

	HTTPClient *http.Client
}

// OptionsFunc is a function that modifies Options.
type OptionsFunc func(*Options)

// WithBaseURL overrides the engine base URL.
func WithBaseURL(url string) OptionsFunc {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithPolicyPath overrides the decision document path.
func WithPolicyPath(path string) OptionsFunc {
	return func(o *Options) {
		o.PolicyPath = path
	}
}

// WithTimeout overrides the per-attempt decision timeout.
func WithTimeout(d time.Duration) OptionsFunc {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithRetry overrides the retry policy: max retries after the initial
// attempt and the fixed delay between attempts.
func WithRetry(maxRetries int, delay time.Duration) OptionsFunc {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithBreaker overrides the circuit breaker policy.
func WithBreaker(threshold int, openDuration, halfOpenWait time.Duration) OptionsFunc {
	return func(o *Options) {
		o.BreakerThreshold = threshold
		o.BreakerOpenDuration = openDuration
		o.BreakerHalfOpenWait = halfOpenWait
	}
}

// WithHTTPClient overrides the HTTP client used for engine calls.
func WithHTTPClient(hc *http.Client) OptionsFunc {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}

// Client is a resilient decision client for a remote policy engine.
//
// Client is safe for concurrent use. The circuit breaker is the only
// state shared across requests.
type Client struct {
	http          *http.Client
	baseURL       string
	policyPath    string
	timeout       time.Duration
	healthTimeout time.Duration
	maxRetries    int
	retryDelay    time.Duration
	breaker       *breaker
}

func defaultOptions() Options {
	return Options{
		BaseURL:             config.VConfig.GetString(config.EngineURL),
		PolicyPath:          config.VConfig.GetString(config.EnginePolicyPath),
		Timeout:             config.Millis(config.EngineTimeoutMs),
		HealthTimeout:       config.Millis(config.EngineHealthTimeoutMs),
		MaxRetries:          config.VConfig.GetInt(config.RetryMax),
		RetryDelay:          config.Millis(config.RetryDelayMs),
		BreakerThreshold:    config.VConfig.GetInt(config.BreakerThreshold),
		BreakerOpenDuration: config.Millis(config.BreakerOpenDurationMs),
		BreakerHalfOpenWait: config.Millis(config.BreakerHalfOpenWaitMs),
		HTTPClient:          &http.Client{},
	}
}

// NewClient creates a decision client configured from [config] defaults,
// modified by the supplied options.
func NewClient(opts ...OptionsFunc) (*Client, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger.SysInfof("decision client initialized with engine %s%s", o.BaseURL, o.PolicyPath)

	return &Client{
		http:          o.HTTPClient,
		baseURL:       o.BaseURL,
		policyPath:    o.PolicyPath,
		timeout:       o.Timeout,
		healthTimeout: o.HealthTimeout,
		maxRetries:    o.MaxRetries,
		retryDelay:    o.RetryDelay,
		breaker:       newBreaker(o.BreakerThreshold, o.BreakerOpenDuration, o.BreakerHalfOpenWait),
	}, nil
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() State {
	return c.breaker.currentState()
}

// Decide evaluates the request against the remote policy engine.
//
// The only error Decide returns is an invalid-input classification; all
// engine failures (transport, timeout, non-2xx, unparseable response)
// resolve internally to a fail-closed deny with Source=SourceFallback
// after retries are exhausted. Callers therefore cannot distinguish
// "policy said no" from "engine was down", which is intentional.
func (c *Client) Decide(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()

	if !c.breaker.allow() {
		logger.Warnf(req.Subject, "decide", "circuit %s; failing closed for %s on %s",
			c.breaker.currentState(), req.Action, req.Resource)
		return c.fallback(start), nil
	}

	var lastErr error
attempts:
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = errors.Wrap(ctx.Err(), "aborted while waiting to retry")
				break attempts
			case <-time.After(c.retryDelay):
			}
		}

		allowed, err := c.query(ctx, req)
		if err == nil {
			c.breaker.onSuccess()
			breakerState.Set(float64(c.breaker.currentState()))
			decisionDuration.Observe(time.Since(start).Seconds())
			if allowed {
				decisionOutcomes.WithLabelValues(outcomeAllow).Inc()
				logger.Infof(req.Subject, "decide", "ALLOWED %s on %s", req.Action, req.Resource)
			} else {
				decisionOutcomes.WithLabelValues(outcomeDeny).Inc()
				logger.Warnf(req.Subject, "decide", "DENIED %s on %s", req.Action, req.Resource)
			}
			return Result{Allowed: allowed, Latency: time.Since(start), Source: SourceEngine}, nil
		}

		// network, timeout, non-2xx and parse failures all count as
		// engine failures
		c.breaker.onFailure()
		engineFailures.Inc()
		lastErr = err
		logger.Debugf(req.Subject, "decide", "attempt %d failed: %+v", attempt+1, err)

		if ctx.Err() != nil {
			break
		}
	}

	logger.Errorf(req.Subject, "decide", "engine unavailable after %d attempt(s); failing closed: %+v",
		c.maxRetries+1, lastErr)
	return c.fallback(start), nil
}

func (c *Client) fallback(start time.Time) Result {
	breakerState.Set(float64(c.breaker.currentState()))
	decisionDuration.Observe(time.Since(start).Seconds())
	decisionOutcomes.WithLabelValues(outcomeError).Inc()
	return Result{Allowed: false, Latency: time.Since(start), Source: SourceFallback}
}

type decisionQuery struct {
	Input Request `json:"input"`
}

type decisionReply struct {
	Result *bool `json:"result"`
}

// query performs a single bounded attempt against the engine. The timeout
// is enforced through the request context so that an abandoned call is
// actually cancelled, and caller cancellation propagates to the engine
// call as well.
func (c *Client) query(ctx context.Context, req Request) (bool, error) {
	body, err := json.Marshal(decisionQuery{Input: req})
	if err != nil {
		return false, errors.Wrap(err, "encoding decision input")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.policyPath, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrap(err, "building engine request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, errors.Wrap(err, "calling policy engine")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, errors.Errorf("engine returned status %d", resp.StatusCode)
	}

	var reply decisionReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return false, errors.Wrap(err, "decoding engine response")
	}
	if reply.Result == nil {
		return false, errors.New("engine response missing boolean 'result'")
	}

	return *reply.Result, nil
}

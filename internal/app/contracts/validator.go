package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/buenobot/internal/domain/rules"
	"github.com/ahrav/buenobot/pkg/common"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// maxResponseBytes caps how much of a response body is read for validation.
const maxResponseBytes = 16 << 20

// ValidationResult is the outcome of validating one endpoint. Transport,
// status and decoding problems are reported through Error rather than
// returned, so a single endpoint never aborts a batch.
type ValidationResult struct {
	Endpoint     string            `json:"endpoint"`
	Method       string            `json:"method"`
	Passed       bool              `json:"passed"`
	Violations   []rules.Violation `json:"violations"`
	RulesChecked int               `json:"rules_checked"`
	DurationMS   int64             `json:"duration_ms"`
	StatusCode   int               `json:"status_code,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	BaseURL string
	Timeout time.Duration
	// Headers are sent with every request, typically for authentication.
	Headers map[string]string
	// RateLimit is the maximum requests per second against the target.
	// Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Validator issues requests against a target service and checks each
// response against its contract.
type Validator struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	limiter *common.RateLimiter

	evaluator *rules.Evaluator

	logger *logger.Logger
	tracer trace.Tracer
}

// ValidatorOption configures optional Validator dependencies.
type ValidatorOption func(*Validator)

// WithHTTPClient overrides the HTTP client used to reach the target.
func WithHTTPClient(c *http.Client) ValidatorOption {
	return func(v *Validator) { v.client = c }
}

// NewValidator creates a Validator.
func NewValidator(
	cfg ValidatorConfig,
	evaluator *rules.Evaluator,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...ValidatorOption,
) *Validator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	v := &Validator{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		headers:   cfg.Headers,
		limiter:   common.NewRateLimiter(cfg.RateLimit, cfg.Burst),
		evaluator: evaluator,
		logger:    log.With("component", "contract_validator"),
		tracer:    tracer,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ForBaseURL returns a Validator targeting baseURL that shares v's client,
// rate limiter and headers. An empty baseURL returns v.
func (v *Validator) ForBaseURL(baseURL string) *Validator {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || baseURL == v.baseURL {
		return v
	}
	cp := *v
	cp.baseURL = baseURL
	return &cp
}

// ValidateEndpoint requests the contract's endpoint with params and
// evaluates every enabled rule and filter validation against the response.
func (v *Validator) ValidateEndpoint(
	ctx context.Context,
	contract rules.EndpointContract,
	params map[string]any,
) ValidationResult {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, "contract_validator.validate_endpoint",
		trace.WithAttributes(
			attribute.String("endpoint", contract.Endpoint),
			attribute.String("method", contract.Method),
		))
	defer span.End()

	res := ValidationResult{Endpoint: contract.Endpoint, Method: methodOf(contract)}
	fail := func(err error) ValidationResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Error = err.Error()
		res.DurationMS = time.Since(start).Milliseconds()
		v.logger.Warn(ctx, "endpoint validation failed",
			"endpoint", contract.Endpoint, "method", res.Method, "error", err)
		return res
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("rate limiter: %w", err))
	}

	req, err := v.buildRequest(ctx, res.Method, contract.Endpoint, params)
	if err != nil {
		return fail(err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(fmt.Errorf("reading response: %w", err))
	}

	if !contract.AcceptsStatus(resp.StatusCode) {
		return fail(fmt.Errorf("unexpected status %d, expected one of %v", resp.StatusCode, contract.ResponseCodes))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		doc = string(body)
		span.AddEvent("non_json_response")
	}

	data := v.ValidateData(ctx, contract, doc, params)
	data.StatusCode = res.StatusCode
	data.DurationMS = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Int("rules_checked", data.RulesChecked),
		attribute.Int("violations", len(data.Violations)),
	)
	return data
}

// ValidateData evaluates contract against an already decoded document.
func (v *Validator) ValidateData(
	ctx context.Context,
	contract rules.EndpointContract,
	doc any,
	params map[string]any,
) ValidationResult {
	res := ValidationResult{Endpoint: contract.Endpoint, Method: methodOf(contract)}
	for _, rule := range contract.EnabledRules() {
		_, violations := v.evaluator.Evaluate(ctx, rule, doc, params)
		res.RulesChecked++
		res.Violations = append(res.Violations, violations...)
	}
	res.Passed = len(res.Violations) == 0
	return res
}

// ParamsFunc returns the request parameters to use for a contract.
type ParamsFunc func(rules.EndpointContract) map[string]any

// ValidateAll validates contracts with at most concurrency requests in
// flight. Results are returned in the order of contracts.
func (v *Validator) ValidateAll(
	ctx context.Context,
	contracts []rules.EndpointContract,
	paramsFor ParamsFunc,
	concurrency int,
) []ValidationResult {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]ValidationResult, len(contracts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range contracts {
		g.Go(func() error {
			var params map[string]any
			if paramsFor != nil {
				params = paramsFor(c)
			}
			results[i] = v.ValidateEndpoint(gctx, c, params)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (v *Validator) buildRequest(ctx context.Context, method, endpoint string, params map[string]any) (*http.Request, error) {
	target := v.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead, http.MethodOptions:
		if len(params) > 0 {
			target += "?" + encodeQuery(params)
		}
	default:
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, val := range v.headers {
		req.Header.Set(k, val)
	}
	return req, nil
}

func encodeQuery(params map[string]any) string {
	q := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := params[k].(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			q.Set(k, strings.Join(parts, ","))
		case []string:
			q.Set(k, strings.Join(val, ","))
		default:
			q.Set(k, fmt.Sprint(val))
		}
	}
	return q.Encode()
}

func methodOf(c rules.EndpointContract) string {
	if c.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(c.Method)
}

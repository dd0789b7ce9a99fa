// Package bookkeeper is a client for the book-keeper ledger engine. It
// validates entries locally, forwards idempotency keys untouched and drives
// the two-phase pending entry protocol. The engine owns persistence,
// concurrency control and pending-entry expiry.
package bookkeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
)

const (
	DefaultAPIPrefix = "/api/book-keeper/v1"

	maxBodyBytes = 4 << 20
	tracerName   = "github.com/punchamoorthee/bookkeeper/internal/bookkeeper"
)

// DefaultExpiredStatusCodes are the commit/void failure statuses treated as
// an expired reservation. Engines report expiry inconsistently.
var DefaultExpiredStatusCodes = []int{
	http.StatusBadRequest,
	http.StatusGone,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

var (
	clientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookkeeper_client_requests_total",
		Help: "Ledger engine calls, labeled by operation and response status",
	}, []string{"operation", "status"})

	clientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookkeeper_client_request_duration_seconds",
		Help:    "Latency of ledger engine calls",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})
)

// Client talks to one tenant of a ledger engine. It holds no ledger state
// and is safe for concurrent use.
type Client struct {
	baseURL         string
	tenantID        string
	httpClient      *http.Client
	headers         http.Header
	logger          *zap.Logger
	tracer          trace.Tracer
	propagator      propagation.TextMapPropagator
	now             func() time.Time
	expiredStatuses []int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds each request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout bounds how long the client waits for each reply. It is
// unrelated to the timeout of a pending entry.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithHeaders adds static headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers.Set(k, v)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithPropagator replaces the W3C trace-context propagator used to inject
// headers into outgoing requests.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) { c.propagator = p }
}

// WithClock sets the source of the default entry date.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithExpiredStatusCodes replaces the statuses mapped to ErrExpiredEntry on
// commit and void.
func WithExpiredStatusCodes(statuses ...int) Option {
	return func(c *Client) { c.expiredStatuses = slices.Clone(statuses) }
}

// New builds a client for the engine reachable at host. apiPrefix defaults
// to DefaultAPIPrefix when empty.
func New(host, apiPrefix, tenantID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("bookkeeper: tenant id is required")
	}
	u, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("bookkeeper: invalid host %q", host)
	}
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}

	c := &Client{
		baseURL:         u.String() + "/" + strings.Trim(apiPrefix, "/"),
		tenantID:        tenantID,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		headers:         http.Header{},
		logger:          zap.NewNop(),
		tracer:          otel.Tracer(tracerName),
		propagator:      propagation.TraceContext{},
		now:             time.Now,
		expiredStatuses: DefaultExpiredStatusCodes,
	}
	c.headers.Set("Content-Type", "application/json")
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TenantID is the tenant every request is scoped to.
func (c *Client) TenantID() string { return c.tenantID }

// Receipt is the raw outcome of a successful call.
type Receipt struct {
	StatusCode int
	Body       []byte
}

// request describes one exchange with the engine.
type request struct {
	op       string
	method   string
	path     string
	query    url.Values
	payload  any
	accept   []int
	classify func(status int, body []byte) error
}

func (c *Client) do(ctx context.Context, r request) (Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "bookkeeper."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bookkeeper.tenant_id", c.tenantID),
			attribute.String("http.request.method", r.method),
		))
	defer span.End()

	timer := prometheus.NewTimer(clientRequestDuration.WithLabelValues(r.op))
	defer timer.ObserveDuration()

	target := c.baseURL + "/" + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.payload != nil {
		data, err := json.Marshal(r.payload)
		if err != nil {
			return Receipt{}, fmt.Errorf("%s: encode payload: %w", r.op, err)
		}
		body = bytes.NewReader(data)
		c.logger.Debug("bookkeeper payload", zap.String("operation", r.op), zap.ByteString("payload", data))
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return Receipt{}, fmt.Errorf("%s: build request: %w", r.op, err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Info("bookkeeper request", zap.String("operation", r.op), zap.String("method", r.method), zap.String("url", target))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		clientRequestsTotal.WithLabelValues(r.op, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Error("bookkeeper request failed", zap.String("operation", r.op), zap.Error(err))
		return Receipt{}, &domain.TransportError{Operation: r.op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		clientRequestsTotal.WithLabelValues(r.op, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response")
		return Receipt{}, &domain.TransportError{Operation: r.op, Err: err}
	}

	status := resp.StatusCode
	clientRequestsTotal.WithLabelValues(r.op, strconv.Itoa(status)).Inc()
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if slices.Contains(r.accept, status) {
		c.logger.Info("bookkeeper request succeeded", zap.String("operation", r.op), zap.Int("status", status))
		return Receipt{StatusCode: status, Body: respBody}, nil
	}

	classify := r.classify
	if classify == nil {
		classify = defaultKind
	}
	apiErr := &domain.APIError{Operation: r.op, StatusCode: status, Body: respBody, Kind: classify(status, respBody)}
	span.RecordError(apiErr)
	span.SetStatus(codes.Error, apiErr.Kind.Error())
	c.logger.Error("bookkeeper request rejected",
		zap.String("operation", r.op),
		zap.Int("status", status),
		zap.ByteString("response", respBody))
	return Receipt{}, apiErr
}

func defaultKind(status int, _ []byte) error {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	}
	return domain.ErrRejected
}

// resolutionKind classifies a failed commit or void. Any status in the
// expired set counts as expiry unless the body says the entry was already
// resolved.
func (c *Client) resolutionKind(status int, body []byte) error {
	switch status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	}
	if !slices.Contains(c.expiredStatuses, status) {
		return domain.ErrRejected
	}
	msg := strings.ToLower(string(body))
	if strings.Contains(msg, "expir") || strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") {
		return domain.ErrExpiredEntry
	}
	for _, marker := range []string{"already", "not pending", "committed", "voided"} {
		if strings.Contains(msg, marker) {
			return domain.ErrConflict
		}
	}
	return domain.ErrExpiredEntry
}

func (c *Client) entryDate(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return domain.EntryDateFor(c.now())
}

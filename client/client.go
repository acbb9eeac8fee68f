// Package client dispatches authenticated, workspace-scoped requests to the
// backend. A request rejected with 401 renews the session once and is sent
// again; every failure surfaces as an *apierror.Error.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/credentials"
	"github.com/jrsteele09/go-tenant-client/envelope"
	"github.com/jrsteele09/go-tenant-client/internal/config"
	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/internal/metrics"
	"github.com/jrsteele09/go-tenant-client/sessions"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

const (
	RequestIDHeader = "X-Request-ID"
	jsonContentType = "application/json"
	tracerName      = "github.com/jrsteele09/go-tenant-client/client"
)

// attempt tracks where a logical request is in its retry budget.
type attempt int

const (
	// attemptInitial may renew the session on 401 and retry.
	attemptInitial attempt = iota
	// attemptRetried surfaces any 401 as an error.
	attemptRetried
)

func (a attempt) String() string {
	if a == attemptInitial {
		return "initial"
	}
	return "retried"
}

// Client is the request dispatcher. It is safe for concurrent use; all
// requests share one credential store, tenant context and renewer.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	jar           http.CookieJar
	store         *credentials.Store
	tokens        oauth2.TokenSource
	tenantStorage tenants.Storage
	tenant        *tenants.Context
	renewer       *sessions.Renewer
	renewerOpts   []sessions.RenewerOption
	timeout       time.Duration
	metrics       *metrics.Client
	tracer        trace.Tracer
	logger        zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient sends requests through hc. If hc has no cookie jar one is
// attached to a copy of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCookieJar replaces the cookie jar shared by requests, renewals and
// the tenant context.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

func WithCredentials(store *credentials.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

func WithTenantStorage(storage tenants.Storage) Option {
	return func(c *Client) {
		c.tenantStorage = storage
	}
}

// WithRenewerOptions passes options through to the session renewer.
func WithRenewerOptions(options ...sessions.RenewerOption) Option {
	return func(c *Client) {
		c.renewerOpts = append(c.renewerOpts, options...)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithMetrics(m *metrics.Client) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a dispatcher for baseURL. An empty baseURL falls back to
// config.DefaultBaseURL with a warning.
func New(baseURL string, options ...Option) (*Client, error) {
	c := &Client{
		tracer:  otel.Tracer(tracerName),
		logger:  log.Logger,
		timeout: 30 * time.Second,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "client").Logger()

	if baseURL == "" {
		c.logger.Warn().Str("default", config.DefaultBaseURL).Msg("api base URL not configured, using default")
		baseURL = config.DefaultBaseURL
	}
	normalised, err := config.NormaliseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c.baseURL, _ = url.Parse(normalised)

	if c.jar == nil {
		if c.httpClient != nil && c.httpClient.Jar != nil {
			c.jar = c.httpClient.Jar
		} else if c.jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err != nil {
			return nil, fmt.Errorf("[client New] cookie jar: %w", err)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	} else {
		hc := *c.httpClient
		c.httpClient = &hc
	}
	c.httpClient.Jar = c.jar

	if c.store == nil {
		c.store = credentials.NewMemoryStore(credentials.WithLogger(c.logger))
	}
	c.tokens = credentials.TokenSource(c.store)

	if c.tenantStorage == nil {
		c.tenantStorage = tenants.NewMemoryStorage()
	}
	c.tenant = tenants.NewContext(c.tenantStorage,
		tenants.WithCookieJar(c.jar, c.baseURL),
		tenants.WithLogger(c.logger))

	renewerOpts := append([]sessions.RenewerOption{
		sessions.WithHTTPClient(c.httpClient),
		sessions.WithMetrics(c.metrics),
		sessions.WithLogger(c.logger),
	}, c.renewerOpts...)
	c.renewer = sessions.NewRenewer(normalised, c.store, renewerOpts...)

	return c, nil
}

// NewFromConfig creates a dispatcher from cfg. Callers supply storage
// through options.
func NewFromConfig(cfg config.APIConfig, options ...Option) (*Client, error) {
	options = append([]Option{WithTimeout(cfg.GetTimeout())}, options...)
	return New(cfg.GetBaseURL(), options...)
}

func (c *Client) BaseURL() *url.URL { return c.baseURL }

func (c *Client) Credentials() *credentials.Store { return c.store }

func (c *Client) Tenant() *tenants.Context { return c.tenant }

func (c *Client) Renewer() *sessions.Renewer { return c.renewer }

func (c *Client) CookieJar() http.CookieJar { return c.jar }

// Request sends one logical request and returns the envelope's data, which
// is nil for 204 No Content or a null payload.
func (c *Client) Request(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	prepared, err := Prepare(c.baseURL, path, opts...)
	if err != nil {
		return nil, apierror.InvalidRequest(err)
	}

	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "client.Request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", prepared.Method()),
			attribute.String("url.path", prepared.URL().Path),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	logger := c.logger.With().
		Str("request_id", requestID).
		Str("method", prepared.Method()).
		Str("path", prepared.URL().Path).
		Logger()

	raw, status, err := c.dispatch(ctx, prepared, requestID, logger)
	c.metrics.ObserveRequest(prepared.Method(), status, start)
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Int("status", status).Msg("request failed")
		return nil, err
	}
	return raw, nil
}

func (c *Client) dispatch(ctx context.Context, prepared *Prepared, requestID string, logger zerolog.Logger) (json.RawMessage, int, error) {
	state := attemptInitial
	for {
		req, sentToken, err := c.build(ctx, prepared, requestID)
		if err != nil {
			return nil, 0, apierror.InvalidRequest(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, 0, apierror.Network(err)
		}
		logger.Debug().Stringer("attempt", state).Int("status", resp.StatusCode).Msg("response received")

		if resp.StatusCode == http.StatusUnauthorized && state == attemptInitial && !prepared.SkipAuth() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			if _, err := c.renewer.Renew(ctx, sentToken); err != nil {
				return nil, statusOf(err), err
			}
			c.metrics.IncrementRetry()
			state = attemptRetried
			continue
		}

		raw, err := envelope.Decode(resp)
		return raw, resp.StatusCode, err
	}
}

// build creates the request for one attempt and returns the access token
// it carries, "" when none.
func (c *Client) build(ctx context.Context, prepared *Prepared, requestID string) (*http.Request, string, error) {
	req, err := prepared.Build(ctx, requestID)
	if err != nil {
		return nil, "", err
	}

	tenant, ok := prepared.Tenant()
	if !ok {
		tenant, ok = c.tenant.Get()
	}
	if ok && tenant != "" {
		req.Header.Set(tenants.HeaderName, tenant)
	}

	if prepared.SkipAuth() {
		return req, "", nil
	}
	token, err := c.tokens.Token()
	if errors.Is(err, clienterrors.ErrNotAuthenticated) {
		return req, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	token.SetAuthHeader(req)
	return req, token.AccessToken, nil
}

func statusOf(err error) int {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr.StatusCode
	}
	return 0
}

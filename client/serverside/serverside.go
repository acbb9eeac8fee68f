// Package serverside dispatches backend requests on behalf of an inbound
// HTTP request, typically while rendering a page. The workspace and session
// come from the inbound request's cookies. Nothing is stored and a session
// is never renewed here: a 401 is returned to the caller like any other
// failure.
package serverside

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/client"
	"github.com/jrsteele09/go-tenant-client/envelope"
	"github.com/jrsteele09/go-tenant-client/internal/config"
	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/internal/metrics"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

// AccessTokenCookie is the inbound cookie holding the caller's access
// token.
const AccessTokenCookie = "access_token"

type Dispatcher struct {
	baseURL    *url.URL
	httpClient *http.Client
	metrics    *metrics.Client
	logger     zerolog.Logger
}

type Option func(*Dispatcher)

func WithHTTPClient(hc *http.Client) Option {
	return func(d *Dispatcher) {
		d.httpClient = hc
	}
}

func WithMetrics(m *metrics.Client) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a dispatcher from cfg. Unlike the interactive client there is
// no default origin: a missing base URL is ErrMissingBaseURL.
func New(cfg config.APIConfig, options ...Option) (*Dispatcher, error) {
	baseURL, err := cfg.RequireBaseURL()
	if err != nil {
		return nil, clienterrors.Wrapf(err, "[serverside New]")
	}

	d := &Dispatcher{logger: log.Logger}
	d.baseURL, _ = url.Parse(baseURL)
	for _, opt := range options {
		opt(d)
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: cfg.GetTimeout()}
	}
	d.logger = d.logger.With().Str("component", "serverside").Logger()
	return d, nil
}

// Scoped is a dispatcher bound to one inbound request.
type Scoped struct {
	d           *Dispatcher
	tenant      string
	accessToken string
	cookies     string
}

// ForRequest binds the dispatcher to r: its workspace_id cookie selects the
// workspace, its access_token cookie authorizes the call and all of its
// cookies are forwarded unchanged.
func (d *Dispatcher) ForRequest(r *http.Request) *Scoped {
	s := &Scoped{d: d}
	s.tenant, _ = tenants.FromRequest(r)
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		s.accessToken = c.Value
	}
	s.cookies = strings.Join(r.Header.Values("Cookie"), "; ")
	return s
}

func (s *Scoped) Request(ctx context.Context, path string, opts ...client.RequestOption) (json.RawMessage, error) {
	prepared, err := client.Prepare(s.d.baseURL, path, opts...)
	if err != nil {
		return nil, apierror.InvalidRequest(err)
	}

	start := time.Now()
	requestID := uuid.NewString()
	logger := s.d.logger.With().
		Str("request_id", requestID).
		Str("method", prepared.Method()).
		Str("path", prepared.URL().Path).
		Logger()

	req, err := prepared.Build(ctx, requestID)
	if err != nil {
		return nil, apierror.InvalidRequest(err)
	}
	tenant, ok := prepared.Tenant()
	if !ok {
		tenant = s.tenant
	}
	if tenant != "" {
		req.Header.Set(tenants.HeaderName, tenant)
	}
	if s.accessToken != "" && !prepared.SkipAuth() {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}
	if s.cookies != "" {
		req.Header.Set("Cookie", s.cookies)
	}

	resp, err := s.d.httpClient.Do(req)
	if err != nil {
		s.d.metrics.ObserveRequest(prepared.Method(), 0, start)
		logger.Warn().Err(err).Msg("backend unreachable")
		return nil, apierror.Network(err)
	}
	s.d.metrics.ObserveRequest(prepared.Method(), resp.StatusCode, start)

	raw, err := envelope.Decode(resp)
	if err != nil {
		logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("request failed")
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("request succeeded")
	return raw, nil
}

// Do sends a request and decodes the envelope's data into T.
func Do[T any](ctx context.Context, s *Scoped, path string, opts ...client.RequestOption) (T, error) {
	raw, err := s.Request(ctx, path, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return client.DecodeData[T](raw)
}

// OrEmpty lets a page render an empty state on failure: the zero T plus the
// typed error to show, or v and nil.
func OrEmpty[T any](v T, err error) (T, *apierror.Error) {
	if err == nil {
		return v, nil
	}
	var zero T
	if apiErr, ok := apierror.As(err); ok {
		return zero, apiErr
	}
	return zero, apierror.Network(err)
}

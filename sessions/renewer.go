// Package sessions renews an expired session. Concurrent callers that see
// the same expired access token share one call to the refresh endpoint.
package sessions

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/credentials"
	"github.com/jrsteele09/go-tenant-client/envelope"
	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/internal/metrics"
)

const (
	// RefreshPath is the renewal endpoint, relative to the API base URL.
	RefreshPath = "/auth/refresh"
	// RefreshCookieName carries the stored refresh token to RefreshPath.
	RefreshCookieName = "refresh_token"

	tracerName = "github.com/jrsteele09/go-tenant-client/sessions"
)

// FailureHook is called once for every renewal that fails, however many
// callers were waiting on it.
type FailureHook func(err *apierror.Error)

// Renewer exchanges the stored refresh token for a new pair. At most one
// exchange is in flight at a time.
type Renewer struct {
	baseURL    string
	store      *credentials.Store
	httpClient *http.Client
	group      singleflight.Group
	calls      atomic.Int64
	onFailure  FailureHook
	metrics    *metrics.Client
	tracer     trace.Tracer
	logger     zerolog.Logger
}

type RenewerOption func(*Renewer)

// WithHTTPClient sets the client used for the refresh call. Share the
// dispatcher's client so the call carries the same cookie jar.
func WithHTTPClient(client *http.Client) RenewerOption {
	return func(r *Renewer) {
		r.httpClient = client
	}
}

func WithFailureHook(hook FailureHook) RenewerOption {
	return func(r *Renewer) {
		r.onFailure = hook
	}
}

func WithMetrics(m *metrics.Client) RenewerOption {
	return func(r *Renewer) {
		r.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) RenewerOption {
	return func(r *Renewer) {
		r.logger = logger
	}
}

func NewRenewer(baseURL string, store *credentials.Store, options ...RenewerOption) *Renewer {
	r := &Renewer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		store:      store,
		httpClient: http.DefaultClient,
		tracer:     otel.Tracer(tracerName),
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "renewer").Logger()
	return r
}

// SetFailureHook replaces the failure hook. It must not be called while
// renewals are in flight.
func (r *Renewer) SetFailureHook(hook FailureHook) {
	r.onFailure = hook
}

// Count returns how many times the refresh endpoint has been called.
func (r *Renewer) Count() int64 {
	return r.calls.Load()
}

// Renew returns a fresh pair for a caller whose request was rejected while
// using staleAccessToken. If the store already holds a different access
// token, a renewal has committed since and that pair is returned without
// calling the endpoint. Otherwise the caller joins the in-flight renewal or
// starts one.
//
// The renewal itself is not bound to ctx, so a caller that gives up does
// not fail the renewal for the callers still waiting on it. A caller whose
// ctx ends first gets a network_error wrapping ctx.Err().
func (r *Renewer) Renew(ctx context.Context, staleAccessToken string) (credentials.Pair, error) {
	if pair, ok := r.superseded(staleAccessToken); ok {
		return pair, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(RefreshPath, func() (any, error) {
		if pair, ok := r.superseded(staleAccessToken); ok {
			return pair, nil
		}
		return r.renew(detached, staleAccessToken)
	})

	select {
	case <-ctx.Done():
		return credentials.Pair{}, apierror.Network(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return credentials.Pair{}, res.Err
		}
		return res.Val.(credentials.Pair), nil
	}
}

func (r *Renewer) superseded(staleAccessToken string) (credentials.Pair, bool) {
	pair, ok := r.store.Get()
	if !ok || pair.AccessToken == staleAccessToken {
		return credentials.Pair{}, false
	}
	r.metrics.IncrementRenewal(metrics.RenewalSuperseded)
	r.logger.Debug().Msg("session already renewed, reusing current credentials")
	return pair, true
}

func (r *Renewer) renew(ctx context.Context, staleAccessToken string) (credentials.Pair, error) {
	ctx, span := r.tracer.Start(ctx, "sessions.Renew", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	r.calls.Add(1)
	requestID := uuid.NewString()
	logger := r.logger.With().Str("request_id", requestID).Logger()
	logger.Debug().Msg("renewing session")

	pair, apiErr := r.exchange(ctx, requestID)
	if apiErr != nil {
		span.SetStatus(codes.Error, apiErr.Error())
		span.SetAttributes(attribute.Int("http.response.status_code", apiErr.StatusCode))
		r.metrics.IncrementRenewal(metrics.RenewalFailure)
		logger.Warn().Err(apiErr).Int("status", apiErr.StatusCode).Msg("session renewal failed")
		if r.onFailure != nil {
			r.onFailure(apiErr)
		}
		return credentials.Pair{}, apiErr
	}

	// The store may have been cleared or replaced while the exchange was in
	// flight. Only commit on top of the pair the renewal started from.
	if !r.store.SetIfCurrent(staleAccessToken, pair) {
		r.metrics.IncrementRenewal(metrics.RenewalDiscarded)
		if current, ok := r.store.Get(); ok {
			logger.Debug().Msg("credentials replaced during renewal, using current pair")
			return current, nil
		}
		logger.Info().Msg("signed out during renewal, discarding renewed pair")
		return credentials.Pair{}, signedOut()
	}
	r.metrics.IncrementRenewal(metrics.RenewalSuccess)
	logger.Info().Msg("session renewed")
	return pair, nil
}

func signedOut() *apierror.Error {
	return &apierror.Error{
		Kind:       apierror.KindHTTP,
		StatusCode: http.StatusUnauthorized,
		Code:       apierror.CodeNotAuthenticated,
		Message:    "signed out while the session was being renewed",
		Err:        clienterrors.ErrNotAuthenticated,
	}
}

func (r *Renewer) exchange(ctx context.Context, requestID string) (credentials.Pair, *apierror.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+RefreshPath, http.NoBody)
	if err != nil {
		return credentials.Pair{}, apierror.Network(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if current, ok := r.store.Get(); ok && current.RefreshToken != "" {
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: current.RefreshToken})
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return credentials.Pair{}, apierror.Network(err)
	}

	raw, err := envelope.Decode(resp)
	if err != nil {
		if apiErr, ok := apierror.As(err); ok {
			return credentials.Pair{}, apiErr
		}
		return credentials.Pair{}, apierror.Network(err)
	}
	pair, err := envelope.Unmarshal[credentials.Pair](raw)
	if err != nil || pair.IsZero() {
		return credentials.Pair{}, &apierror.Error{
			Kind:       apierror.KindHTTP,
			StatusCode: resp.StatusCode,
			Code:       apierror.CodeInvalidResponse,
			Message:    "renewal response did not contain a credential pair",
			Err:        err,
		}
	}
	return pair, nil
}

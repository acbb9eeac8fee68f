package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/client"
	"github.com/jrsteele09/go-tenant-client/credentials"
	"github.com/jrsteele09/go-tenant-client/envelope"
	"github.com/jrsteele09/go-tenant-client/internal/metrics"
	"github.com/jrsteele09/go-tenant-client/sessions"
)

type captured struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

// backend records every request and renews a0 to a1 on /auth/refresh.
type backend struct {
	*httptest.Server
	lock         sync.Mutex
	requests     []captured
	refreshHits  atomic.Int64
	refreshDelay time.Duration
	refreshFails bool
	routes       map[string]http.HandlerFunc
}

func newBackend(t *testing.T, routes map[string]http.HandlerFunc, configure ...func(*backend)) *backend {
	t.Helper()
	b := &backend{routes: routes}
	for _, fn := range configure {
		fn(b)
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.lock.Lock()
	b.requests = append(b.requests, captured{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		header: r.Header.Clone(),
		body:   string(body),
	})
	b.lock.Unlock()

	if r.URL.Path == sessions.RefreshPath {
		b.refreshHits.Add(1)
		time.Sleep(b.refreshDelay)
		if b.refreshFails {
			envelope.WriteError(w, http.StatusUnauthorized, "refresh_expired", "session expired", nil)
			return
		}
		envelope.WriteData(w, http.StatusOK, credentials.Pair{AccessToken: "a1", RefreshToken: "r1"})
		return
	}
	if h, ok := b.routes[r.URL.Path]; ok {
		h(w, r)
		return
	}
	envelope.WriteError(w, http.StatusNotFound, "not_found", "no such route", nil)
}

func (b *backend) captured(path string) []captured {
	b.lock.Lock()
	defer b.lock.Unlock()
	var out []captured
	for _, c := range b.requests {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

// requireToken answers 401 unless the request carries "Bearer a1".
func requireToken(data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			envelope.WriteError(w, http.StatusUnauthorized, "token_expired", "access token expired", nil)
			return
		}
		envelope.WriteData(w, http.StatusOK, data)
	}
}

func respond(data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteData(w, http.StatusOK, data)
	}
}

func newClient(t *testing.T, b *backend, options ...client.Option) *client.Client {
	t.Helper()
	c, err := client.New(b.URL, options...)
	require.NoError(t, err)
	return c
}

func signIn(c *client.Client) {
	c.Credentials().Set(credentials.Pair{AccessToken: "a0", RefreshToken: "r0"}, true)
}

func TestRequest_HeaderComposition(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{"/things": respond(map[string]bool{"ok": true})})
	c := newClient(t, b)
	signIn(c)
	c.Tenant().Set("ws-1")

	_, err := c.Request(context.Background(), "/things")
	require.NoError(t, err)

	reqs := b.captured("/things")
	require.Len(t, reqs, 1)
	h := reqs[0].header
	require.Equal(t, "Bearer a0", h.Get("Authorization"))
	require.Equal(t, "ws-1", h.Get("x-workspace-id"))
	require.Equal(t, "application/json", h.Get("Accept"))
	require.NotEmpty(t, h.Get(client.RequestIDHeader))
	require.Empty(t, h.Get("Content-Type"))
	require.Contains(t, h.Get("Cookie"), "workspace_id=ws-1")
}

func TestRequest_NoCredentials(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{"/workspaces": respond([]string{})})
	c := newClient(t, b)

	_, err := c.Request(context.Background(), "/workspaces")
	require.NoError(t, err)

	reqs := b.captured("/workspaces")
	require.Len(t, reqs, 1)
	require.Empty(t, reqs[0].header.Get("Authorization"))
	require.Empty(t, reqs[0].header.Get("x-workspace-id"))
}

type page struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

func TestRequest_TenantScopedPage(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"/workspaces/ws-1/secrets": respond(page{Items: []string{}, Total: 0}),
	})
	c := newClient(t, b)
	signIn(c)
	c.Tenant().Set("ws-1")

	got, err := client.Get[page](context.Background(), c, "/workspaces/ws-1/secrets?page=1")
	require.NoError(t, err)
	require.Equal(t, page{Items: []string{}, Total: 0}, got)

	reqs := b.captured("/workspaces/ws-1/secrets")
	require.Len(t, reqs, 1)
	require.Equal(t, "1", reqs[0].query.Get("page"))
	require.Equal(t, "ws-1", reqs[0].header.Get("x-workspace-id"))
}

func TestRequest_RenewsAndRetriesOnce(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{"/x": requireToken(map[string]int{"y": 1})})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newClient(t, b, client.WithMetrics(m))
	signIn(c)

	got, err := client.Post[map[string]int](context.Background(), c, "/x", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"y": 1}, got)

	pair, ok := c.Credentials().Get()
	require.True(t, ok)
	require.Equal(t, credentials.Pair{AccessToken: "a1", RefreshToken: "r1"}, pair)

	reqs := b.captured("/x")
	require.Len(t, reqs, 2)
	require.Equal(t, "Bearer a0", reqs[0].header.Get("Authorization"))
	require.Equal(t, "Bearer a1", reqs[1].header.Get("Authorization"))
	require.Equal(t, reqs[0].header.Get(client.RequestIDHeader), reqs[1].header.Get(client.RequestIDHeader))
	// The body is sent again on the retry.
	require.JSONEq(t, `{"k":"v"}`, reqs[1].body)

	refresh := b.captured(sessions.RefreshPath)
	require.Len(t, refresh, 1)
	require.Empty(t, refresh[0].header.Get("Authorization"))
	require.Empty(t, refresh[0].body)

	require.Equal(t, float64(1), testutil.ToFloat64(m.RetriesTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(m.RenewalsTotal.WithLabelValues(metrics.RenewalSuccess)))
}

func TestRequest_SecondUnauthorizedIsFinal(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"/x": func(w http.ResponseWriter, r *http.Request) {
			envelope.WriteError(w, http.StatusUnauthorized, "forbidden_forever", "nope", nil)
		},
	})
	c := newClient(t, b)
	signIn(c)

	_, err := c.Request(context.Background(), "/x")
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	require.Equal(t, apierror.KindHTTP, apiErr.Kind)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "forbidden_forever", apiErr.Code)
	require.True(t, apiErr.IsUnauthorized())

	require.Equal(t, int64(1), b.refreshHits.Load())
	require.Len(t, b.captured("/x"), 2)
}

func TestRequest_ConcurrentExpiryRenewsOnce(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{"/x": requireToken(map[string]int{"y": 1})}, func(b *backend) {
		b.refreshDelay = 50 * time.Millisecond
	})
	c := newClient(t, b)
	signIn(c)

	const n = 8
	results := make([]map[string]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Get[map[string]int](context.Background(), c, "/x")
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), b.refreshHits.Load())
	require.Equal(t, int64(1), c.Renewer().Count())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, 1, results[i]["y"])
	}
	for _, req := range b.captured("/x") {
		auth := req.header.Get("Authorization")
		require.True(t, auth == "Bearer a0" || auth == "Bearer a1", auth)
	}
}

func TestRequest_RenewalFailure(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{"/x": requireToken(nil)}, func(b *backend) {
		b.refreshFails = true
	})

	var failures atomic.Int64
	c := newClient(t, b, client.WithRenewerOptions(sessions.WithFailureHook(func(*apierror.Error) {
		failures.Add(1)
	})))
	signIn(c)

	_, err := c.Request(context.Background(), "/x")
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "refresh_expired", apiErr.Code)
	require.Equal(t, int64(1), failures.Load())
	require.Len(t, b.captured("/x"), 1)
}

func TestRequest_SkipAuthNeverRenews(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"/auth/login": func(w http.ResponseWriter, r *http.Request) {
			envelope.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "wrong password", nil)
		},
	})
	c := newClient(t, b)
	signIn(c)

	_, err := c.Request(context.Background(), "/auth/login",
		client.WithMethod(http.MethodPost), client.WithBody(map[string]string{"email": "x"}), client.SkipAuth())
	require.True(t, apierror.HasCode(err, "invalid_credentials"))
	require.Zero(t, b.refreshHits.Load())

	reqs := b.captured("/auth/login")
	require.Len(t, reqs, 1)
	require.Empty(t, reqs[0].header.Get("Authorization"))
}

func TestRequest_EnvelopeUnwrapping(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"/ok": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"statusCode":200,"data":{"ok":true}}`)
		},
		"/missing": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"statusCode":404,"code":"not_found","message":"x"}`)
		},
		"/empty": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	c := newClient(t, b)

	t.Run("success", func(t *testing.T) {
		got, err := client.Get[map[string]bool](context.Background(), c, "/ok")
		require.NoError(t, err)
		require.Equal(t, map[string]bool{"ok": true}, got)
	})

	t.Run("error", func(t *testing.T) {
		_, err := c.Request(context.Background(), "/missing")
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		require.Equal(t, 404, apiErr.StatusCode)
		require.Equal(t, "not_found", apiErr.Code)
		require.Equal(t, "x", apiErr.Message)
	})

	t.Run("no content", func(t *testing.T) {
		raw, err := c.Request(context.Background(), "/empty", client.WithMethod(http.MethodDelete))
		require.NoError(t, err)
		require.Nil(t, raw)

		got, err := client.Delete[*page](context.Background(), c, "/empty")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := client.Get[[]int](context.Background(), c, "/ok")
		require.True(t, apierror.HasCode(err, apierror.CodeInvalidResponse))
	})
}

func TestRequest_ContentType(t *testing.T) {
	type form struct{ field, file string }
	forms := make(chan form, 1)
	b := newBackend(t, map[string]http.HandlerFunc{
		"/upload": respond(nil),
		"/multipart": func(w http.ResponseWriter, r *http.Request) {
			var f form
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				f.field = r.FormValue("name")
				if file, _, err := r.FormFile("file"); err == nil {
					data, _ := io.ReadAll(file)
					f.file = string(data)
				}
			}
			forms <- f
			envelope.WriteData(w, http.StatusOK, nil)
		},
	})
	c := newClient(t, b)
	ctx := context.Background()

	t.Run("json body defaults", func(t *testing.T) {
		_, err := c.Request(ctx, "/upload", client.WithMethod(http.MethodPost), client.WithBody(map[string]int{"a": 1}))
		require.NoError(t, err)
		reqs := b.captured("/upload")
		last := reqs[len(reqs)-1]
		require.Equal(t, "application/json", last.header.Get("Content-Type"))
		require.JSONEq(t, `{"a":1}`, last.body)
	})

	t.Run("caller content type wins", func(t *testing.T) {
		_, err := c.Request(ctx, "/upload",
			client.WithMethod(http.MethodPut),
			client.WithBody(map[string]int{"a": 1}),
			client.WithHeader("Content-Type", "application/merge-patch+json"))
		require.NoError(t, err)
		reqs := b.captured("/upload")
		require.Equal(t, "application/merge-patch+json", reqs[len(reqs)-1].header.Get("Content-Type"))
	})

	t.Run("raw body", func(t *testing.T) {
		_, err := c.Request(ctx, "/upload", client.WithMethod(http.MethodPost), client.WithRawBody(strings.NewReader("hello"), "text/plain"))
		require.NoError(t, err)
		reqs := b.captured("/upload")
		last := reqs[len(reqs)-1]
		require.Equal(t, "text/plain", last.header.Get("Content-Type"))
		require.Equal(t, "hello", last.body)
	})

	t.Run("multipart keeps its boundary", func(t *testing.T) {
		body := client.NewMultipartBody().
			AddField("name", "report").
			AddFile("file", "report.csv", strings.NewReader("a,b\n1,2\n"))
		_, err := c.Request(ctx, "/multipart", client.WithMethod(http.MethodPost), client.WithMultipart(body))
		require.NoError(t, err)

		reqs := b.captured("/multipart")
		require.Len(t, reqs, 1)
		require.True(t, strings.HasPrefix(reqs[0].header.Get("Content-Type"), "multipart/form-data; boundary="))
		f := <-forms
		require.Equal(t, "report", f.field)
		require.Equal(t, "a,b\n1,2\n", f.file)
	})
}

func TestRequest_TenantOverrideAndQuery(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{"/search": respond(nil)})
	c := newClient(t, b)
	c.Tenant().Set("ws-1")

	_, err := c.Request(context.Background(), "/search?q=go",
		client.WithTenant("ws-2"),
		client.WithQuery(url.Values{"page": {"2"}}))
	require.NoError(t, err)

	reqs := b.captured("/search")
	require.Len(t, reqs, 1)
	require.Equal(t, "ws-2", reqs[0].header.Get("x-workspace-id"))
	require.Equal(t, "go", reqs[0].query.Get("q"))
	require.Equal(t, "2", reqs[0].query.Get("page"))
}

func TestRequest_NetworkError(t *testing.T) {
	b := newBackend(t, nil)
	c := newClient(t, b)
	b.Close()

	_, err := c.Request(context.Background(), "/anything")
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	require.True(t, apiErr.IsNetwork())
	require.Equal(t, apierror.CodeNetworkError, apiErr.Code)
	require.Zero(t, apiErr.StatusCode)
}

func TestRequest_InvalidRequestIsNotNetworkError(t *testing.T) {
	b := newBackend(t, nil)
	c := newClient(t, b)

	t.Run("unencodable body", func(t *testing.T) {
		_, err := c.Request(context.Background(), "/things", client.WithMethod(http.MethodPost), client.WithBody(make(chan int)))
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		require.False(t, apiErr.IsNetwork())
		require.Equal(t, apierror.KindRequest, apiErr.Kind)
		require.Equal(t, apierror.CodeInvalidRequest, apiErr.Code)
		require.Zero(t, apiErr.StatusCode)
		require.ErrorContains(t, err, "unsupported type")
	})

	t.Run("unparsable path", func(t *testing.T) {
		_, err := c.Request(context.Background(), "/things/%zz")
		require.True(t, apierror.HasCode(err, apierror.CodeInvalidRequest))
	})

	require.Empty(t, b.captured("/things"))
}

func TestRequest_AbandonedRenewalAfterSignOut(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"/things": requireToken(map[string]string{"id": "t1"}),
	}, func(b *backend) { b.refreshDelay = 200 * time.Millisecond })
	m := metrics.New(prometheus.NewRegistry())
	c := newClient(t, b, client.WithMetrics(m))
	signIn(c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, "/things")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Sign out while the renewal is still in flight.
	c.Credentials().Clear()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RenewalsTotal.WithLabelValues(metrics.RenewalDiscarded)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := c.Credentials().Get()
	require.False(t, ok)
	require.Equal(t, int64(1), b.refreshHits.Load())
}

func TestNew_BaseURL(t *testing.T) {
	c, err := client.New("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", c.BaseURL().String())

	c, err = client.New("https://api.example.com/v1/")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1", c.BaseURL().String())

	_, err = client.New("ftp://example.com")
	require.Error(t, err)
}

func TestPrepare_ResolvesAgainstBasePath(t *testing.T) {
	base, _ := url.Parse("https://api.example.com/v1")
	p, err := client.Prepare(base, "workspaces?page=3")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1/workspaces?page=3", p.URL().String())
	require.Equal(t, http.MethodGet, p.Method())
}

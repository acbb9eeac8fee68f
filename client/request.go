package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// RequestOption configures a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	method      string
	header      http.Header
	query       url.Values
	tenant      string
	hasTenant   bool
	skipAuth    bool
	jsonBody    any
	hasJSON     bool
	rawBody     io.Reader
	contentType string
	multipart   *MultipartBody
}

func WithMethod(method string) RequestOption {
	return func(rc *requestConfig) {
		rc.method = strings.ToUpper(method)
	}
}

// WithBody sends v encoded as JSON.
func WithBody(v any) RequestOption {
	return func(rc *requestConfig) {
		rc.jsonBody = v
		rc.hasJSON = true
	}
}

// WithRawBody sends r as is. An empty contentType falls back to
// application/json.
func WithRawBody(r io.Reader, contentType string) RequestOption {
	return func(rc *requestConfig) {
		rc.rawBody = r
		rc.contentType = contentType
	}
}

// WithMultipart sends a multipart/form-data body. The boundary content type
// is set from the encoded body.
func WithMultipart(body *MultipartBody) RequestOption {
	return func(rc *requestConfig) {
		rc.multipart = body
	}
}

// WithHeader sets a header. A Content-Type set here is never replaced.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		rc.header.Set(key, value)
	}
}

// WithTenant sends id as the workspace instead of the active one.
func WithTenant(id string) RequestOption {
	return func(rc *requestConfig) {
		rc.tenant = id
		rc.hasTenant = true
	}
}

// SkipAuth sends the request without a bearer token. A 401 on such a
// request is returned as is and never triggers session renewal.
func SkipAuth() RequestOption {
	return func(rc *requestConfig) {
		rc.skipAuth = true
	}
}

// WithQuery adds query parameters, merged with any already in the path.
func WithQuery(values url.Values) RequestOption {
	return func(rc *requestConfig) {
		for k, vs := range values {
			for _, v := range vs {
				rc.query.Add(k, v)
			}
		}
	}
}

// MultipartBody collects form fields and files for WithMultipart.
type MultipartBody struct {
	parts []multipartPart
}

type multipartPart struct {
	field    string
	filename string
	value    string
	reader   io.Reader
}

func NewMultipartBody() *MultipartBody {
	return &MultipartBody{}
}

func (m *MultipartBody) AddField(name, value string) *MultipartBody {
	m.parts = append(m.parts, multipartPart{field: name, value: value})
	return m
}

func (m *MultipartBody) AddFile(field, filename string, r io.Reader) *MultipartBody {
	m.parts = append(m.parts, multipartPart{field: field, filename: filename, reader: r})
	return m
}

func (m *MultipartBody) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, part := range m.parts {
		if part.reader == nil {
			if err := w.WriteField(part.field, part.value); err != nil {
				return nil, "", err
			}
			continue
		}
		fw, err := w.CreateFormFile(part.field, part.filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(fw, part.reader); err != nil {
			return nil, "", fmt.Errorf("read %s: %w", part.filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Prepared is a request with its options applied and its body buffered, so
// it can be built and sent more than once. Authorization and the workspace
// header are left to the dispatcher that sends it.
type Prepared struct {
	method      string
	url         *url.URL
	header      http.Header
	body        []byte
	hasBody     bool
	contentType string
	tenant      string
	hasTenant   bool
	skipAuth    bool
}

// Prepare resolves path against baseURL and applies opts. A path may carry
// its own query string.
func Prepare(baseURL *url.URL, path string, opts ...RequestOption) (*Prepared, error) {
	rc := &requestConfig{
		method: http.MethodGet,
		header: make(http.Header),
		query:  make(url.Values),
	}
	for _, opt := range opts {
		opt(rc)
	}

	target, err := resolve(baseURL, path, rc.query)
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		method:    rc.method,
		url:       target,
		header:    rc.header,
		tenant:    rc.tenant,
		hasTenant: rc.hasTenant,
		skipAuth:  rc.skipAuth,
	}

	switch {
	case rc.multipart != nil:
		p.body, p.contentType, err = rc.multipart.encode()
		if err != nil {
			return nil, fmt.Errorf("encode multipart body: %w", err)
		}
		p.hasBody = true
	case rc.rawBody != nil:
		p.body, err = io.ReadAll(rc.rawBody)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		p.contentType = rc.contentType
		if p.contentType == "" {
			p.contentType = jsonContentType
		}
		p.hasBody = true
	case rc.hasJSON:
		p.body, err = json.Marshal(rc.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		p.contentType = jsonContentType
		p.hasBody = true
	}
	return p, nil
}

func (p *Prepared) Method() string { return p.method }

func (p *Prepared) URL() *url.URL { return p.url }

func (p *Prepared) SkipAuth() bool { return p.skipAuth }

// Tenant returns the workspace set with WithTenant, if any.
func (p *Prepared) Tenant() (string, bool) { return p.tenant, p.hasTenant }

// Build creates a fresh *http.Request for one attempt.
func (p *Prepared) Build(ctx context.Context, requestID string) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if p.hasBody {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range p.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if p.hasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", p.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", jsonContentType)
	}
	req.Header.Set(RequestIDHeader, requestID)
	return req, nil
}

func resolve(baseURL *url.URL, path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}

	var target url.URL
	if ref.IsAbs() {
		target = *ref
	} else {
		target = *baseURL
		target.Path = strings.TrimRight(baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
		target.RawPath = ""
		target.RawQuery = ref.RawQuery
		target.Fragment = ""
	}

	if len(query) > 0 {
		merged := target.Query()
		for k, vs := range query {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		target.RawQuery = merged.Encode()
	}
	return &target, nil
}

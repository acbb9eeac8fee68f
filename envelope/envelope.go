// Package envelope decodes the backend's uniform JSON wrapper into either a
// success payload or an *apierror.Error, and writes the same wrapper for
// servers that speak it.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-tenant-client/apierror"
)

// Envelope is the wire shape of every JSON reply from the backend.
//
// Success replies carry Data (and optionally Message / MessageI18n).
// Failure replies carry Code (and optionally Message / MessageI18n / Details).
type Envelope struct {
	// StatusCode mirrors the HTTP status. It may be omitted by the backend;
	// the transport status is used in that case.
	StatusCode int `json:"statusCode,omitempty"`

	// Data is the payload handed to callers on success.
	Data json.RawMessage `json:"data,omitempty"`

	// Message is a human-readable message in the backend's default language.
	Message string `json:"message,omitempty"`

	// MessageI18n holds localized messages keyed by language ("en", "pt").
	MessageI18n map[string]string `json:"message_i18n,omitempty"`

	// Code is the machine-readable error code, e.g. "not_found".
	Code string `json:"code,omitempty"`

	// Details is free-form error context, passed through untouched.
	Details json.RawMessage `json:"details,omitempty"`
}

// Decode reads and closes resp.Body. It returns the envelope's data on a
// 2xx reply, nil for 204 No Content, and an *apierror.Error otherwise.
func Decode(resp *http.Response) (json.RawMessage, error) {
	env, err := DecodeEnvelope(resp)
	if err != nil || env == nil {
		return nil, err
	}
	if isNull(env.Data) {
		return nil, nil
	}
	return env.Data, nil
}

// DecodeEnvelope is Decode for callers that need the statusCode or message
// of a successful reply. A 204 yields a nil envelope and no error.
func DecodeEnvelope(resp *http.Response) (*Envelope, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The connection dropped mid-body; the reply never fully arrived.
		return nil, apierror.Network(fmt.Errorf("read response body: %w", err))
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	body = bytes.TrimSpace(body)

	if len(body) == 0 {
		if ok {
			return &Envelope{StatusCode: resp.StatusCode}, nil
		}
		return nil, apierror.New(resp.StatusCode, apierror.CodeHTTPError, http.StatusText(resp.StatusCode))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if ok {
			return nil, &apierror.Error{
				Kind:       apierror.KindHTTP,
				StatusCode: resp.StatusCode,
				Code:       apierror.CodeInvalidResponse,
				Message:    "response is not a valid envelope",
				Err:        err,
			}
		}
		return nil, &apierror.Error{
			Kind:       apierror.KindHTTP,
			StatusCode: resp.StatusCode,
			Code:       apierror.CodeHTTPError,
			Message:    http.StatusText(resp.StatusCode),
			Err:        err,
		}
	}

	if !ok {
		return nil, ErrorFromEnvelope(&env, resp.StatusCode)
	}
	if env.StatusCode == 0 {
		env.StatusCode = resp.StatusCode
	}
	return &env, nil
}

// ErrorFromEnvelope builds the typed error for a failed reply. The
// envelope's own statusCode wins over the transport status.
func ErrorFromEnvelope(env *Envelope, transportStatus int) *apierror.Error {
	status := env.StatusCode
	if status == 0 {
		status = transportStatus
	}
	code := env.Code
	if code == "" {
		code = apierror.CodeHTTPError
	}
	return &apierror.Error{
		Kind:        apierror.KindHTTP,
		StatusCode:  status,
		Code:        code,
		Message:     env.Message,
		MessageI18n: env.MessageI18n,
		Details:     env.Details,
	}
}

// Unmarshal decodes a data payload into T. An absent payload yields the
// zero value.
func Unmarshal[T any](raw json.RawMessage) (T, error) {
	var v T
	if isNull(raw) {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode data as %T: %w", v, err)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

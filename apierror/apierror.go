// Package apierror defines the single error type surfaced by the API
// client. Every failure a caller can observe, whether the backend was
// unreachable or it rejected the request, is an *Error carrying a Kind
// discriminator, the status code and the backend's machine-readable code.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind distinguishes failures where the backend was never reached from
// failures the backend reported.
type Kind string

const (
	// KindNetwork means the transport never completed (DNS failure,
	// connection refused, timeout, cancelled context). StatusCode is 0.
	KindNetwork Kind = "network_error"

	// KindHTTP means the backend was reached and replied with a non-2xx
	// status, or with a body that could not be understood.
	KindHTTP Kind = "http_error"

	// KindRequest means the request could not be built, e.g. a body that
	// does not encode. Nothing was sent. StatusCode is 0.
	KindRequest Kind = "request_error"
)

// Codes set by the client itself. Backend-supplied codes are passed through
// unchanged.
const (
	CodeNetworkError     = "network_error"
	CodeHTTPError        = "http_error"
	CodeInvalidResponse  = "invalid_response"
	CodeInvalidRequest   = "invalid_request"
	CodeNotAuthenticated = "not_authenticated"
)

// Error is the typed error returned for every failed request.
type Error struct {
	Kind        Kind
	StatusCode  int               // backend status code, 0 for network errors
	Code        string            // machine-readable code, e.g. "not_found"
	Message     string            // backend message, may be empty
	MessageI18n map[string]string // localized messages keyed by language, e.g. "en", "pt"
	Details     json.RawMessage   // backend-supplied details, passed through untouched
	Err         error             // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	if e.Kind == KindNetwork || e.Kind == KindRequest {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", code, e.Err)
		}
		return code
	}
	if e.Message != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, code, e.Message)
	}
	return fmt.Sprintf("api error %d %s", e.StatusCode, code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, and by status code when the target
// sets one. errors.Is(err, &apierror.Error{Code: "not_found"}) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	if t.StatusCode != 0 && t.StatusCode != e.StatusCode {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Code != "" || t.StatusCode != 0 || t.Kind != ""
}

// IsNetwork reports whether the backend was never reached.
func (e *Error) IsNetwork() bool {
	return e.Kind == KindNetwork
}

// IsUnauthorized reports a 401 from the backend. Surfacing one means the
// session could not be renewed and the caller should force a new login.
func (e *Error) IsUnauthorized() bool {
	return e.Kind == KindHTTP && e.StatusCode == http.StatusUnauthorized
}

// LocalizedMessage picks the message to show a user: the requested
// language, then English, then the plain message, then fallback.
func (e *Error) LocalizedMessage(lang, fallback string) string {
	if msg := e.MessageI18n[lang]; msg != "" {
		return msg
	}
	if msg := e.MessageI18n["en"]; msg != "" {
		return msg
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// New creates an http_error with the given status code, code and message.
func New(statusCode int, code, message string) *Error {
	return &Error{Kind: KindHTTP, StatusCode: statusCode, Code: code, Message: message}
}

// Network wraps a transport failure. The cause stays reachable through
// errors.Is/As, so callers can still detect context.DeadlineExceeded.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, StatusCode: 0, Code: CodeNetworkError, Err: err}
}

// InvalidRequest wraps a failure to build a request before anything was
// sent.
func InvalidRequest(err error) *Error {
	return &Error{Kind: KindRequest, StatusCode: 0, Code: CodeInvalidRequest, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode checks if err is an *Error with the given code.
func HasCode(err error, code string) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == code
}

// Message returns the user-facing message for any error: the localized
// backend message for an *Error, fallback for anything else.
func Message(err error, lang, fallback string) string {
	if apiErr, ok := As(err); ok {
		return apiErr.LocalizedMessage(lang, fallback)
	}
	return fallback
}

package client

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/envelope"
)

// Do sends a request and decodes the envelope's data into T.
func Do[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	raw, err := c.Request(ctx, path, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](raw)
}

func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, path, prepend(opts, WithMethod(http.MethodGet))...)
}

func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, path, prepend(opts, WithMethod(http.MethodPost), WithBody(body))...)
}

func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, path, prepend(opts, WithMethod(http.MethodPut), WithBody(body))...)
}

func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, path, prepend(opts, WithMethod(http.MethodPatch), WithBody(body))...)
}

func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, path, prepend(opts, WithMethod(http.MethodDelete))...)
}

// Empty is the type argument for calls whose payload is ignored.
type Empty struct{}

// DecodeData decodes an envelope payload into T, reporting a mismatch as an
// invalid_response error.
func DecodeData[T any](raw []byte) (T, error) {
	return decode[T](raw)
}

func decode[T any](raw []byte) (T, error) {
	v, err := envelope.Unmarshal[T](raw)
	if err != nil {
		return v, &apierror.Error{
			Kind:    apierror.KindHTTP,
			Code:    apierror.CodeInvalidResponse,
			Message: "response data does not match the expected shape",
			Err:     err,
		}
	}
	return v, nil
}

func prepend(opts []RequestOption, first ...RequestOption) []RequestOption {
	return append(first, opts...)
}

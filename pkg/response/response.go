package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/deskline/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Kind string `json:"kind,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data any) {
	c.JSON(http.StatusOK, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Error sends an error response. The HTTP status follows the error's kind.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	e := errcode.From(err)
	c.JSON(StatusOf(e), Response{
		Code: e.Code,
		Msg:  e.Msg,
		Kind: e.KindName(),
	})
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	Error(ctx, c, e)
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(ctx context.Context, c *app.RequestContext, msg string) {
	if msg == "" {
		msg = errcode.ErrUnauthenticated.Msg
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code: errcode.ErrUnauthenticated.Code,
		Msg:  msg,
		Kind: errcode.ErrUnauthenticated.KindName(),
	})
}

// StatusOf maps an error kind to an HTTP status
func StatusOf(e *errcode.Error) int {
	switch e.Kind() {
	case errcode.ErrUnauthenticated:
		return http.StatusUnauthorized
	case errcode.ErrPermissionDenied:
		return http.StatusForbidden
	case errcode.ErrNotFound:
		return http.StatusNotFound
	case errcode.ErrInvalidState:
		return http.StatusConflict
	case errcode.ErrValidation:
		return http.StatusBadRequest
	case errcode.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case errcode.ErrTooManyRequests:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

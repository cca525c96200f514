package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/analytics"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/product"
)

// badRequestError marks malformed input detected by the handlers themselves.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(code)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// statusFor maps a domain error to its HTTP status. Missing entities
// referenced from an order request are the client's fault and map to 400,
// while a missing entity addressed by the URL maps to 404.
func statusFor(err error) int {
	var (
		badReq       *badRequestError
		productLine  *order.ProductNotFoundError
		customerLine *order.CustomerNotFoundError
		stock        *order.InsufficientStockError
		quantity     *order.InvalidQuantityError
		transition   *order.InvalidTransitionError
		status       *order.InvalidStatusError
		validation   *product.ValidationError
	)
	switch {
	case errors.As(err, &badReq),
		errors.As(err, &productLine),
		errors.As(err, &customerLine),
		errors.As(err, &stock),
		errors.As(err, &quantity),
		errors.As(err, &transition),
		errors.As(err, &status),
		errors.As(err, &validation),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, analytics.ErrInvalidRange),
		errors.Is(err, product.ErrUnknownCategory),
		errors.Is(err, product.ErrDuplicateName):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an API error. Unexpected errors are logged and
// hidden behind a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, code, "An internal error occurred")
		return
	}
	writeError(w, code, err.Error())
}

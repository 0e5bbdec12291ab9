package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/forever-store/api/internal/platform/auth"
	"github.com/forever-store/api/internal/platform/httpx"
	"github.com/forever-store/api/internal/platform/requestctx"
	"github.com/forever-store/api/internal/services"
)

const maxOrderRequestBody = 64 * 1024

var requestValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// decodeRequest reads a JSON body into dst and validates it. The returned error is ready to
// be written to the client.
func decodeRequest(r *http.Request, dst any) *httpx.Error {
	if err := httpx.DecodeJSON(r, maxOrderRequestBody, dst); err != nil {
		if errors.Is(err, httpx.ErrEmptyBody) {
			e := httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest)
			return &e
		}
		e := httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest)
		return &e
	}
	if err := requestValidator.Struct(dst); err != nil {
		e := httpx.NewError("invalid_request", validationMessage(err), http.StatusBadRequest)
		return &e
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "request body is invalid"
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt", "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, minimumFor(fe))
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func minimumFor(fe validator.FieldError) string {
	if fe.Tag() == "gt" {
		if n, err := strconv.Atoi(fe.Param()); err == nil {
			return strconv.Itoa(n + 1)
		}
	}
	return fe.Param()
}

// requireIdentity returns the authenticated caller or writes a 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// writeServiceError maps order service errors onto the HTTP error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	code, status := "internal_error", http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidStatus):
		code, status = "invalid_status", http.StatusBadRequest
	case errors.Is(err, services.ErrShipmentDetailsRequired):
		code, status = "shipment_details_required", http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidOrderInput):
		code, status = "invalid_request", http.StatusBadRequest
	case errors.Is(err, services.ErrOrderNotFound):
		code, status = "order_not_found", http.StatusNotFound
	case errors.Is(err, services.ErrTimelineNotFound):
		code, status = "timeline_not_found", http.StatusNotFound
	case errors.Is(err, services.ErrOrderForbidden):
		code, status = "forbidden", http.StatusForbidden
	case errors.Is(err, services.ErrTerminalState):
		code, status = "order_terminal", http.StatusConflict
	case errors.Is(err, services.ErrCancelWindowClosed):
		code, status = "cancel_window_closed", http.StatusConflict
	case errors.Is(err, services.ErrBackwardTransition):
		code, status = "backward_transition", http.StatusConflict
	case errors.Is(err, services.ErrPaymentAlreadyConfirmed):
		code, status = "payment_already_confirmed", http.StatusConflict
	case errors.Is(err, services.ErrPaymentNotSettled):
		code, status = "payment_failed", http.StatusConflict
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code, status = "timeout", http.StatusGatewayTimeout
	case errors.Is(err, services.ErrUnavailable):
		code, status = "unavailable", http.StatusServiceUnavailable
	}

	message := services.Message(err)
	if status >= http.StatusInternalServerError {
		requestctx.Logger(ctx).Error("order request failed", zap.String("code", code), zap.Error(err))
		message = http.StatusText(status)
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// parsePaging reads the page and limit query parameters. Zero means "use the default".
func parsePaging(r *http.Request) (int, int, *httpx.Error) {
	query := r.URL.Query()
	page, err := parseOptionalInt(query.Get("page"))
	if err != nil {
		e := httpx.NewError("invalid_request", "page must be a positive integer", http.StatusBadRequest)
		return 0, 0, &e
	}
	limit, err := parseOptionalInt(query.Get("limit"))
	if err != nil {
		e := httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest)
		return 0, 0, &e
	}
	return page, limit, nil
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("invalid positive integer %q", raw)
	}
	return value, nil
}

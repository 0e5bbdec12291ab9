package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/forever-store/api/internal/repositories"
)

var (
	// ErrInvalidStatus indicates a status label outside the vocabulary.
	ErrInvalidStatus = errors.New("order: invalid status")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrTerminalState indicates the order is Delivered or Cancelled.
	ErrTerminalState = errors.New("order: terminal state")
	// ErrCancelWindowClosed indicates a cancellation at or after the cancel cutoff.
	ErrCancelWindowClosed = errors.New("order: cancel window closed")
	// ErrBackwardTransition indicates a move to a lower-ranked status.
	ErrBackwardTransition = errors.New("order: backward transition")
	// ErrTimelineNotFound indicates an order without timeline entries.
	ErrTimelineNotFound = errors.New("order: timeline not found")
	// ErrTimeout indicates the datastore did not answer within the transaction deadline.
	ErrTimeout = errors.New("order: timeout")
	// ErrUnavailable indicates the datastore is unreachable or contended.
	ErrUnavailable = errors.New("order: unavailable")

	// ErrInvalidOrderInput signals the caller provided invalid data.
	ErrInvalidOrderInput = errors.New("order: invalid input")
	// ErrShipmentDetailsRequired indicates a shipping status without courier details.
	ErrShipmentDetailsRequired = errors.New("order: shipment details required")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrPaymentAlreadyConfirmed indicates an abandon request for a paid order.
	ErrPaymentAlreadyConfirmed = errors.New("order: payment already confirmed")
	// ErrPaymentNotSettled indicates the gateway has not settled the payment.
	ErrPaymentNotSettled = errors.New("order: payment not settled")
)

// OrderError pairs a sentinel with the message shown to the caller.
type OrderError struct {
	Kind    error
	Message string
}

func (e *OrderError) Error() string {
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.Kind
}

func orderError(kind error, format string, args ...any) error {
	return &OrderError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the caller-facing text of err. Errors without one fall back to the
// message of their sentinel kind.
func Message(err error) string {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// mapRepositoryError translates persistence failures into service sentinels. notFound is
// the sentinel reported for a missing document in the calling context.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var oe *OrderError
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable(), repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// rejectionReason labels a rejected update for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrTerminalState):
		return "terminal"
	case errors.Is(err, ErrCancelWindowClosed):
		return "cancel_window"
	case errors.Is(err, ErrBackwardTransition):
		return "backward"
	case errors.Is(err, ErrShipmentDetailsRequired):
		return "shipment_details"
	case errors.Is(err, ErrOrderForbidden):
		return "forbidden"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

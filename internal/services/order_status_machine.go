package services

import (
	domain "github.com/forever-store/api/internal/domain"
)

// ValidateTransition checks a move from current to target against the status flow. Checks
// run in order: unknown target, terminal current status, late cancellation, rank
// regression. An equal-rank move on a non-terminal order is allowed.
func ValidateTransition(current, target domain.OrderStatus) error {
	if !target.IsValid() {
		return orderError(ErrInvalidStatus, "Invalid status %q", target.String())
	}
	if current.IsTerminal() {
		return orderError(ErrTerminalState, "Order is %s. Further changes are not allowed.", current)
	}
	if target == domain.StatusCancelled && current.Rank() >= domain.CancelCutoff.Rank() {
		return orderError(ErrCancelWindowClosed, "Cannot cancel once order is %s or later.", domain.CancelCutoff)
	}
	if target.Rank() < current.Rank() {
		return backwardTransition(current, target)
	}
	return nil
}

func backwardTransition(from, to domain.OrderStatus) error {
	return orderError(ErrBackwardTransition, "Cannot move from %q back to %q", from.String(), to.String())
}

// parseStatus resolves a label or reports it back verbatim.
func parseStatus(label string) (domain.OrderStatus, error) {
	status, ok := domain.ParseOrderStatus(label)
	if !ok {
		return 0, orderError(ErrInvalidStatus, "Invalid status %q", label)
	}
	return status, nil
}

var statusSubjects = map[domain.OrderStatus]string{
	domain.StatusPacking:        "Your order is packed",
	domain.StatusOrderShipped:   "Your order has shipped",
	domain.StatusOutForDelivery: "Your order is out for delivery",
	domain.StatusDelivered:      "Your order has been delivered",
	domain.StatusCancelled:      "Your order has been cancelled",
}

// subjectForStatus returns the customer notification subject line for a status.
func subjectForStatus(status domain.OrderStatus) string {
	if subject, ok := statusSubjects[status]; ok {
		return subject
	}
	return "Order status updated: " + status.String()
}

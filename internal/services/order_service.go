package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/payments"
	"github.com/forever-store/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	defaultOrderListLimit = 10
	defaultMyOrdersLimit  = 20
)

// CheckoutSettings carries the storefront checkout constants. DeliveryCharge is in major
// units of Currency.
type CheckoutSettings struct {
	Currency       string
	DeliveryCharge int64
	FrontendURL    string
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Timeline    TimelineService
	Stock       StockAdjuster
	Payments    PaymentGateways
	UnitOfWork  repositories.UnitOfWork
	Checkout    CheckoutSettings
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Metrics     OrderMetrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	timeline   TimelineService
	stock      StockAdjuster
	payments   PaymentGateways
	unitOfWork repositories.UnitOfWork
	checkout   CheckoutSettings
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	metrics    OrderMetrics
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Timeline == nil {
		return nil, errors.New("order service: timeline service is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock adjuster is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	checkout := deps.Checkout
	checkout.Currency = strings.ToLower(strings.TrimSpace(checkout.Currency))
	if checkout.Currency == "" {
		checkout.Currency = "usd"
	}
	if _, err := minorUnitFactor(checkout.Currency); err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	checkout.FrontendURL = strings.TrimRight(strings.TrimSpace(checkout.FrontendURL), "/")

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		timeline:   deps.Timeline,
		stock:      deps.Stock,
		payments:   deps.Payments,
		unitOfWork: unit,
		checkout:   checkout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		events:  deps.Events,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	order, err := s.buildOrder(cmd)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	provider := gatewayProvider(order.PaymentMethod)
	if provider != "" && s.payments == nil {
		return PlaceOrderResult{}, orderError(ErrInvalidOrderInput, "Payment method %s is not available", order.PaymentMethod)
	}

	settled := order.PaymentMethod.SettledAtPlacement()
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if settled {
			if _, err := s.stock.Apply(txCtx, order.Items); err != nil {
				return err
			}
			order.PaymentConfirmed = true
			order.StockApplied = true
		}
		entry, err := s.timeline.Seed(txCtx, order)
		if err != nil {
			return err
		}
		order.TimelineSeq = entry.Seq
		return mapRepositoryError(s.orders.Insert(txCtx, order), nil)
	})
	if err != nil {
		return PlaceOrderResult{}, mapRepositoryError(err, nil)
	}

	result := PlaceOrderResult{Order: order}
	if provider != "" {
		session, err := s.openCheckout(ctx, provider, order, cmd.IdempotencyKey)
		if err != nil {
			s.discardOrder(ctx, order.ID)
			return PlaceOrderResult{}, err
		}
		if err := s.recordPaymentReference(ctx, order.ID, session.Reference); err != nil {
			s.discardOrder(ctx, order.ID)
			return PlaceOrderResult{}, err
		}
		result.Order.PaymentReference = session.Reference
		result.Checkout = &session
	}

	s.logger(ctx, "order.placed", map[string]any{
		"orderId":       order.ID,
		"userId":        order.UserID,
		"paymentMethod": string(order.PaymentMethod),
		"amount":        order.Amount,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          EventOrderCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status.String(),
		ActorType:     string(domain.ActorSystem),
		PaymentMethod: string(order.PaymentMethod),
		Amount:        order.Amount,
		Currency:      order.Currency,
		AmountDisplay: formatAmount(order.Amount, order.Currency),
		OccurredAt:    order.CreatedAt,
	})

	return result, nil
}

func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	var (
		confirmed      domain.Order
		stockApplied   bool
		afterCancelled bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		stockApplied = false
		afterCancelled = false
		order, err := s.loadOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := checkOwner(order, cmd.UserID); err != nil {
			return err
		}
		afterCancelled = !order.PaymentConfirmed && order.Status == domain.StatusCancelled
		if !order.StockApplied && order.Status != domain.StatusCancelled {
			if _, err := s.stock.Apply(txCtx, order.Items); err != nil {
				return err
			}
			order.StockApplied = true
			stockApplied = true
		}
		if order.PaymentConfirmed && !stockApplied {
			confirmed = order
			return nil
		}
		order.PaymentConfirmed = true
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, nil)
		}
		confirmed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, nil)
	}

	s.logger(ctx, "order.payment.confirmed", map[string]any{
		"orderId":      confirmed.ID,
		"stockApplied": stockApplied,
		"status":       confirmed.Status.String(),
	})
	if afterCancelled {
		// Paid but never fulfilled; operators refund from this log.
		s.logger(ctx, "order.payment.confirmed_after_cancel", map[string]any{
			"orderId":       confirmed.ID,
			"userId":        confirmed.UserID,
			"paymentMethod": string(confirmed.PaymentMethod),
			"amount":        confirmed.Amount,
			"currency":      confirmed.Currency,
		})
	}
	return confirmed, nil
}

func (s *orderService) AbandonPayment(ctx context.Context, cmd AbandonPaymentCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	var removed int
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := checkOwner(order, cmd.UserID); err != nil {
			return err
		}
		if order.PaymentConfirmed {
			return orderError(ErrPaymentAlreadyConfirmed, "Payment already confirmed for this order")
		}
		removed, err = s.timeline.Purge(txCtx, order.ID)
		if err != nil {
			return err
		}
		return mapRepositoryError(s.orders.Delete(txCtx, order.ID), nil)
	})
	if err != nil {
		return mapRepositoryError(err, nil)
	}
	s.logger(ctx, "order.payment.abandoned", map[string]any{
		"orderId":         orderID,
		"timelineRemoved": removed,
	})
	return nil
}

func (s *orderService) VerifyStripe(ctx context.Context, cmd VerifyStripeCommand) (VerifyPaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Order id is required")
	}
	if !cmd.Success {
		if err := s.AbandonPayment(ctx, AbandonPaymentCommand{OrderID: orderID, UserID: cmd.UserID}); err != nil {
			return VerifyPaymentResult{}, err
		}
		return VerifyPaymentResult{OrderID: orderID, Abandoned: true}, nil
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return VerifyPaymentResult{}, err
	}
	if err := checkOwner(order, cmd.UserID); err != nil {
		return VerifyPaymentResult{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodStripe {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Order was not placed with %s", domain.PaymentMethodStripe)
	}

	// The redirect result alone is never trusted: the session recorded at checkout is
	// always looked up.
	reference := order.PaymentReference
	if sessionID := strings.TrimSpace(cmd.SessionID); sessionID != "" && sessionID != reference {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Payment session does not belong to this order")
	}
	if reference == "" {
		return VerifyPaymentResult{}, orderError(ErrPaymentNotSettled, "Payment failed")
	}
	if s.payments == nil {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Payment method %s is not available", domain.PaymentMethodStripe)
	}
	details, err := s.payments.LookupPayment(ctx, payments.ProviderStripe, reference)
	if err != nil {
		return VerifyPaymentResult{}, gatewayError(err)
	}
	if details.OrderID != "" && details.OrderID != orderID {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Payment session does not belong to this order")
	}
	if !details.Paid() {
		return VerifyPaymentResult{}, orderError(ErrPaymentNotSettled, "Payment failed")
	}

	if _, err := s.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: orderID, UserID: cmd.UserID}); err != nil {
		return VerifyPaymentResult{}, err
	}
	return VerifyPaymentResult{OrderID: orderID, Confirmed: true}, nil
}

func (s *orderService) VerifyRazorpay(ctx context.Context, cmd VerifyRazorpayCommand) (VerifyPaymentResult, error) {
	reference := strings.TrimSpace(cmd.RazorpayOrderID)
	if reference == "" {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Razorpay order id is required")
	}
	if s.payments == nil {
		return VerifyPaymentResult{}, orderError(ErrInvalidOrderInput, "Payment method %s is not available", domain.PaymentMethodRazorpay)
	}

	details, err := s.payments.LookupPayment(ctx, payments.ProviderRazorpay, reference)
	if err != nil {
		return VerifyPaymentResult{}, gatewayError(err)
	}
	if !details.Paid() {
		return VerifyPaymentResult{}, orderError(ErrPaymentNotSettled, "Payment failed")
	}
	if details.OrderID == "" {
		return VerifyPaymentResult{}, orderError(ErrOrderNotFound, "Order not found")
	}

	if _, err := s.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: details.OrderID, UserID: cmd.UserID}); err != nil {
		return VerifyPaymentResult{}, err
	}
	return VerifyPaymentResult{OrderID: details.OrderID, Confirmed: true}, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	return s.transition(ctx, transitionRequest{
		orderID: cmd.OrderID,
		status:  cmd.Status,
		note:    cmd.Note,
		actor:   domain.ActorAdmin,
		actorID: cmd.ActorID,
		meta:    cmd.Meta,
	})
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, orderError(ErrOrderForbidden, "You can only cancel your own orders")
	}
	return s.transition(ctx, transitionRequest{
		orderID: cmd.OrderID,
		status:  domain.StatusCancelled.String(),
		note:    cmd.Note,
		actor:   domain.ActorUser,
		actorID: userID,
		ownerID: userID,
	})
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.loadOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, nil)
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, query MyOrdersQuery) (domain.Page[domain.Order], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.Page[domain.Order]{}, orderError(ErrInvalidOrderInput, "User id is required")
	}
	page, limit := normalisePaging(query.Page, query.Limit, defaultMyOrdersLimit)
	result, err := s.orders.List(ctx, repositories.OrderListFilter{UserID: userID, Page: page, Limit: limit})
	if err != nil {
		return domain.Page[domain.Order]{}, mapRepositoryError(err, nil)
	}
	return result, nil
}

func (s *orderService) ListAll(ctx context.Context, query OrderListQuery) (domain.Page[domain.Order], error) {
	filter := repositories.OrderListFilter{}
	if label := strings.TrimSpace(query.Status); label != "" {
		status, ok := domain.ParseOrderStatus(label)
		if !ok {
			return domain.Page[domain.Order]{}, orderError(ErrInvalidStatus, "Invalid status filter")
		}
		filter.Status = &status
	}
	if method := domain.PaymentMethod(strings.TrimSpace(query.PaymentMethod)); method != "" {
		if !method.IsValid() {
			return domain.Page[domain.Order]{}, orderError(ErrInvalidOrderInput, "Invalid payment method %q", string(method))
		}
		filter.PaymentMethod = method
	}
	filter.Page, filter.Limit = normalisePaging(query.Page, query.Limit, defaultOrderListLimit)

	result, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, mapRepositoryError(err, nil)
	}
	return result, nil
}

type transitionRequest struct {
	orderID string
	status  string
	note    string
	actor   domain.ActorType
	actorID string
	ownerID string
	meta    *domain.ShipmentMeta
}

// transition runs the status pipeline in one transaction: read the order, validate, append
// the ledger entry, then write the order. The notification goes out after commit.
func (s *orderService) transition(ctx context.Context, req transitionRequest) (domain.Order, error) {
	order, previous, entry, err := s.applyTransition(ctx, req)
	if err != nil {
		s.metrics.StatusRejected(ctx, rejectionReason(err))
		return domain.Order{}, err
	}

	s.metrics.StatusTransition(ctx, previous.String(), order.Status.String(), string(req.actor))
	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId":        order.ID,
		"previousStatus": previous.String(),
		"status":         order.Status.String(),
		"actorType":      string(req.actor),
		"seq":            entry.Seq,
	})

	event := OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.Status.String(),
		PreviousStatus: previous.String(),
		Subject:        subjectForStatus(order.Status),
		Note:           entry.Note,
		ActorType:      string(entry.ActorType),
		PaymentMethod:  string(order.PaymentMethod),
		Amount:         order.Amount,
		Currency:       order.Currency,
		AmountDisplay:  formatAmount(order.Amount, order.Currency),
		OccurredAt:     entry.CreatedAt,
	}
	if entry.Meta != nil {
		event.Courier = entry.Meta.Courier
		event.AWB = entry.Meta.AWB
		event.Location = entry.Meta.Location
	}
	s.publishEvent(ctx, event)

	return order, nil
}

func (s *orderService) applyTransition(ctx context.Context, req transitionRequest) (domain.Order, domain.OrderStatus, domain.TimelineEntry, error) {
	target, err := parseStatus(req.status)
	if err != nil {
		return domain.Order{}, 0, domain.TimelineEntry{}, err
	}
	orderID := strings.TrimSpace(req.orderID)

	var (
		updated  domain.Order
		previous domain.OrderStatus
		entry    domain.TimelineEntry
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if req.ownerID != "" && order.UserID != req.ownerID {
			return orderError(ErrOrderForbidden, "You can only cancel your own orders")
		}
		if err := ValidateTransition(order.Status, target); err != nil {
			return err
		}

		var meta *domain.ShipmentMeta
		if target.RequiresShipment() {
			meta = sanitizeMeta(req.meta)
			if meta == nil || !meta.Complete() {
				return orderError(ErrShipmentDetailsRequired, "Courier, AWB and location are required for %s", target)
			}
		}

		entry, err = s.timeline.Append(txCtx, AppendTimelineCommand{
			OrderID:   order.ID,
			Status:    target,
			Note:      req.note,
			ActorType: req.actor,
			ActorID:   req.actorID,
			Meta:      meta,
		})
		if err != nil {
			return err
		}

		previous = order.Status
		order.Status = target
		order.TimelineSeq = entry.Seq
		order.UpdatedAt = entry.CreatedAt
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, nil)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, 0, domain.TimelineEntry{}, mapRepositoryError(err, nil)
	}
	return updated, previous, entry, nil
}

func (s *orderService) buildOrder(cmd PlaceOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, orderError(ErrInvalidOrderInput, "User id is required")
	}
	if !cmd.PaymentMethod.IsValid() {
		return domain.Order{}, orderError(ErrInvalidOrderInput, "Invalid payment method %q", string(cmd.PaymentMethod))
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, orderError(ErrInvalidOrderInput, "Order must contain at least one item")
	}
	items := make([]domain.OrderLineItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.Name = strings.TrimSpace(item.Name)
		item.Size = strings.TrimSpace(item.Size)
		switch {
		case item.ProductID == "":
			return domain.Order{}, orderError(ErrInvalidOrderInput, "Item %d: product id is required", i+1)
		case item.Size == "":
			return domain.Order{}, orderError(ErrInvalidOrderInput, "Item %d: size is required", i+1)
		case item.Quantity <= 0:
			return domain.Order{}, orderError(ErrInvalidOrderInput, "Item %d: quantity must be positive", i+1)
		case item.UnitPrice < 0:
			return domain.Order{}, orderError(ErrInvalidOrderInput, "Item %d: price must not be negative", i+1)
		}
		items = append(items, item)
	}
	if cmd.Amount <= 0 {
		return domain.Order{}, orderError(ErrInvalidOrderInput, "Amount must be positive")
	}
	address := cmd.Address
	if strings.TrimSpace(address.Street) == "" || strings.TrimSpace(address.City) == "" {
		return domain.Order{}, orderError(ErrInvalidOrderInput, "Shipping address requires street and city")
	}

	now := s.now()
	return domain.Order{
		ID:            orderIDPrefix + s.newID(),
		UserID:        userID,
		Items:         items,
		Amount:        cmd.Amount,
		Currency:      s.checkout.Currency,
		Address:       address,
		PaymentMethod: cmd.PaymentMethod,
		Status:        domain.StatusOrderPlaced,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *orderService) openCheckout(ctx context.Context, provider string, order domain.Order, idempotencyKey string) (payments.CheckoutSession, error) {
	factor, err := minorUnitFactor(order.Currency)
	if err != nil {
		return payments.CheckoutSession{}, err
	}
	lineItems := make([]payments.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		lineItems = append(lineItems, payments.LineItem{
			Name:     item.Name,
			Amount:   item.UnitPrice,
			Quantity: int64(item.Quantity),
		})
	}
	verifyURL := s.checkout.FrontendURL + "/verify?orderId=" + url.QueryEscape(order.ID)

	session, err := s.payments.CreateCheckout(ctx, provider, payments.CheckoutRequest{
		OrderID:        order.ID,
		Currency:       order.Currency,
		Amount:         order.Amount,
		Items:          lineItems,
		DeliveryCharge: s.checkout.DeliveryCharge * factor,
		SuccessURL:     verifyURL + "&success=true",
		CancelURL:      verifyURL + "&success=false",
		IdempotencyKey: idempotencyKey,
		Metadata:       map[string]string{"userId": order.UserID},
	})
	if err != nil {
		return payments.CheckoutSession{}, gatewayError(err)
	}
	return session, nil
}

// discardOrder removes an order whose gateway session could not be opened.
func (s *orderService) discardOrder(ctx context.Context, orderID string) {
	if err := s.AbandonPayment(ctx, AbandonPaymentCommand{OrderID: orderID}); err != nil {
		s.logger(ctx, "order.discard.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

// recordPaymentReference stores the gateway session on the order so verification can look
// it up without relying on the client.
func (s *orderService) recordPaymentReference(ctx context.Context, orderID, reference string) error {
	if reference == "" {
		return nil
	}
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		order.PaymentReference = reference
		return mapRepositoryError(s.orders.Update(txCtx, order), nil)
	})
	return mapRepositoryError(err, nil)
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, orderError(ErrOrderNotFound, "Order not found")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return domain.Order{}, orderError(ErrOrderNotFound, "Order not found")
		}
		return domain.Order{}, mapRepositoryError(err, nil)
	}
	return order, nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func checkOwner(order domain.Order, userID string) error {
	if userID = strings.TrimSpace(userID); userID != "" && order.UserID != userID {
		return orderError(ErrOrderForbidden, "Order belongs to another customer")
	}
	return nil
}

func gatewayProvider(method domain.PaymentMethod) string {
	switch method {
	case domain.PaymentMethodStripe:
		return payments.ProviderStripe
	case domain.PaymentMethodRazorpay:
		return payments.ProviderRazorpay
	default:
		return ""
	}
}

func gatewayError(err error) error {
	var oe *OrderError
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, payments.ErrInvalidRequest) || errors.Is(err, payments.ErrUnsupportedProvider) {
		return orderError(ErrInvalidOrderInput, "Payment request rejected: %v", err)
	}
	var rzpErr *payments.RazorpayError
	if errors.As(err, &rzpErr) && (rzpErr.StatusCode == http.StatusBadRequest || rzpErr.StatusCode == http.StatusNotFound) {
		return orderError(ErrInvalidOrderInput, "Payment reference rejected by gateway")
	}
	return fmt.Errorf("%w: payment gateway: %v", ErrUnavailable, err)
}

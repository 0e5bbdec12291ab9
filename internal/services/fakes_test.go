package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/payments"
	"github.com/forever-store/api/internal/repositories"
)

type testRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *testRepoError) Error() string       { return e.msg }
func (e *testRepoError) IsNotFound() bool    { return e.notFound }
func (e *testRepoError) IsConflict() bool    { return e.conflict }
func (e *testRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(what string) error {
	return &testRepoError{msg: what + " not found", notFound: true}
}

// memStore backs the order, timeline and product repositories in memory. memUnitOfWork
// serialises transactions and restores a snapshot when the callback fails.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	timeline []domain.TimelineEntry
	products map[string]domain.ProductStock

	updateErr error
	saves     int
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]domain.Order{},
		products: map[string]domain.ProductStock{},
	}
}

func (m *memStore) addProduct(id string, sizes ...domain.SizeStock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = domain.ProductStock{ID: id, Name: id, Sizes: slices.Clone(sizes)}
}

func (m *memStore) stock(id, size string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.products[id].Sizes {
		if s.Size == size {
			return s.Stock
		}
	}
	return -1
}

func (m *memStore) order(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *memStore) entries(orderID string) []domain.TimelineEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TimelineEntry
	for _, e := range m.timeline {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (m *memStore) snapshot() (map[string]domain.Order, []domain.TimelineEntry, map[string]domain.ProductStock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make(map[string]domain.Order, len(m.orders))
	for k, v := range m.orders {
		orders[k] = v
	}
	products := make(map[string]domain.ProductStock, len(m.products))
	for k, v := range m.products {
		v.Sizes = slices.Clone(v.Sizes)
		products[k] = v
	}
	return orders, slices.Clone(m.timeline), products
}

func (m *memStore) restore(orders map[string]domain.Order, timeline []domain.TimelineEntry, products map[string]domain.ProductStock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders, m.timeline, m.products = orders, timeline, products
}

type memUnitOfWork struct {
	store *memStore
	txMu  sync.Mutex
	err   error
}

func (u *memUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if u.err != nil {
		return u.err
	}
	u.txMu.Lock()
	defer u.txMu.Unlock()
	orders, timeline, products := u.store.snapshot()
	if err := fn(ctx); err != nil {
		u.store.restore(orders, timeline, products)
		return err
	}
	return nil
}

type memOrders struct{ *memStore }

func (r memOrders) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return &testRepoError{msg: "exists", conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r memOrders) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.orders[order.ID]; !ok {
		return notFoundErr("order")
	}
	r.orders[order.ID] = order
	return nil
}

func (r memOrders) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, orderID)
	return nil
}

func (r memOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order")
	}
	return order, nil
}

func (r memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Order
	for _, o := range r.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.PaymentMethod != "" && o.PaymentMethod != filter.PaymentMethod {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return domain.Page[domain.Order]{
		Items: pageOf(matched, filter.Page, filter.Limit),
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: len(matched),
	}, nil
}

type memTimeline struct{ *memStore }

func (r memTimeline) Append(_ context.Context, entry domain.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline = append(r.timeline, entry)
	return nil
}

func (r memTimeline) Latest(_ context.Context, orderID string) (domain.TimelineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		latest domain.TimelineEntry
		found  bool
	)
	for _, e := range r.timeline {
		if e.OrderID == orderID && (!found || e.Seq > latest.Seq) {
			latest, found = e, true
		}
	}
	if !found {
		return domain.TimelineEntry{}, notFoundErr("timeline")
	}
	return latest, nil
}

func (r memTimeline) List(_ context.Context, filter repositories.TimelineFilter) (domain.Page[domain.TimelineEntry], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.TimelineEntry
	for _, e := range r.timeline {
		if e.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if filter.Sort == domain.SortDesc {
			return matched[i].Seq > matched[j].Seq
		}
		return matched[i].Seq < matched[j].Seq
	})
	return domain.Page[domain.TimelineEntry]{
		Items: pageOf(matched, filter.Page, filter.Limit),
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: len(matched),
	}, nil
}

func (r memTimeline) DeleteByOrder(_ context.Context, orderID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.timeline[:0:0]
	removed := 0
	for _, e := range r.timeline {
		if e.OrderID == orderID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.timeline = kept
	return removed, nil
}

type memProducts struct{ *memStore }

func (r memProducts) FindStock(_ context.Context, ids []string) (map[string]domain.ProductStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.ProductStock, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			p.Sizes = slices.Clone(p.Sizes)
			out[id] = p
		}
	}
	return out, nil
}

func (r memProducts) SaveStock(_ context.Context, product domain.ProductStock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	product.Sizes = slices.Clone(product.Sizes)
	r.products[product.ID] = product
	r.saves++
	return nil
}

func pageOf[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := min(start+limit, len(items))
	return items[start:end]
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) last() (OrderEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return OrderEvent{}, false
	}
	return c.events[len(c.events)-1], true
}

type captureMetrics struct {
	mu          sync.Mutex
	transitions []string
	rejections  []string
	clamped     int
}

func (m *captureMetrics) StatusTransition(_ context.Context, from, to, actor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to+"@"+actor)
}

func (m *captureMetrics) StatusRejected(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}

func (m *captureMetrics) StockClamped(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clamped++
}

type loggedEvent struct {
	name   string
	fields map[string]any
}

type captureLogs struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (c *captureLogs) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, loggedEvent{name: event, fields: fields})
}

func (c *captureLogs) find(name string) (loggedEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.name == name {
			return e, true
		}
	}
	return loggedEvent{}, false
}

type stubGateways struct {
	createFn func(context.Context, string, payments.CheckoutRequest) (payments.CheckoutSession, error)
	lookupFn func(context.Context, string, string) (payments.PaymentDetails, error)
}

func (s *stubGateways) CreateCheckout(ctx context.Context, provider string, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, provider, req)
	}
	return payments.CheckoutSession{Provider: provider, Reference: "ref_" + req.OrderID}, nil
}

func (s *stubGateways) LookupPayment(ctx context.Context, provider, reference string) (payments.PaymentDetails, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, provider, reference)
	}
	return payments.PaymentDetails{}, errors.New("not implemented")
}

type harness struct {
	store    *memStore
	uow      *memUnitOfWork
	orders   OrderService
	timeline TimelineService
	events   *captureOrderEvents
	metrics  *captureMetrics
	gateways *stubGateways
	logs     *captureLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	h := &harness{
		store:    store,
		uow:      &memUnitOfWork{store: store},
		events:   &captureOrderEvents{},
		metrics:  &captureMetrics{},
		gateways: &stubGateways{},
		logs:     &captureLogs{},
	}

	var (
		clockMu sync.Mutex
		tick    int
		seq     int
	)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ids := func() string {
		clockMu.Lock()
		defer clockMu.Unlock()
		seq++
		return fmt.Sprintf("%04d", seq)
	}

	timeline, err := NewTimelineService(TimelineServiceDeps{
		Orders:      memOrders{store},
		Timeline:    memTimeline{store},
		Clock:       clock,
		IDGenerator: ids,
	})
	if err != nil {
		t.Fatalf("new timeline service: %v", err)
	}
	stock, err := NewStockAdjuster(StockAdjusterDeps{Products: memProducts{store}, Metrics: h.metrics})
	if err != nil {
		t.Fatalf("new stock adjuster: %v", err)
	}
	orders, err := NewOrderService(OrderServiceDeps{
		Orders:      memOrders{store},
		Timeline:    timeline,
		Stock:       stock,
		Payments:    h.gateways,
		UnitOfWork:  h.uow,
		Checkout:    CheckoutSettings{Currency: "usd", DeliveryCharge: 10, FrontendURL: "https://shop.test/"},
		Clock:       clock,
		IDGenerator: ids,
		Events:      h.events,
		Metrics:     h.metrics,
		Logger:      h.logs.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	h.orders = orders
	h.timeline = timeline
	return h
}

func (h *harness) placeOrder(t *testing.T, method domain.PaymentMethod, items ...domain.OrderLineItem) domain.Order {
	t.Helper()
	if len(items) == 0 {
		items = []domain.OrderLineItem{{ProductID: "p1", Name: "Tee", UnitPrice: 2000, Quantity: 2, Size: "M"}}
	}
	result, err := h.orders.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:        "user-1",
		Items:         items,
		Amount:        5000,
		Address:       domain.Address{FirstName: "Ada", Street: "1 Main St", City: "Springfield", Country: "US"},
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return result.Order
}

func (h *harness) update(t *testing.T, orderID, status string, meta *domain.ShipmentMeta) {
	t.Helper()
	if _, err := h.orders.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: orderID,
		Status:  status,
		ActorID: "admin-1",
		Meta:    meta,
	}); err != nil {
		t.Fatalf("update to %s: %v", status, err)
	}
}

var shipment = &domain.ShipmentMeta{Courier: "DHL", AWB: "AWB123", Location: "Hub A"}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/repositories"
)

const (
	timelineEntryIDPrefix = "tle_"

	defaultTimelineLimit = 20
	maxPageLimit         = 100
)

// TimelineServiceDeps bundles collaborators for the timeline service.
type TimelineServiceDeps struct {
	Orders      repositories.OrderRepository
	Timeline    repositories.TimelineRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type timelineService struct {
	orders   repositories.OrderRepository
	timeline repositories.TimelineRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewTimelineService constructs the timeline ledger service.
func NewTimelineService(deps TimelineServiceDeps) (TimelineService, error) {
	if deps.Orders == nil {
		return nil, errors.New("timeline service: order repository is required")
	}
	if deps.Timeline == nil {
		return nil, errors.New("timeline service: timeline repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &timelineService{
		orders:   deps.Orders,
		timeline: deps.Timeline,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *timelineService) Append(ctx context.Context, cmd AppendTimelineCommand) (domain.TimelineEntry, error) {
	if !cmd.Status.IsValid() {
		return domain.TimelineEntry{}, orderError(ErrInvalidStatus, "Invalid status %q", cmd.Status.String())
	}
	entry, err := s.newEntry(cmd)
	if err != nil {
		return domain.TimelineEntry{}, err
	}

	latest, err := s.timeline.Latest(ctx, entry.OrderID)
	switch {
	case err == nil:
		if entry.Status.Rank() < latest.Status.Rank() {
			return domain.TimelineEntry{}, backwardTransition(latest.Status, entry.Status)
		}
		entry.Seq = latest.Seq + 1
	case isRepositoryNotFound(err):
		entry.Seq = 1
	default:
		return domain.TimelineEntry{}, mapRepositoryError(err, nil)
	}

	if err := s.timeline.Append(ctx, entry); err != nil {
		return domain.TimelineEntry{}, mapRepositoryError(err, nil)
	}
	s.logger(ctx, "order.timeline.appended", map[string]any{
		"orderId":   entry.OrderID,
		"status":    entry.Status.String(),
		"seq":       entry.Seq,
		"actorType": string(entry.ActorType),
	})
	return entry, nil
}

func (s *timelineService) Seed(ctx context.Context, order domain.Order) (domain.TimelineEntry, error) {
	entry, err := s.newEntry(AppendTimelineCommand{
		OrderID:   order.ID,
		Status:    domain.StatusOrderPlaced,
		Note:      "Order created",
		ActorType: domain.ActorSystem,
		ActorID:   order.UserID,
	})
	if err != nil {
		return domain.TimelineEntry{}, err
	}
	entry.Seq = 1
	if err := s.timeline.Append(ctx, entry); err != nil {
		return domain.TimelineEntry{}, mapRepositoryError(err, nil)
	}
	return entry, nil
}

func (s *timelineService) List(ctx context.Context, query TimelineQuery) (TimelinePage, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return TimelinePage{}, orderError(ErrInvalidOrderInput, "Order id is required")
	}

	filter := repositories.TimelineFilter{OrderID: orderID, Sort: domain.SortAsc}
	if label := strings.TrimSpace(query.Status); label != "" {
		status, ok := domain.ParseOrderStatus(label)
		if !ok {
			return TimelinePage{}, orderError(ErrInvalidStatus, "Invalid status filter")
		}
		filter.Status = &status
	}
	switch strings.ToLower(strings.TrimSpace(query.Sort)) {
	case "", string(domain.SortAsc):
	case string(domain.SortDesc):
		filter.Sort = domain.SortDesc
	default:
		return TimelinePage{}, orderError(ErrInvalidOrderInput, "Invalid sort %q", query.Sort)
	}
	filter.Page, filter.Limit = normalisePaging(query.Page, query.Limit, defaultTimelineLimit)

	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return TimelinePage{}, s.orderLookupError(err)
	}

	page, err := s.timeline.List(ctx, filter)
	if err != nil {
		return TimelinePage{}, mapRepositoryError(err, nil)
	}
	return TimelinePage{
		OrderID: orderID,
		Page:    filter.Page,
		Limit:   filter.Limit,
		Total:   page.Total,
		Items:   page.Items,
	}, nil
}

func (s *timelineService) Current(ctx context.Context, orderID string) (domain.TimelineEntry, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.TimelineEntry{}, orderError(ErrInvalidOrderInput, "Order id is required")
	}
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return domain.TimelineEntry{}, s.orderLookupError(err)
	}
	entry, err := s.timeline.Latest(ctx, orderID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return domain.TimelineEntry{}, orderError(ErrTimelineNotFound, "No timeline found")
		}
		return domain.TimelineEntry{}, mapRepositoryError(err, nil)
	}
	return entry, nil
}

func (s *timelineService) newEntry(cmd AppendTimelineCommand) (domain.TimelineEntry, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.TimelineEntry{}, orderError(ErrInvalidOrderInput, "Order id is required")
	}
	actor := cmd.ActorType
	if actor == "" {
		actor = domain.ActorSystem
	}
	if !actor.IsValid() {
		return domain.TimelineEntry{}, orderError(ErrInvalidOrderInput, "Invalid actor type %q", string(actor))
	}
	note, err := sanitizeNote(cmd.Note)
	if err != nil {
		return domain.TimelineEntry{}, err
	}
	entry := domain.TimelineEntry{
		ID:        timelineEntryIDPrefix + s.newID(),
		OrderID:   orderID,
		Status:    cmd.Status,
		Note:      note,
		ActorType: actor,
		ActorID:   strings.TrimSpace(cmd.ActorID),
		CreatedAt: s.clock(),
	}
	if meta := sanitizeMeta(cmd.Meta); meta != nil && !meta.IsZero() {
		entry.Meta = meta
	}
	return entry, nil
}

func (s *timelineService) orderLookupError(err error) error {
	if isRepositoryNotFound(err) {
		return orderError(ErrOrderNotFound, "Order not found")
	}
	return mapRepositoryError(err, nil)
}

// normalisePaging applies the default page and limit and caps the limit.
func normalisePaging(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func (s *timelineService) Purge(ctx context.Context, orderID string) (int, error) {
	removed, err := s.timeline.DeleteByOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return 0, mapRepositoryError(err, nil)
	}
	return removed, nil
}

package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/forever-store/api/internal/domain"
	pfirestore "github.com/forever-store/api/internal/platform/firestore"
	"github.com/forever-store/api/internal/repositories"
)

const orderTimelineCollection = "orderTimeline"

// TimelineRepository stores timeline entries in a top-level collection keyed by entry ID,
// queried by orderId and seq.
type TimelineRepository struct {
	base *pfirestore.BaseRepository[timelineDocument]
}

// NewTimelineRepository constructs a Firestore-backed timeline repository.
func NewTimelineRepository(provider *pfirestore.Provider) (*TimelineRepository, error) {
	if provider == nil {
		return nil, errors.New("timeline repository requires firestore provider")
	}
	return &TimelineRepository{base: pfirestore.NewBaseRepository[timelineDocument](provider, orderTimelineCollection)}, nil
}

func (r *TimelineRepository) Append(ctx context.Context, entry domain.TimelineEntry) error {
	return r.base.Create(ctx, entry.ID, newTimelineDocument(entry))
}

func (r *TimelineRepository) Latest(ctx context.Context, orderID string) (domain.TimelineEntry, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("seq", firestore.Desc).Limit(1)
	})
	if err != nil {
		return domain.TimelineEntry{}, err
	}
	if len(docs) == 0 {
		return domain.TimelineEntry{}, pfirestore.NotFound(r.base.Op("latest"), fmt.Sprintf("no timeline for order %s", orderID))
	}
	return docs[0].Data.toDomain(docs[0].ID)
}

func (r *TimelineRepository) List(ctx context.Context, filter repositories.TimelineFilter) (domain.Page[domain.TimelineEntry], error) {
	where := func(q firestore.Query) firestore.Query {
		q = q.Where("orderId", "==", strings.TrimSpace(filter.OrderID))
		if filter.Status != nil {
			q = q.Where("status", "==", filter.Status.String())
		}
		return q
	}

	total, err := r.base.Count(ctx, where)
	if err != nil {
		return domain.Page[domain.TimelineEntry]{}, err
	}

	direction := firestore.Asc
	if filter.Sort == domain.SortDesc {
		direction = firestore.Desc
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("seq", direction)
		if filter.Limit > 0 {
			q = q.Offset(max(filter.Page-1, 0) * filter.Limit).Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.TimelineEntry]{}, err
	}

	items := make([]domain.TimelineEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.Page[domain.TimelineEntry]{}, err
		}
		items = append(items, entry)
	}
	return domain.Page[domain.TimelineEntry]{
		Items: items,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

// DeleteByOrder removes every entry of the order. Inside a transaction all entries are read
// before the first delete.
func (r *TimelineRepository) DeleteByOrder(ctx context.Context, orderID string) (int, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if err := r.base.Delete(ctx, doc.ID); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

type timelineDocument struct {
	OrderID   string                `firestore:"orderId"`
	Seq       int64                 `firestore:"seq"`
	Status    string                `firestore:"status"`
	Note      string                `firestore:"note,omitempty"`
	ActorType string                `firestore:"actorType"`
	ActorID   string                `firestore:"actorId,omitempty"`
	Meta      *shipmentMetaDocument `firestore:"meta,omitempty"`
	CreatedAt time.Time             `firestore:"createdAt"`
}

type shipmentMetaDocument struct {
	Courier  string `firestore:"courier"`
	AWB      string `firestore:"awb"`
	Location string `firestore:"location"`
}

func newTimelineDocument(entry domain.TimelineEntry) timelineDocument {
	doc := timelineDocument{
		OrderID:   entry.OrderID,
		Seq:       entry.Seq,
		Status:    entry.Status.String(),
		Note:      entry.Note,
		ActorType: string(entry.ActorType),
		ActorID:   entry.ActorID,
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if entry.Meta != nil {
		meta := shipmentMetaDocument(*entry.Meta)
		doc.Meta = &meta
	}
	return doc
}

func (d timelineDocument) toDomain(id string) (domain.TimelineEntry, error) {
	status, ok := domain.ParseOrderStatus(d.Status)
	if !ok {
		return domain.TimelineEntry{}, fmt.Errorf("firestore: timeline entry %s has unknown status %q", id, d.Status)
	}
	entry := domain.TimelineEntry{
		ID:        id,
		OrderID:   d.OrderID,
		Seq:       d.Seq,
		Status:    status,
		Note:      d.Note,
		ActorType: domain.ActorType(d.ActorType),
		ActorID:   d.ActorID,
		CreatedAt: d.CreatedAt,
	}
	if d.Meta != nil {
		meta := domain.ShipmentMeta(*d.Meta)
		entry.Meta = &meta
	}
	return entry, nil
}

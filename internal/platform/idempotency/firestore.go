package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/forever-store/api/internal/platform/firestore"
)

const collection = "idempotency_keys"

// FirestoreStore implements Store on the idempotency_keys collection. Reservations run in a
// transaction so two concurrent requests with the same key cannot both win.
type FirestoreStore struct {
	docs *pfirestore.BaseRepository[firestoreRecord]
	uow  *pfirestore.UnitOfWork
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider, uow *pfirestore.UnitOfWork) *FirestoreStore {
	return &FirestoreStore{
		docs: pfirestore.NewBaseRepository[firestoreRecord](provider, collection),
		uow:  uow,
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	id := documentID(key)
	var result Reservation
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := s.docs.Get(ctx, id)
		switch {
		case err == nil:
			if reservation, live, err := classify(doc.Data.toRecord(), fingerprint, now); live || err != nil {
				result = reservation
				return err
			}
		case !isNotFound(err):
			return err
		}
		record := newPendingRecord(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationStateNew, Record: record}
		return s.docs.Set(ctx, id, fromRecord(record))
	})
	return result, err
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := documentID(key)
	return s.uow.RunInTx(ctx, func(ctx context.Context) error {
		record := newPendingRecord(key, fingerprint, now, ttl)
		doc, err := s.docs.Get(ctx, id)
		switch {
		case err == nil:
			if doc.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			record.CreatedAt = doc.Data.CreatedAt
		case !isNotFound(err):
			return err
		}
		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = storedHeaders(resp.Headers)
		record.ResponseBody = resp.Body
		return s.docs.Set(ctx, id, fromRecord(record))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.docs.Delete(ctx, documentID(key))
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	docs, err := s.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expires_at", "<=", now).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := s.docs.Delete(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isNotFound(err error) bool {
	var repoErr interface{ IsNotFound() bool }
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers"`
	ResponseBody    []byte              `firestore:"response_body"`
	CreatedAt       time.Time           `firestore:"created_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func fromRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

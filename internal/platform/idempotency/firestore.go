package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore implements Store with one document per scoped key; reservations are
// transactional so two instances cannot both own a key.
type FirestoreStore struct {
	provider *pfirestore.Provider
	docs     *pfirestore.BaseRepository[firestoreRecord]
}

type firestoreRecord struct {
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header"`
	Body        []byte              `firestore:"body"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		docs:     pfirestore.NewBaseRepository[firestoreRecord](provider, defaultCollection),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, id, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	var (
		state  State
		record Record
	)
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := s.docs.Get(ctx, id)
		switch {
		case err == nil:
			existing := doc.Data.toRecord()
			st, err := classify(existing, fingerprint, now)
			if err != nil {
				return err
			}
			if st != StateNew {
				state, record = st, existing
				return nil
			}
		case !isNotFound(err):
			return err
		}

		record = newPending(fingerprint, now, ttl)
		state = StateNew
		_, err = s.docs.Set(ctx, id, fromRecord(record))
		return err
	})
	if err != nil {
		return 0, Record{}, err
	}
	return state, record, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, id, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	record := newPending(fingerprint, now, ttl)
	record.Completed = true
	record.Status = resp.Status
	record.Header = replayableHeader(resp.Header)
	record.Body = resp.Body
	_, err := s.docs.Set(ctx, id, fromRecord(record))
	return err
}

func (s *FirestoreStore) Release(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, id); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range expired {
		if err := s.docs.Delete(ctx, doc.ID); err != nil && !isNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func fromRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		Header:      r.Header,
		Body:        r.Body,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		Header:      http.Header(r.Header),
		Body:        r.Body,
		ExpiresAt:   r.ExpiresAt,
	}
}

func isNotFound(err error) bool {
	var classified interface{ IsNotFound() bool }
	return errors.As(err, &classified) && classified.IsNotFound()
}

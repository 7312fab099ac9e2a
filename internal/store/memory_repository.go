/**
 * @description
 * In-memory implementation of the `Repository` interface. It backs the unit
 * tests and lets the server run locally without PostgreSQL (DATABASE_URL
 * unset). It honors the same compare-and-set semantics as the PostgreSQL
 * implementation: a submission leaves pending exactly once, guarded by the
 * repository mutex.
 */
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivanod1994/camfinder-server/internal/domain"
)

// MemoryRepository keeps all state in process memory behind a single mutex.
type MemoryRepository struct {
	mu          sync.Mutex
	records     map[string]*domain.SubscriptionRecord
	submissions map[uuid.UUID]*domain.PaymentSubmission
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records:     make(map[string]*domain.SubscriptionRecord),
		submissions: make(map[uuid.UUID]*domain.PaymentSubmission),
	}
}

func (r *MemoryRepository) EnsureRecord(ctx context.Context, deviceID string, freeQuota int) (*domain.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := r.records[deviceID]
	if !ok {
		rec = &domain.SubscriptionRecord{
			DeviceID:  deviceID,
			FreeLeft:  freeQuota,
			CreatedAt: now,
		}
		r.records[deviceID] = rec
	}
	rec.LastSeen = now

	copied := *rec
	return &copied, nil
}

func (r *MemoryRepository) GetRecord(ctx context.Context, deviceID string) (*domain.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *MemoryRepository) ListRecords(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]domain.SubscriptionRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeen.After(records[j].LastSeen)
	})
	return records, nil
}

func (r *MemoryRepository) DeleteRecord(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[deviceID]; !ok {
		return ErrDeviceNotFound
	}
	delete(r.records, deviceID)
	return nil
}

func (r *MemoryRepository) AdjustFreeAttempts(ctx context.Context, deviceID string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return 0, ErrDeviceNotFound
	}
	rec.FreeLeft += delta
	if rec.FreeLeft < 0 {
		rec.FreeLeft = 0
	}
	rec.LastSeen = time.Now().UTC()
	return rec.FreeLeft, nil
}

func (r *MemoryRepository) SetFreeAttempts(ctx context.Context, deviceID string, count int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return 0, ErrDeviceNotFound
	}
	if count < 0 {
		count = 0
	}
	rec.FreeLeft = count
	return rec.FreeLeft, nil
}

func (r *MemoryRepository) InsertSubmission(ctx context.Context, sub *domain.PaymentSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *sub
	r.submissions[sub.ID] = &copied
	return nil
}

func (r *MemoryRepository) GetSubmission(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.submissions[paymentID]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *MemoryRepository) ListSubmissionsByStatus(ctx context.Context, status string) ([]domain.PaymentSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []domain.PaymentSubmission
	for _, sub := range r.submissions {
		if sub.Status == status {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (r *MemoryRepository) UpdateSubmissionStatus(ctx context.Context, paymentID uuid.UUID, newStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.transitionLocked(paymentID, newStatus)
}

// transitionLocked applies the pending-only compare-and-set. Callers hold r.mu.
func (r *MemoryRepository) transitionLocked(paymentID uuid.UUID, newStatus string) error {
	sub, ok := r.submissions[paymentID]
	if !ok {
		return ErrSubmissionNotFound
	}
	if sub.Status != domain.SubmissionPending {
		return ErrSubmissionNotPending
	}
	sub.Status = newStatus
	return nil
}

func (r *MemoryRepository) ApproveSubmissionAndExtend(ctx context.Context, paymentID uuid.UUID, deviceID string, months int) (*domain.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionLocked(paymentID, domain.SubmissionApproved); err != nil {
		return nil, err
	}
	return r.extendLocked(deviceID, months, false), nil
}

func (r *MemoryRepository) ExtendSubscription(ctx context.Context, deviceID string, months int, dev bool) (*domain.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.extendLocked(deviceID, months, dev), nil
}

// extendLocked mirrors the PostgreSQL extend path. Callers hold r.mu.
func (r *MemoryRepository) extendLocked(deviceID string, months int, dev bool) *domain.SubscriptionRecord {
	now := time.Now().UTC()
	rec, ok := r.records[deviceID]
	if !ok {
		rec = &domain.SubscriptionRecord{DeviceID: deviceID, CreatedAt: now}
		r.records[deviceID] = rec
	}

	newUntil := domain.ExtendedExpiry(rec.ActiveUntil, months, now)
	rec.ActiveUntil = &newUntil
	rec.DevFlag = rec.DevFlag || dev
	rec.LastSeen = now

	copied := *rec
	until := newUntil
	copied.ActiveUntil = &until
	return &copied
}

func (r *MemoryRepository) RevokeSubscription(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[deviceID]; ok {
		rec.ActiveUntil = nil
		rec.DevFlag = false
	}
	return nil
}

func (r *MemoryRepository) ListLapsedBetween(ctx context.Context, since, until time.Time) ([]domain.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lapsed []domain.SubscriptionRecord
	for _, rec := range r.records {
		if rec.ActiveUntil == nil {
			continue
		}
		if rec.ActiveUntil.After(since) && !rec.ActiveUntil.After(until) {
			lapsed = append(lapsed, *rec)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool {
		return lapsed[i].ActiveUntil.Before(*lapsed[j].ActiveUntil)
	})
	return lapsed, nil
}

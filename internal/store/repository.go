/**
 * @description
 * This file defines the `Repository` interface: the contract for all durable
 * state the camfinder server keeps. The application layer depends only on
 * this interface, which keeps the business logic independent of PostgreSQL
 * and testable against the in-memory implementation.
 *
 * Methods that must be atomic (approve-and-extend, the dev-path extension)
 * are single repository operations: the implementation owns the transaction
 * so that a partial failure can never leave an approved-but-unactivated or
 * activated-but-still-pending submission behind.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ivanod1994/camfinder-server/internal/domain"
)

var (
	ErrDeviceNotFound       = errors.New("device not found")
	ErrSubmissionNotFound   = errors.New("payment submission not found")
	ErrSubmissionNotPending = errors.New("payment submission is not pending")
	ErrInternal             = errors.New("storage failure")
)

// Repository defines the set of methods for interacting with durable state.
type Repository interface {
	// Device / subscription record methods.
	// EnsureRecord creates the record on first touch (with the given free
	// attempt quota) and refreshes last_seen on every subsequent touch.
	EnsureRecord(ctx context.Context, deviceID string, freeQuota int) (*domain.SubscriptionRecord, error)
	GetRecord(ctx context.Context, deviceID string) (*domain.SubscriptionRecord, error)
	ListRecords(ctx context.Context) ([]domain.SubscriptionRecord, error)
	DeleteRecord(ctx context.Context, deviceID string) error

	// Free attempt counters. AdjustFreeAttempts applies a delta with a floor
	// of zero and returns the resulting count; SetFreeAttempts overwrites it.
	AdjustFreeAttempts(ctx context.Context, deviceID string, delta int) (int, error)
	SetFreeAttempts(ctx context.Context, deviceID string, count int) (int, error)

	// Payment submission methods.
	InsertSubmission(ctx context.Context, sub *domain.PaymentSubmission) error
	GetSubmission(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentSubmission, error)
	ListSubmissionsByStatus(ctx context.Context, status string) ([]domain.PaymentSubmission, error)

	// UpdateSubmissionStatus moves a submission out of pending. The update is
	// conditioned on the current status still being pending; a lost race
	// returns ErrSubmissionNotPending.
	UpdateSubmissionStatus(ctx context.Context, paymentID uuid.UUID, newStatus string) error

	// ApproveSubmissionAndExtend marks the submission approved and extends the
	// device's subscription in one transaction. Exactly one of two racing
	// calls for the same pending submission succeeds.
	ApproveSubmissionAndExtend(ctx context.Context, paymentID uuid.UUID, deviceID string, months int) (*domain.SubscriptionRecord, error)

	// ExtendSubscription extends a device's expiry without a backing
	// submission (manual/comp activation). dev marks the record's dev flag.
	ExtendSubscription(ctx context.Context, deviceID string, months int, dev bool) (*domain.SubscriptionRecord, error)

	// RevokeSubscription unconditionally clears the device's expiry and dev
	// flag. Revoking an absent or already-revoked device is a no-op.
	RevokeSubscription(ctx context.Context, deviceID string) error

	// ListLapsedBetween returns records whose expiry fell inside the window
	// (since, until]. Used by the lapse sweep to emit notification events.
	ListLapsedBetween(ctx context.Context, since, until time.Time) ([]domain.SubscriptionRecord, error)
}

/**
 * @description
 * This file contains the core business logic of the camfinder server: the
 * subscription ledger (status, extension, revocation) and the payment
 * submission workflow (submit, list, activate, reject). The Service layer
 * validates input, orchestrates the repository and publishes lifecycle
 * events; durable state and the atomicity of the approve-and-extend step
 * live in the repository.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ivanod1994/camfinder-server/internal/domain"
	"github.com/ivanod1994/camfinder-server/internal/store"
	"github.com/ivanod1994/camfinder-server/pkg/rabbitmq"
)

var (
	ErrMissingDeviceID = errors.New("device_id must not be empty")
	ErrMissingTx       = errors.New("tx must not be empty")
	ErrInvalidMonths   = errors.New("months must be a positive integer")
	ErrDeviceMismatch  = errors.New("submission belongs to a different device")
)

// Service provides the business logic for subscription management.
type Service struct {
	repo      store.Repository
	events    rabbitmq.Publisher
	logger    *slog.Logger
	freeQuota int
}

// NewService creates a new subscription service. freeQuota is the number of
// free attempts granted to a device when its record is first created.
func NewService(repo store.Repository, events rabbitmq.Publisher, logger *slog.Logger, freeQuota int) *Service {
	return &Service{
		repo:      repo,
		events:    events,
		logger:    logger,
		freeQuota: freeQuota,
	}
}

// SubmitRequest carries a device's claim of payment. Plan, Comment, Amount
// and Currency are optional and informational only.
type SubmitRequest struct {
	DeviceID string
	Tx       string
	Plan     *string
	Comment  *string
	Amount   *int64
	Currency *string
}

// ActivateRequest describes an admin activation. A nil PaymentID selects the
// manual/comp path; Months defaults to 1 when zero.
type ActivateRequest struct {
	PaymentID *uuid.UUID
	DeviceID  string
	Months    int
	Dev       bool
}

// RegisterDevice creates the device record on first contact and refreshes
// last_seen afterwards.
func (s *Service) RegisterDevice(ctx context.Context, deviceID string) (*domain.SubscriptionRecord, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	return s.repo.EnsureRecord(ctx, deviceID, s.freeQuota)
}

// GetStatus answers a device's subscription query. The record is created
// lazily on first touch; the subscription state itself is computed from
// active_until and never mutated by a read.
func (s *Service) GetStatus(ctx context.Context, deviceID string) (*domain.DeviceStatus, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}

	rec, err := s.repo.EnsureRecord(ctx, deviceID, s.freeQuota)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	status := &domain.DeviceStatus{
		DeviceID:   rec.DeviceID,
		Subscribed: rec.Subscribed(now),
		FreeLeft:   rec.FreeLeft,
	}
	if status.Subscribed {
		status.ActiveUntil = rec.ActiveUntil
	}
	status.Locked = !status.Subscribed && rec.FreeLeft == 0
	return status, nil
}

// ConsumeFreeAttempts deducts free attempts from a device, flooring at zero,
// and returns the remaining count. consumed defaults to 1.
func (s *Service) ConsumeFreeAttempts(ctx context.Context, deviceID string, consumed int) (int, error) {
	if deviceID == "" {
		return 0, ErrMissingDeviceID
	}
	if consumed <= 0 {
		consumed = 1
	}
	return s.repo.AdjustFreeAttempts(ctx, deviceID, -consumed)
}

// Submit files a payment submission for admin review and returns its id.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.PaymentSubmission, error) {
	if req.DeviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if req.Tx == "" {
		return nil, ErrMissingTx
	}

	sub := &domain.PaymentSubmission{
		ID:        uuid.New(),
		DeviceID:  req.DeviceID,
		Tx:        req.Tx,
		Plan:      req.Plan,
		Comment:   req.Comment,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    domain.SubmissionPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertSubmission(ctx, sub); err != nil {
		return nil, err
	}

	s.publish(ctx, rabbitmq.RoutingKeySubmissionReceived, rabbitmq.SubscriptionEvent{
		EventID:   uuid.New(),
		DeviceID:  sub.DeviceID,
		PaymentID: &sub.ID,
		Timestamp: sub.CreatedAt,
	})
	return sub, nil
}

// ListPending returns all pending submissions, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]domain.PaymentSubmission, error) {
	return s.repo.ListSubmissionsByStatus(ctx, domain.SubmissionPending)
}

// Activate extends a device's subscription. With a payment id the backing
// submission is approved in the same transaction that extends the ledger;
// without one this is a manual/comp activation that marks the dev flag.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*domain.ActivationResult, error) {
	if req.DeviceID == "" {
		return nil, ErrMissingDeviceID
	}
	months := req.Months
	if months == 0 {
		months = 1
	}
	if months < 0 {
		return nil, ErrInvalidMonths
	}

	var rec *domain.SubscriptionRecord
	if req.PaymentID != nil {
		sub, err := s.repo.GetSubmission(ctx, *req.PaymentID)
		if err != nil {
			return nil, err
		}
		if sub.Status != domain.SubmissionPending {
			return nil, store.ErrSubmissionNotPending
		}
		// Checked before any mutation so a mismatch changes nothing.
		if sub.DeviceID != req.DeviceID {
			return nil, ErrDeviceMismatch
		}

		rec, err = s.repo.ApproveSubmissionAndExtend(ctx, *req.PaymentID, req.DeviceID, months)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		rec, err = s.repo.ExtendSubscription(ctx, req.DeviceID, months, req.Dev)
		if err != nil {
			return nil, err
		}
	}

	s.publish(ctx, rabbitmq.RoutingKeySubscriptionActive, rabbitmq.SubscriptionEvent{
		EventID:     uuid.New(),
		DeviceID:    req.DeviceID,
		PaymentID:   req.PaymentID,
		ActiveUntil: rec.ActiveUntil,
		Dev:         req.Dev,
		Timestamp:   time.Now().UTC(),
	})

	return &domain.ActivationResult{
		DeviceID:    rec.DeviceID,
		ActiveUntil: *rec.ActiveUntil,
	}, nil
}

// Reject moves a pending submission to rejected. The ledger is untouched.
func (s *Service) Reject(ctx context.Context, paymentID uuid.UUID) error {
	if err := s.repo.UpdateSubmissionStatus(ctx, paymentID, domain.SubmissionRejected); err != nil {
		return err
	}

	s.publish(ctx, rabbitmq.RoutingKeySubmissionRejected, rabbitmq.SubscriptionEvent{
		EventID:   uuid.New(),
		PaymentID: &paymentID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Revoke unconditionally clears a device's subscription. Idempotent.
func (s *Service) Revoke(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}
	if err := s.repo.RevokeSubscription(ctx, deviceID); err != nil {
		return err
	}

	s.publish(ctx, rabbitmq.RoutingKeySubscriptionRevoked, rabbitmq.SubscriptionEvent{
		EventID:   uuid.New(),
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// ListDevices returns every device record, most recently seen first.
func (s *Service) ListDevices(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	return s.repo.ListRecords(ctx)
}

// DeleteDevice removes a device record entirely.
func (s *Service) DeleteDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}
	return s.repo.DeleteRecord(ctx, deviceID)
}

// SetFreeAttempts overwrites a device's free attempt counter (admin reset or
// grant).
func (s *Service) SetFreeAttempts(ctx context.Context, deviceID string, count int) (int, error) {
	if deviceID == "" {
		return 0, ErrMissingDeviceID
	}
	return s.repo.SetFreeAttempts(ctx, deviceID, count)
}

// publish sends a lifecycle event. Event delivery is best effort: a broker
// failure is logged but never fails the request that triggered it.
func (s *Service) publish(ctx context.Context, routingKey string, event rabbitmq.SubscriptionEvent) {
	if err := s.events.Publish(ctx, rabbitmq.SubscriptionExchange, routingKey, event); err != nil {
		s.logger.Warn("failed to publish subscription event",
			"routing_key", routingKey,
			"device_id", event.DeviceID,
			"error", err,
		)
	}
}

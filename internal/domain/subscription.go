/**
 * @description
 * This file defines the core domain models for the camfinder server: the
 * per-device subscription record and the payment submission a device files
 * when it claims to have paid. It also contains the DTO shapes returned to
 * API clients.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission statuses. A submission starts pending and moves exactly once to
// approved or rejected; terminal statuses are never changed afterwards.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// SubscriptionRecord is the authoritative subscription state of one device.
// A record is created lazily the first time a device is seen; it is only
// removed by an explicit admin delete.
type SubscriptionRecord struct {
	DeviceID    string     `json:"device_id"`
	ActiveUntil *time.Time `json:"active_until,omitempty"` // nil = never subscribed or revoked
	DevFlag     bool       `json:"dev_flag"`               // set when activated via the manual/comp path
	FreeLeft    int        `json:"free_left"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeen    time.Time  `json:"last_seen"`
}

// Subscribed reports whether the record is active at the given instant.
// Activity is computed from active_until, never stored.
func (r *SubscriptionRecord) Subscribed(now time.Time) bool {
	return r.ActiveUntil != nil && r.ActiveUntil.After(now)
}

// PaymentSubmission is a device's claim of having made a payment, awaiting
// admin review. Amount and currency are informational only; the server never
// verifies them against a payment gateway.
type PaymentSubmission struct {
	ID        uuid.UUID `json:"payment_id"`
	DeviceID  string    `json:"device_id"`
	Tx        string    `json:"tx"`
	Plan      *string   `json:"plan,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	Amount    *int64    `json:"amount,omitempty"`
	Currency  *string   `json:"currency,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceStatus is the DTO returned to a device asking about its subscription.
type DeviceStatus struct {
	DeviceID    string     `json:"device_id"`
	Subscribed  bool       `json:"subscribed"`
	ActiveUntil *time.Time `json:"active_until"`
	FreeLeft    int        `json:"free_left"`
	Locked      bool       `json:"locked"` // no subscription and no free attempts left
}

// ActivationResult is returned after a successful activation, whether backed
// by an approved submission or granted via the dev path.
type ActivationResult struct {
	DeviceID    string    `json:"device_id"`
	ActiveUntil time.Time `json:"active_until"`
}

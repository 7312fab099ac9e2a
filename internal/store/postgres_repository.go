/**
 * @description
 * PostgreSQL implementation of the `Repository` interface, built on pgx.
 * All multi-step mutations run inside explicit transactions with row-level
 * locks, and transient serialization failures are retried once with a fresh
 * transaction before being surfaced as ErrInternal.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and transaction API.
 * - internal/domain: domain models and the expiry arithmetic.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivanod1994/camfinder-server/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the tables and indexes the server needs. It is safe to run
// on every startup.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		active_until TIMESTAMPTZ,
		dev_flag BOOLEAN NOT NULL DEFAULT false,
		free_left INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen);
	CREATE INDEX IF NOT EXISTS idx_devices_active_until ON devices(active_until);

	CREATE TABLE IF NOT EXISTS payment_submissions (
		id UUID PRIMARY KEY,
		device_id TEXT NOT NULL,
		tx TEXT NOT NULL,
		plan TEXT,
		comment TEXT,
		amount BIGINT,
		currency TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_status ON payment_submissions(status);
	CREATE INDEX IF NOT EXISTS idx_submissions_device ON payment_submissions(device_id);
	`

	_, err := r.db.Exec(ctx, query)
	return err
}

const recordColumns = `device_id, active_until, dev_flag, free_left, created_at, last_seen`

func scanRecord(row pgx.Row) (*domain.SubscriptionRecord, error) {
	var rec domain.SubscriptionRecord
	err := row.Scan(
		&rec.DeviceID,
		&rec.ActiveUntil,
		&rec.DevFlag,
		&rec.FreeLeft,
		&rec.CreatedAt,
		&rec.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnsureRecord creates the device record on first touch and refreshes
// last_seen on every later one.
func (r *PostgresRepository) EnsureRecord(ctx context.Context, deviceID string, freeQuota int) (*domain.SubscriptionRecord, error) {
	query := `
		INSERT INTO devices (device_id, free_left)
		VALUES ($1, $2)
		ON CONFLICT (device_id) DO UPDATE SET last_seen = NOW()
		RETURNING ` + recordColumns
	return scanRecord(r.db.QueryRow(ctx, query, deviceID, freeQuota))
}

// GetRecord retrieves a device record without touching last_seen.
func (r *PostgresRepository) GetRecord(ctx context.Context, deviceID string) (*domain.SubscriptionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM devices WHERE device_id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListRecords returns every device record, most recently seen first.
func (r *PostgresRepository) ListRecords(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM devices ORDER BY last_seen DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SubscriptionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteRecord removes a device record entirely.
func (r *PostgresRepository) DeleteRecord(ctx context.Context, deviceID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// AdjustFreeAttempts applies a delta to the free attempt counter, flooring at zero.
func (r *PostgresRepository) AdjustFreeAttempts(ctx context.Context, deviceID string, delta int) (int, error) {
	query := `
		UPDATE devices
		SET free_left = GREATEST(0, free_left + $2), last_seen = NOW()
		WHERE device_id = $1
		RETURNING free_left`
	var left int
	err := r.db.QueryRow(ctx, query, deviceID, delta).Scan(&left)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrDeviceNotFound
		}
		return 0, err
	}
	return left, nil
}

// SetFreeAttempts overwrites the free attempt counter.
func (r *PostgresRepository) SetFreeAttempts(ctx context.Context, deviceID string, count int) (int, error) {
	query := `
		UPDATE devices
		SET free_left = GREATEST(0, $2)
		WHERE device_id = $1
		RETURNING free_left`
	var left int
	err := r.db.QueryRow(ctx, query, deviceID, count).Scan(&left)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrDeviceNotFound
		}
		return 0, err
	}
	return left, nil
}

// InsertSubmission stores a new pending payment submission.
func (r *PostgresRepository) InsertSubmission(ctx context.Context, sub *domain.PaymentSubmission) error {
	query := `
		INSERT INTO payment_submissions (id, device_id, tx, plan, comment, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.DeviceID,
		sub.Tx,
		sub.Plan,
		sub.Comment,
		sub.Amount,
		sub.Currency,
		sub.Status,
		sub.CreatedAt,
	)
	return err
}

const submissionColumns = `id, device_id, tx, plan, comment, amount, currency, status, created_at`

func scanSubmission(row pgx.Row) (*domain.PaymentSubmission, error) {
	var sub domain.PaymentSubmission
	err := row.Scan(
		&sub.ID,
		&sub.DeviceID,
		&sub.Tx,
		&sub.Plan,
		&sub.Comment,
		&sub.Amount,
		&sub.Currency,
		&sub.Status,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmission retrieves a payment submission by id.
func (r *PostgresRepository) GetSubmission(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM payment_submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ListSubmissionsByStatus returns submissions with the given status, oldest first.
func (r *PostgresRepository) ListSubmissionsByStatus(ctx context.Context, status string) ([]domain.PaymentSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM payment_submissions WHERE status = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.PaymentSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// UpdateSubmissionStatus moves a submission out of pending with compare-and-set
// semantics: the update only applies while the stored status is still pending.
func (r *PostgresRepository) UpdateSubmissionStatus(ctx context.Context, paymentID uuid.UUID, newStatus string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return transitionInTx(ctx, tx, paymentID, newStatus)
	})
}

// transitionInTx performs the conditional status transition and classifies a
// zero-row result as missing versus already decided.
func transitionInTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, newStatus string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE payment_submissions SET status = $2 WHERE id = $1 AND status = $3`,
		paymentID, newStatus, domain.SubmissionPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM payment_submissions WHERE id = $1`, paymentID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSubmissionNotFound
		}
		if err != nil {
			return err
		}
		return ErrSubmissionNotPending
	}
	return nil
}

// ApproveSubmissionAndExtend marks the submission approved and extends the
// device's expiry inside a single transaction. The status update is a
// compare-and-set on pending, so two admins racing on the same submission
// produce exactly one approval and one extension.
func (r *PostgresRepository) ApproveSubmissionAndExtend(ctx context.Context, paymentID uuid.UUID, deviceID string, months int) (*domain.SubscriptionRecord, error) {
	var rec *domain.SubscriptionRecord
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := transitionInTx(ctx, tx, paymentID, domain.SubmissionApproved); err != nil {
			return err
		}
		extended, err := extendInTx(ctx, tx, deviceID, months, false)
		if err != nil {
			return err
		}
		rec = extended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ExtendSubscription extends a device's expiry without a backing submission.
func (r *PostgresRepository) ExtendSubscription(ctx context.Context, deviceID string, months int, dev bool) (*domain.SubscriptionRecord, error) {
	var rec *domain.SubscriptionRecord
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		extended, err := extendInTx(ctx, tx, deviceID, months, dev)
		if err != nil {
			return err
		}
		rec = extended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// extendInTx locks the device row, recomputes the expiry with the domain
// clamp rule and writes it back. Devices never seen before get a row here;
// the free attempt quota is only granted on the register/status path.
func extendInTx(ctx context.Context, tx pgx.Tx, deviceID string, months int, dev bool) (*domain.SubscriptionRecord, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO devices (device_id) VALUES ($1) ON CONFLICT (device_id) DO NOTHING`, deviceID)
	if err != nil {
		return nil, err
	}

	rec, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM devices WHERE device_id = $1 FOR UPDATE`, deviceID))
	if err != nil {
		return nil, err
	}

	newUntil := domain.ExtendedExpiry(rec.ActiveUntil, months, time.Now().UTC())
	devFlag := rec.DevFlag || dev

	_, err = tx.Exec(ctx,
		`UPDATE devices SET active_until = $2, dev_flag = $3, last_seen = NOW() WHERE device_id = $1`,
		deviceID, newUntil, devFlag)
	if err != nil {
		return nil, err
	}

	rec.ActiveUntil = &newUntil
	rec.DevFlag = devFlag
	return rec, nil
}

// RevokeSubscription unconditionally clears the expiry and dev flag. Calling
// it for an unknown or already-revoked device is a no-op.
func (r *PostgresRepository) RevokeSubscription(ctx context.Context, deviceID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE devices SET active_until = NULL, dev_flag = false WHERE device_id = $1`, deviceID)
	return err
}

// ListLapsedBetween returns records whose expiry fell inside (since, until].
func (r *PostgresRepository) ListLapsedBetween(ctx context.Context, since, until time.Time) ([]domain.SubscriptionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM devices
		WHERE active_until IS NOT NULL AND active_until > $1 AND active_until <= $2
		ORDER BY active_until ASC`
	rows, err := r.db.Query(ctx, query, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SubscriptionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// inTx runs fn inside a transaction. A serialization failure gets one retry
// with a fresh transaction; a second one is surfaced as ErrInternal.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		err := r.attemptTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: transaction retry exhausted: %v", ErrInternal, lastErr)
}

func (r *PostgresRepository) attemptTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure and deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

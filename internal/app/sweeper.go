/**
 * @description
 * Cron-driven lapse sweep. On every run it looks for subscriptions whose expiry
 * passed since the previous run and publishes a subscription.lapsed event for
 * each. The sweep is a notification hook only: it never mutates subscription
 * state, which stays computed from active_until on the request path.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ivanod1994/camfinder-server/internal/store"
	"github.com/ivanod1994/camfinder-server/pkg/rabbitmq"
)

// LapseSweeper periodically reports lapsed subscriptions as events.
type LapseSweeper struct {
	cron     *cron.Cron
	repo     store.Repository
	events   rabbitmq.Publisher
	logger   *slog.Logger
	schedule string

	mu        sync.Mutex
	lastSweep time.Time
}

// NewLapseSweeper creates a sweeper that runs on the given cron schedule.
func NewLapseSweeper(repo store.Repository, events rabbitmq.Publisher, logger *slog.Logger, schedule string) *LapseSweeper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &LapseSweeper{
		cron:      c,
		repo:      repo,
		events:    events,
		logger:    logger,
		schedule:  schedule,
		lastSweep: time.Now().UTC(),
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *LapseSweeper) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		s.logger.Error("failed to schedule lapse sweep job", "schedule", s.schedule, "error", err)
		return
	}
	s.logger.Info("scheduled lapse sweep job", "schedule", s.schedule)
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *LapseSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep publishes a lapsed event for every subscription whose expiry fell
// inside the window since the previous sweep.
func (s *LapseSweeper) Sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.mu.Lock()
	since := s.lastSweep
	s.lastSweep = now
	s.mu.Unlock()

	lapsed, err := s.repo.ListLapsedBetween(ctx, since, now)
	if err != nil {
		s.logger.Error("lapse sweep failed", "error", err)
		return
	}

	for _, rec := range lapsed {
		event := rabbitmq.SubscriptionEvent{
			EventID:     uuid.New(),
			DeviceID:    rec.DeviceID,
			ActiveUntil: rec.ActiveUntil,
			Timestamp:   now,
		}
		if err := s.events.Publish(ctx, rabbitmq.SubscriptionExchange, rabbitmq.RoutingKeySubscriptionLapsed, event); err != nil {
			s.logger.Warn("failed to publish lapse event", "device_id", rec.DeviceID, "error", err)
		}
	}

	if len(lapsed) > 0 {
		s.logger.Info("lapse sweep finished", "lapsed", len(lapsed))
	}
}

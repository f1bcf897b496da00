package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/robfig/cron/v3"
)

const DefaultHousekeepingSchedule = "@every 1h"

// SweepReport counts what one housekeeping run removed.
type SweepReport struct {
	Tokens       int
	MFASessions  int
	CacheEntries int
	Failures     int
}

// Housekeeping periodically removes expired token records, MFA sessions and
// in-memory cache entries. Reads never depend on it: expiry is always checked
// at read time.
type Housekeeping struct {
	Store    store.Store
	Caches   []cache.Cache
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Schedule string
	Now      func() time.Time

	cron *cron.Cron
	wg   sync.WaitGroup
}

// NewHousekeeping uses DefaultHousekeepingSchedule when schedule is empty.
func NewHousekeeping(st store.Store, logger *slog.Logger, schedule string, caches ...cache.Cache) *Housekeeping {
	if schedule == "" {
		schedule = DefaultHousekeepingSchedule
	}
	return &Housekeeping{
		Store:    st,
		Caches:   caches,
		Logger:   logger,
		Schedule: schedule,
	}
}

func (h *Housekeeping) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Housekeeping) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Start runs one sweep immediately and then follows the schedule. It is
// non-blocking; call Stop to shut the scheduler down.
func (h *Housekeeping) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(h.Schedule, func() { h.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("invalid housekeeping schedule %q: %w", h.Schedule, err)
	}
	h.cron = c

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.RunOnce(context.Background())
	}()
	c.Start()
	h.logger().Info("housekeeping started", slog.String("schedule", h.Schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (h *Housekeeping) Stop() {
	if h.cron == nil {
		return
	}
	<-h.cron.Stop().Done()
	h.wg.Wait()
	h.logger().Info("housekeeping stopped")
}

// RunOnce performs one sweep. Each step is independent; a failing step is
// logged and the rest still run.
func (h *Housekeeping) RunOnce(ctx context.Context) SweepReport {
	l := h.logger()
	now := h.now()
	var report SweepReport

	if n, err := h.Store.Tokens().DeleteExpiredTokens(ctx, now); err != nil {
		report.Failures++
		l.Error("failed to delete expired token records", slog.Any("error", err))
	} else {
		report.Tokens = n
	}

	if n, err := h.Store.MFASessions().DeleteExpiredMFASessions(ctx, now); err != nil {
		report.Failures++
		l.Error("failed to delete expired mfa sessions", slog.Any("error", err))
	} else {
		report.MFASessions = n
	}

	for _, c := range h.Caches {
		n, err := c.Expire(ctx)
		if err != nil {
			report.Failures++
			l.Error("failed to expire cache entries", slog.Any("error", err))
			continue
		}
		report.CacheEntries += n
	}

	outcome := metrics.OutcomeSuccess
	if report.Failures > 0 {
		outcome = metrics.OutcomeError
	}
	h.Metrics.HousekeepingRun(outcome)

	l.Info("housekeeping completed",
		slog.Int("tokens", report.Tokens),
		slog.Int("mfa_sessions", report.MFASessions),
		slog.Int("cache_entries", report.CacheEntries),
		slog.Int("failures", report.Failures),
	)
	return report
}

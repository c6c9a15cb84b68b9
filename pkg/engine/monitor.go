package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/telemetry/logging"
)

// Monitor runs scheduled drift scans against the most recent snapshot using
// cron syntax.
type Monitor struct {
	engine   *Engine
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewMonitor creates a drift monitor for the engine. The schedule uses
// standard five-field cron syntax.
func NewMonitor(engine *Engine, schedule string) *Monitor {
	return &Monitor{
		engine:   engine,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "engine.monitor"),
	}
}

// Start begins scheduled drift scanning.
//
// Common cron expressions:
//   - "0 * * * *"   - Hourly on the hour
//   - "*/15 * * * *" - Every 15 minutes
//   - "0 3 * * *"   - Daily at 3 AM
//
// If the schedule is empty, the monitor does nothing.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.schedule == "" {
		m.logger.Info("drift schedule not configured, skipping monitor")
		return nil
	}

	if _, err := cron.ParseStandard(m.schedule); err != nil {
		return fmt.Errorf("invalid drift schedule %q: %w", m.schedule, err)
	}

	if _, err := m.cron.AddFunc(m.schedule, func() {
		m.runScan(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule drift scans: %w", err)
	}

	m.cron.Start()
	m.running = true

	m.logger.Info("drift monitor started", "schedule", m.schedule)

	// Wait for context cancellation in background
	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

// runScan executes one drift scan cycle.
func (m *Monitor) runScan(ctx context.Context) {
	m.logger.Debug("starting scheduled drift scan")

	report, err := m.engine.Drift(ctx, "")
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			m.logger.Debug("drift scan skipped, no snapshot recorded yet")
			return
		}
		m.logger.Error("scheduled drift scan failed", "error", err)
		return
	}

	if report.Clean {
		m.logger.Debug("drift scan clean", "snapshot_id", report.SnapshotID)
		return
	}

	sctx := logging.WithSnapshotID(ctx, report.SnapshotID)
	m.logger.With(logging.Fields(sctx)...).Warn("configuration drift detected",
		"items", len(report.Items),
	)
	for _, item := range report.Items {
		ictx := logging.WithPolicyID(sctx, item.PolicyID)
		m.logger.With(logging.Fields(ictx)...).Warn("drift item",
			"kind", item.Kind,
			"severity", item.Severity,
			"expected", item.Expected,
			"observed", item.Observed,
		)
	}
}

// Stop stops the monitor and waits for a running scan to complete.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil && m.running {
		ctx := m.cron.Stop()
		<-ctx.Done() // Wait for running jobs to finish
		m.running = false
		m.logger.Info("drift monitor stopped")
	}
}

// IsRunning returns true if the monitor is running.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// NextRun returns the next scheduled scan time.
func (m *Monitor) NextRun() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron == nil {
		return nil
	}

	entries := m.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}

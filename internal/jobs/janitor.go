// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
)

// Sweeper purges expired entries and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// Janitor sweeps expired secrets out of an in-process cache. Redis
// expires keys itself, so the janitor only runs for the memory backend.
type Janitor struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
	removed atomic.Int64
}

// NewJanitor schedules sweeper on spec, a standard cron expression or
// descriptor such as "@every 1m".
func NewJanitor(spec string, sweeper Sweeper, logger *slog.Logger) (*Janitor, error) {
	if sweeper == nil {
		return nil, oops.Errorf("sweeper is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		logger:  logger,
	}
	if _, err := j.cron.AddFunc(spec, func() { j.SweepNow() }); err != nil {
		return nil, oops.Code("VALIDATION_ERROR").With("schedule", spec).Wrap(err)
	}
	return j, nil
}

// SweepNow runs one sweep immediately.
func (j *Janitor) SweepNow() int {
	n := j.sweeper.Sweep()
	j.removed.Add(int64(n))
	if n > 0 {
		j.logger.Debug("expired secrets swept", "removed", n)
	}
	return n
}

// Removed returns the total number of entries swept so far.
func (j *Janitor) Removed() int64 { return j.removed.Load() }

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("cache janitor started")
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Info("cache janitor stopped")
		return nil
	case <-ctx.Done():
		return oops.With("operation", "stop janitor").Wrap(ctx.Err())
	}
}

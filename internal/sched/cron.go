package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DrawSchedule fires the daily settlement at 21:00 local time.
const DrawSchedule = "0 21 * * *"

// Cron owns the engine's scheduled tasks.
type Cron struct {
	scheduler *cron.Cron
}

// NewCron creates the scheduler with panic recovery on every task.
func NewCron() *Cron {
	return &Cron{
		scheduler: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// RegisterTask schedules taskFunc under name, logging start, completion
// time, and failures.
func (c *Cron) RegisterTask(name, schedule string, taskFunc func(ctx context.Context) error) error {
	id, err := c.scheduler.AddFunc(schedule, func() {
		t0 := time.Now()
		slog.Info("task started", "task", name)
		if err := taskFunc(context.Background()); err != nil {
			slog.Error("task failed", "task", name, "err", err)
			return
		}
		slog.Info("task completed", "task", name, "took", time.Since(t0))
	})
	if err != nil {
		return err
	}
	slog.Info("task registered", "task", name, "next", c.scheduler.Entry(id).Next)
	return nil
}

// Start launches the scheduler in its own goroutine.
func (c *Cron) Start() {
	c.scheduler.Start()
}

// Stop halts scheduling and returns a context that completes when any
// running task finishes.
func (c *Cron) Stop() context.Context {
	return c.scheduler.Stop()
}

// Package sched orchestrates the daily settlement: both contest draws,
// the surprise roll over the day's participants, and delivery of the
// combined report. The same runner backs the 21:00 cron trigger and the
// admin endpoint.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vpanel/economy-engine/internal/contest"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/metrics"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/notify"
	"github.com/vpanel/economy-engine/internal/surprise"
)

// Runner executes one full settlement round.
type Runner struct {
	contests   *contest.Engine
	surprises  *surprise.Engine
	dispatcher notify.Dispatcher

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewRunner creates a settlement runner.
func NewRunner(contests *contest.Engine, surprises *surprise.Engine, dispatcher notify.Dispatcher) *Runner {
	return &Runner{
		contests:   contests,
		surprises:  surprises,
		dispatcher: dispatcher,
		Now:        time.Now,
	}
}

// RunDraws settles both contest types for date, rolls the surprise over
// the union of the day's participants, and dispatches the report. A
// failed draw of one type does not stop the other; partial settlements
// are reported and alerted, never retried here.
func (r *Runner) RunDraws(ctx context.Context, date string) (*model.DrawReport, error) {
	if err := ledger.ValidDate(date); err != nil {
		return nil, err
	}

	report := &model.DrawReport{Date: date}
	participants := make(map[int64]model.PoolEntry)
	var firstErr error

	for _, typ := range model.Types {
		res, err := r.contests.Draw(ctx, typ, date)
		if err != nil {
			metrics.DrawsTotal.WithLabelValues(string(typ), "failed").Inc()

			var partial *model.PartialSettlementError
			if errors.As(err, &partial) {
				// The pool is cleared; keep the partial result in the
				// report and page the operator with the payment status.
				r.dispatcher.Alert(ctx, "partial settlement "+string(typ)+" "+date, err)
			} else {
				slog.Error("draw failed", "type", typ, "date", date, "err", err)
			}
			if firstErr == nil {
				firstErr = err
			}
			if res == nil {
				continue
			}
		} else {
			metrics.DrawsTotal.WithLabelValues(string(typ), "settled").Inc()
		}

		report.Results = append(report.Results, *res)
		for id, entry := range res.Participants {
			participants[id] = entry
		}
	}

	if event := r.surprises.MaybeRun(ctx, participants); event != nil {
		metrics.SurpriseEventsTotal.WithLabelValues(string(event.Type)).Inc()
		report.Surprise = event
	}

	r.dispatcher.DrawReport(ctx, report)
	return report, firstErr
}

// RunToday settles the current date. The 21:00 schedule means the draw
// covers stakes placed since midnight of the same day.
func (r *Runner) RunToday(ctx context.Context) error {
	_, err := r.RunDraws(ctx, ledger.DateOf(r.Now()))
	return err
}

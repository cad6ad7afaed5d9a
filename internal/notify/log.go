package notify

import (
	"context"
	"log/slog"

	"github.com/vpanel/economy-engine/internal/model"
)

// LogDispatcher writes reports and alerts to the structured log. Always
// wired, so every settlement leaves a trace even with no external
// channels configured.
type LogDispatcher struct{}

func (LogDispatcher) DrawReport(_ context.Context, report *model.DrawReport) error {
	attrs := []any{"date", report.Date}
	for _, res := range report.Results {
		attrs = append(attrs,
			string(res.Type)+"_pool", res.Pool.String(),
			string(res.Type)+"_participants", res.ParticipantCount,
		)
	}
	if report.Surprise != nil {
		attrs = append(attrs, "surprise", report.Surprise.Type)
	}
	slog.Info("draw report", attrs...)
	return nil
}

func (LogDispatcher) Alert(_ context.Context, subject string, err error) error {
	slog.Error("operator alert", "subject", subject, "err", err)
	return nil
}

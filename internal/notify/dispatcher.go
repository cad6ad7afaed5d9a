// Package notify delivers settlement reports and operator alerts to the
// configured channels: structured logs, a Telegram group, and the
// WebSocket feed. Delivery is best effort and never blocks or fails the
// settlement that produced the payload.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vpanel/economy-engine/internal/model"
)

// Dispatcher receives settlement outcomes and operator alerts.
type Dispatcher interface {
	// DrawReport announces the daily settlement.
	DrawReport(ctx context.Context, report *model.DrawReport) error

	// Alert raises an operator-facing failure, such as a partial
	// settlement that needs a manual replay.
	Alert(ctx context.Context, subject string, err error) error
}

// Multi fans a payload out to several dispatchers. Individual delivery
// failures are logged and do not stop the remaining channels.
type Multi []Dispatcher

func (m Multi) DrawReport(ctx context.Context, report *model.DrawReport) error {
	for _, d := range m {
		if err := d.DrawReport(ctx, report); err != nil {
			slog.Warn("draw report delivery failed", "dispatcher", fmt.Sprintf("%T", d), "err", err)
		}
	}
	return nil
}

func (m Multi) Alert(ctx context.Context, subject string, err error) error {
	for _, d := range m {
		if derr := d.Alert(ctx, subject, err); derr != nil {
			slog.Warn("alert delivery failed", "dispatcher", fmt.Sprintf("%T", d), "err", derr)
		}
	}
	return nil
}

// FormatReport renders a draw report as the announcement text shared by
// the Telegram and log channels. Winner handles are masked.
func FormatReport(report *model.DrawReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily draw results for %s\n", report.Date)

	for _, res := range report.Results {
		fmt.Fprintf(&b, "\n%s pool: %s %s, %d participant(s)\n",
			title(string(res.Type)), res.Pool.String(), res.Type.Unit(), res.ParticipantCount)
		if len(res.Winners) == 0 {
			b.WriteString("  no entries, nothing to settle\n")
			continue
		}
		for i, w := range res.Winners {
			status := ""
			if !w.Paid {
				status = " (payment pending)"
			}
			fmt.Fprintf(&b, "  %d. %s wins %s %s%s\n",
				i+1, model.MaskHandle(w.Handle), w.Prize.String(), res.Type.Unit(), status)
		}
	}

	if report.Surprise != nil {
		fmt.Fprintf(&b, "\nSurprise! %s\n", report.Surprise.Description)
	}
	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

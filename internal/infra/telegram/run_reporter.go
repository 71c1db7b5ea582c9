package telegram

import (
	"context"
	"fmt"
	"strings"

	"squad_recommender/internal/app"
	domainTelegram "squad_recommender/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// RunReporter posts the summary of each scheduled run to the admin chat.
type RunReporter struct {
	notifier    domainTelegram.Notifier
	adminChatID int64
	logger      *logrus.Entry
}

func NewRunReporter(notifier domainTelegram.Notifier, adminChatID int64, logger *logrus.Entry) *RunReporter {
	return &RunReporter{notifier: notifier, adminChatID: adminChatID, logger: logger}
}

// FormatRunSummary renders the run and sweep counts as a chat message.
func FormatRunSummary(run *app.RunResult, sweep *app.DeliveryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily batch run %s\n", run.RunID)
	fmt.Fprintf(&b, "Cycle: %s\n", run.CycleStart.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Scopes: %d attempted, %d succeeded, %d failed, %d skipped\n",
		run.Attempted, run.Succeeded, run.Failed, run.Skipped)
	if sweep != nil {
		fmt.Fprintf(&b, "Emails: %d sent, %d failed, %d skipped", sweep.Sent, sweep.Failed, sweep.Skipped)
	} else {
		b.WriteString("Emails: sweep did not run")
	}
	return b.String()
}

func (r *RunReporter) ReportRun(ctx context.Context, run *app.RunResult, sweep *app.DeliveryResult) {
	if r.adminChatID == 0 {
		return
	}
	if err := r.notifier.Notify(ctx, r.adminChatID, FormatRunSummary(run, sweep)); err != nil {
		r.logger.WithError(err).WithField("run_id", run.RunID).Error("Failed to send run summary to admin")
	}
}

package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"squad_recommender/internal/app"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	idb "squad_recommender/internal/infra/database"
	"squad_recommender/internal/infra/ratelimit"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const unauthorizedText = "Error: you are not allowed to run this command."

// AdminActor is the rate-limit actor for a Telegram admin.
func AdminActor(senderID int64) string {
	return fmt.Sprintf("admin:%d", senderID)
}

// parseScopeArgs reads "<team_id> [squad_id]".
func parseScopeArgs(args []string) (int64, sql.NullInt64, error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, sql.NullInt64{}, fmt.Errorf("expected <team_id> [squad_id]")
	}
	teamID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, sql.NullInt64{}, fmt.Errorf("team id must be a number")
	}
	var squadID sql.NullInt64
	if len(args) == 2 {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return 0, sql.NullInt64{}, fmt.Errorf("squad id must be a number")
		}
		squadID = sql.NullInt64{Int64: id, Valid: true}
	}
	return teamID, squadID, nil
}

// manualFailureText explains why a manual recommendation was refused.
func manualFailureText(err error, blocked mission.BlockedWindow) string {
	switch {
	case errors.Is(err, app.ErrRecommendationBlockedTime):
		return fmt.Sprintf("Manual recommendations are paused between %02d:00 and %02d:00. Try again after %02d:00.",
			blocked.StartHour, blocked.EndHour, blocked.EndHour)
	case errors.Is(err, app.ErrAlreadyExistsToday):
		return "This squad already received problems in the current cycle."
	case errors.Is(err, app.ErrNoVerifiedHandle):
		return "No member of this squad has a verified handle yet."
	case errors.Is(err, app.ErrCatalogUnavailable):
		return "The problem catalog is unavailable right now. Please try again later."
	case errors.Is(err, squad.ErrInvalidTierRange), errors.Is(err, squad.ErrUnknownDifficulty):
		return fmt.Sprintf("Squad settings are invalid: %s", err.Error())
	default:
		return fmt.Sprintf("Failed to create recommendations: %s", err.Error())
	}
}

// formatDeliveries renders one line per member delivery.
func formatDeliveries(batchID int64, deliveries []*mission.MemberDelivery, loc *time.Location) string {
	if len(deliveries) == 0 {
		return fmt.Sprintf("Batch %d has no deliveries.", batchID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- Deliveries of batch %d ---\n", batchID)
	for _, d := range deliveries {
		line := fmt.Sprintf("Member %d: %s", d.MemberID, d.Status)
		if d.SentAt.Valid {
			line += " at " + d.SentAt.Time.In(loc).Format("2006-01-02 15:04")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// RegisterAdminHandlers registers handlers for admin commands.
// Only adminTelegramID may run them.
func RegisterAdminHandlers(
	ctx context.Context,
	b *telebot.Bot,
	directory squad.Directory,
	manualService *app.ManualService,
	deliveryService *app.DeliveryService,
	solveService *app.SolveService,
	adminTelegramID int64,
	loc *time.Location,
	blocked mission.BlockedWindow,
	baseLogger *logrus.Entry,
) {
	b.Handle("/recommend", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/recommend",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		// Expected format: /recommend <team_id> [squad_id]
		teamID, squadID, err := parseScopeArgs(c.Args())
		if err != nil {
			return c.Send("Invalid format: " + err.Error() + ". Usage: /recommend <team_id> [squad_id]")
		}
		handlerLogger = handlerLogger.WithFields(logrus.Fields{"team_id": teamID, "squad_id": squadID.Int64})

		scope, err := directory.GetScope(ctx, teamID, squadID)
		if err != nil {
			if errors.Is(err, idb.ErrScopeNotFound) {
				return c.Send("Squad not found.")
			}
			handlerLogger.WithError(err).Error("Failed to load scope")
			return c.Send(fmt.Sprintf("Failed to load squad: %s", err.Error()))
		}

		batch, err := manualService.CreateManual(ratelimit.WithActor(ctx, AdminActor(c.Sender().ID)), scope)
		if err != nil {
			handlerLogger.WithError(err).Warn("Manual recommendation refused")
			return c.Send(manualFailureText(err, blocked))
		}

		handlerLogger.WithField("batch_id", batch.ID).Info("Manual recommendation created")
		var msg strings.Builder
		fmt.Fprintf(&msg, "Batch %d created for %s with %d problems.\n", batch.ID, scope.Name, len(batch.Problems))
		for _, p := range batch.Problems {
			fmt.Fprintf(&msg, "%d. %d %s\n", p.Position, p.ExternalID, p.Title)
		}
		msg.WriteString(formatDeliveries(batch.ID, batch.Deliveries, loc))
		return c.Send(msg.String())
	})

	b.Handle("/deliveries", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/deliveries",
			"sender_id": c.Sender().ID,
		})
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid format. Usage: /deliveries <batch_id>")
		}
		batchID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Error: batch id must be a number.")
		}

		deliveries, err := deliveryService.StatusForBatch(ctx, batchID)
		if err != nil {
			if errors.Is(err, idb.ErrBatchNotFound) {
				return c.Send(fmt.Sprintf("Batch %d not found.", batchID))
			}
			handlerLogger.WithError(err).Error("Failed to load deliveries")
			return c.Send(fmt.Sprintf("Failed to load deliveries: %s", err.Error()))
		}
		return c.Send(formatDeliveries(batchID, deliveries, loc))
	})

	b.Handle("/solved", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/solved",
			"sender_id": c.Sender().ID,
		})
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid format. Usage: /solved <record_id>")
		}
		recordID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Error: record id must be a number.")
		}

		rec, err := solveService.MarkSolved(ctx, recordID, time.Time{})
		if err != nil {
			if errors.Is(err, idb.ErrProblemRecordNotFound) {
				return c.Send(fmt.Sprintf("Record %d not found.", recordID))
			}
			handlerLogger.WithError(err).Error("Failed to mark record solved")
			return c.Send(fmt.Sprintf("Failed to mark record solved: %s", err.Error()))
		}
		return c.Send(fmt.Sprintf("Record %d (member %d) marked solved at %s.",
			rec.ID, rec.MemberID, rec.SolvedAt.Time.In(loc).Format("2006-01-02 15:04")))
	})
}

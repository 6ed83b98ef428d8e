package audit

import (
	"context"
	"time"

	"eventpoints-bot/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	EventSubmissionStarted   = "submission_started"
	EventSubmissionCreated   = "submission_created"
	EventSubmissionCancelled = "submission_cancelled"
	EventSubmissionApproved  = "submission_approved"
	EventSubmissionRejected  = "submission_rejected"
	EventSubmissionDeleted   = "submission_deleted"
	EventCreditFailed        = "credit_failed"
	EventPointsAdjusted      = "points_adjusted"
	EventPointsReset         = "points_reset"
	EventPurchaseCreated     = "purchase_created"
	EventPurchaseProcessed   = "purchase_processed"
	EventConfigUpdated       = "config_updated"
	EventThrottled           = "throttled"
)

// Sink persists audit entries. *storage.Store satisfies it.
type Sink interface {
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
}

type Logger struct {
	sink   Sink
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
	now    func() time.Time
}

func NewLogger(sink Sink, logger *zap.Logger) *Logger {
	return &Logger{sink: sink, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	if l == nil {
		return
	}
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.now(),
	}
	if l.sink != nil {
		if err := l.sink.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit persist failed", zap.String("event", event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

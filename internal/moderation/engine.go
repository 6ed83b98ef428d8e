package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/storage"
	"eventpoints-bot/internal/utils"

	"go.uber.org/zap"
)

var (
	ErrAlreadyDecided              = errors.New("submission already decided")
	ErrSubmissionNotFound          = errors.New("submission not found")
	ErrInvalidMultiplier           = errors.New("multiplier not allowed")
	ErrAnnouncementMessageNotFound = errors.New("announcement message not found")
)

// Gateway is the persistence the engine decides against.
type Gateway interface {
	GetSubmission(ctx context.Context, id int64) (storage.Submission, error)
	SetStatus(ctx context.Context, update storage.StatusUpdate) (bool, error)
	CreditPoints(ctx context.Context, guildID, userID string, amount float64) error
}

// AnnouncementOutcome reports a best-effort edit of the public announcement.
// Callers may ignore it; the decision is durable either way.
type AnnouncementOutcome struct {
	Attempted bool
	Err       error
}

func (o AnnouncementOutcome) OK() bool {
	return o.Attempted && o.Err == nil
}

type Announcer interface {
	Announce(ctx context.Context, sub storage.Submission) AnnouncementOutcome
}

type Decision struct {
	Submission           storage.Submission
	PointsPerParticipant float64
	Credited             []string
	CreditFailed         []string
	Announcement         AnnouncementOutcome
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Engine struct {
	gateway     Gateway
	announcer   Announcer
	audit       *audit.Logger
	logger      *zap.Logger
	multipliers []float64
	clock       Clock
	window      func(ctx context.Context, guildID string) PointsWindow
	retryDelay  time.Duration
}

func New(gateway Gateway, announcer Announcer, auditLogger *audit.Logger, logger *zap.Logger, multipliers []float64) *Engine {
	if len(multipliers) == 0 {
		multipliers = catalog.DefaultMultipliers
	}
	return &Engine{
		gateway:     gateway,
		announcer:   announcer,
		audit:       auditLogger,
		logger:      logger,
		multipliers: append([]float64(nil), multipliers...),
		clock:       realClock{},
		retryDelay:  500 * time.Millisecond,
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

func (e *Engine) WithRetryDelay(d time.Duration) {
	e.retryDelay = d
}

// WithPointsWindow makes Approve refuse awards outside the guild's configured dates.
func (e *Engine) WithPointsWindow(lookup func(ctx context.Context, guildID string) PointsWindow) {
	e.window = lookup
}

func (e *Engine) Multipliers() []float64 {
	return append([]float64(nil), e.multipliers...)
}

func retryable(err error) bool {
	return !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, context.Canceled)
}

func (e *Engine) load(ctx context.Context, id int64) (storage.Submission, error) {
	var sub storage.Submission
	err := utils.RetryOnce(ctx, e.retryDelay, retryable, func(ctx context.Context) error {
		var getErr error
		sub, getErr = e.gateway.GetSubmission(ctx, id)
		return getErr
	})
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Submission{}, fmt.Errorf("%w: %d", ErrSubmissionNotFound, id)
	}
	return sub, err
}

func (e *Engine) setStatus(ctx context.Context, update storage.StatusUpdate) error {
	var changed bool
	err := utils.RetryOnce(ctx, e.retryDelay, retryable, func(ctx context.Context) error {
		var setErr error
		changed, setErr = e.gateway.SetStatus(ctx, update)
		return setErr
	})
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("%w: %d", ErrAlreadyDecided, update.ID)
	}
	return nil
}

// Approve awards round(base*multiplier/group, 2) to every participant. Only the first
// decision on a pending submission has any effect.
func (e *Engine) Approve(ctx context.Context, id int64, reviewerID string, multiplier float64) (Decision, error) {
	if !catalog.ValidMultiplier(e.multipliers, multiplier) {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidMultiplier, multiplier)
	}
	sub, err := e.load(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if sub.Status != storage.StatusPending {
		return Decision{Submission: sub}, fmt.Errorf("%w: %d is %s", ErrAlreadyDecided, id, sub.Status)
	}
	now := e.clock.Now()
	if e.window != nil {
		if err := e.window(ctx, sub.GuildID).Check(now); err != nil {
			return Decision{Submission: sub}, err
		}
	}

	points := catalog.FinalPoints(sub.BasePoints, multiplier, sub.GroupSize)
	update := storage.StatusUpdate{
		ID:          id,
		Status:      storage.StatusApproved,
		ReviewerID:  reviewerID,
		Multiplier:  &multiplier,
		FinalPoints: &points,
		At:          now,
	}
	if err := e.setStatus(ctx, update); err != nil {
		return Decision{Submission: sub}, err
	}
	sub.Status = storage.StatusApproved
	sub.ReviewerID = reviewerID
	sub.FinalMultiplier = &multiplier
	sub.FinalPoints = &points
	sub.ReviewedAt = &now

	decision := Decision{Submission: sub, PointsPerParticipant: points}
	for _, userID := range sub.Participants {
		userID := userID
		err := utils.RetryOnce(ctx, e.retryDelay, retryable, func(ctx context.Context) error {
			return e.gateway.CreditPoints(ctx, sub.GuildID, userID, points)
		})
		if err != nil {
			e.logger.Error("credit points failed", zap.Int64("submission_id", id), zap.String("user_id", userID), zap.Error(err))
			e.audit.Log(ctx, audit.LevelCrit, sub.GuildID, userID, audit.EventCreditFailed,
				fmt.Sprintf("#%d %s not credited to <@%s>: %v", id, catalog.FormatPoints(points), userID, err))
			decision.CreditFailed = append(decision.CreditFailed, userID)
			continue
		}
		decision.Credited = append(decision.Credited, userID)
	}

	decision.Announcement = e.announce(ctx, sub)
	if e.audit != nil {
		e.audit.Log(ctx, audit.LevelInfo, sub.GuildID, reviewerID, audit.EventSubmissionApproved,
			fmt.Sprintf("#%d x%s -> %s each (%d participants)", id, catalog.FormatPoints(multiplier), catalog.FormatPoints(points), len(sub.Participants)))
	}
	return decision, nil
}

func (e *Engine) Reject(ctx context.Context, id int64, reviewerID, reason string) (Decision, error) {
	sub, err := e.load(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if sub.Status != storage.StatusPending {
		return Decision{Submission: sub}, fmt.Errorf("%w: %d is %s", ErrAlreadyDecided, id, sub.Status)
	}

	now := e.clock.Now()
	update := storage.StatusUpdate{
		ID:         id,
		Status:     storage.StatusRejected,
		ReviewerID: reviewerID,
		Reason:     reason,
		At:         now,
	}
	if err := e.setStatus(ctx, update); err != nil {
		return Decision{Submission: sub}, err
	}
	sub.Status = storage.StatusRejected
	sub.ReviewerID = reviewerID
	sub.Reason = reason
	sub.ReviewedAt = &now

	decision := Decision{Submission: sub}
	decision.Announcement = e.announce(ctx, sub)
	if e.audit != nil {
		e.audit.Log(ctx, audit.LevelInfo, sub.GuildID, reviewerID, audit.EventSubmissionRejected, fmt.Sprintf("#%d: %s", id, reason))
	}
	return decision, nil
}

func (e *Engine) announce(ctx context.Context, sub storage.Submission) AnnouncementOutcome {
	if e.announcer == nil {
		return AnnouncementOutcome{}
	}
	outcome := e.announcer.Announce(ctx, sub)
	if outcome.Err != nil {
		e.logger.Warn("announcement update failed", zap.Int64("submission_id", sub.ID), zap.String("status", sub.Status), zap.Error(outcome.Err))
	}
	return outcome
}

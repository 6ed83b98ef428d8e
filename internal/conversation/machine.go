package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/session"
	"eventpoints-bot/internal/storage"
	"eventpoints-bot/internal/utils"

	"go.uber.org/zap"
)

var (
	ErrNoParticipantsRecognized = errors.New("no participants recognized")
	ErrSessionLost              = errors.New("session lost")
	ErrNotOwner                 = errors.New("session belongs to another user")
)

type Outcome int

const (
	NotHandled Outcome = iota
	ParticipantsConfirmed
	ParticipantsRejected
	ScreenshotRequested
	ScreenshotAttached
	ScreenshotRejected
	ScreenshotAcknowledged
	Finalized
	FinalizeFailed
	Cancelled
	SessionLost
)

func (o Outcome) String() string {
	switch o {
	case NotHandled:
		return "not_handled"
	case ParticipantsConfirmed:
		return "participants_confirmed"
	case ParticipantsRejected:
		return "participants_rejected"
	case ScreenshotRequested:
		return "screenshot_requested"
	case ScreenshotAttached:
		return "screenshot_attached"
	case ScreenshotRejected:
		return "screenshot_rejected"
	case ScreenshotAcknowledged:
		return "screenshot_acknowledged"
	case Finalized:
		return "finalized"
	case FinalizeFailed:
		return "finalize_failed"
	case Cancelled:
		return "cancelled"
	case SessionLost:
		return "session_lost"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type User struct {
	ID  string
	Bot bool
}

// Location describes where a message or button press happened.
type Location struct {
	ChannelID  string
	ParentID   string
	IsThread   bool
	ThreadName string
}

type Message struct {
	GuildID     string
	AuthorID    string
	Location    Location
	Content     string
	Mentions    []User
	Attachments []Attachment
}

type Result struct {
	Outcome      Outcome
	Session      *session.Session
	Snapshot     session.Snapshot
	BasePoints   float64
	SubmissionID int64
	Err          error
}

// Gateway is the durable side of finalize.
type Gateway interface {
	CreateSubmission(ctx context.Context, sub storage.NewSubmission) (int64, error)
}

type Machine struct {
	registry        *session.Registry
	catalog         *catalog.Catalog
	gateway         Gateway
	audit           *audit.Logger
	logger          *zap.Logger
	verifier        ScreenshotVerifier
	maxParticipants int
	retryDelay      time.Duration
}

func New(registry *session.Registry, cat *catalog.Catalog, gateway Gateway, auditLogger *audit.Logger, logger *zap.Logger) *Machine {
	return &Machine{
		registry:        registry,
		catalog:         cat,
		gateway:         gateway,
		audit:           auditLogger,
		logger:          logger,
		maxParticipants: catalog.MaxParticipants,
		retryDelay:      500 * time.Millisecond,
	}
}

func (m *Machine) WithVerifier(v ScreenshotVerifier) {
	m.verifier = v
}

func (m *Machine) WithMaxParticipants(n int) {
	if n > 0 {
		m.maxParticipants = n
	}
}

func (m *Machine) WithRetryDelay(d time.Duration) {
	m.retryDelay = d
}

// Resolve finds the session an actor is talking to: exact key, then the thread's
// parent key (rebinding it into the thread), then a rescue scan of the thread.
func (m *Machine) Resolve(actorID string, loc Location) (*session.Session, bool) {
	if s, ok := m.registry.Lookup(actorID, loc.ChannelID); ok {
		return s, true
	}
	if loc.ParentID != "" {
		if s, err := m.registry.RebindIf(loc.ParentID, loc.ChannelID, actorID, ownsThread(loc.ChannelID)); err == nil {
			m.logger.Info("session moved into thread", zap.String("user_id", actorID), zap.String("thread_id", loc.ChannelID))
			return s, true
		}
	}
	if loc.IsThread {
		if s, ok := m.registry.RescueScan(loc.ChannelID, actorID); ok {
			m.logger.Info("session rescued by scan", zap.String("user_id", actorID), zap.String("thread_id", loc.ChannelID))
			return s, true
		}
	}
	return nil, false
}

// ownsThread accepts a session whose announcement started the thread; a thread
// started from a message shares that message's id.
func ownsThread(threadID string) func(session.Snapshot) bool {
	return func(snap session.Snapshot) bool {
		return snap.AnnouncementMessageID != "" && snap.AnnouncementMessageID == threadID
	}
}

func (m *Machine) HandleMessage(ctx context.Context, msg Message) Result {
	s, ok := m.Resolve(msg.AuthorID, msg.Location)
	if !ok {
		if m.isLostSession(msg) {
			return Result{Outcome: SessionLost, Err: ErrSessionLost}
		}
		return Result{Outcome: NotHandled}
	}
	if s.SubmitterID() != msg.AuthorID {
		return Result{Outcome: NotHandled, Session: s, Snapshot: s.Snapshot(), Err: ErrNotOwner}
	}

	snap := s.Snapshot()
	if IsSubmitCommand(msg.Content) && (snap.State == session.ReadyToSubmit || snap.State == session.AwaitingScreenshot) {
		return m.finalize(ctx, s)
	}

	switch snap.State {
	case session.CollectingParticipants:
		return m.collectParticipants(s, msg)
	case session.AwaitingScreenshot:
		return m.collectScreenshot(ctx, s, msg)
	default:
		// ready_to_submit only moves through the confirm/screenshot/cancel actions.
		return Result{Outcome: NotHandled, Session: s, Snapshot: snap}
	}
}

func (m *Machine) collectParticipants(s *session.Session, msg Message) Result {
	var ids []string
	for _, user := range msg.Mentions {
		if user.Bot || user.ID == "" {
			continue
		}
		ids = append(ids, user.ID)
	}
	if len(ids) == 0 && !HasOnlyMePhrase(msg.Content) {
		return Result{Outcome: NotHandled, Session: s, Snapshot: s.Snapshot(), Err: ErrNoParticipantsRecognized}
	}
	if len(ids) > 0 {
		ids = append(ids, msg.AuthorID)
	}

	snap, err := s.ConfirmParticipants(ids, m.maxParticipants, m.registry.Now())
	if err != nil {
		return Result{Outcome: ParticipantsRejected, Session: s, Snapshot: snap, Err: err}
	}
	base, err := m.catalog.BasePoints(snap.EventType, snap.Action)
	if err != nil {
		m.logger.Warn("base points lookup failed", zap.String("event", string(snap.EventType)), zap.Error(err))
	}
	return Result{Outcome: ParticipantsConfirmed, Session: s, Snapshot: snap, BasePoints: base}
}

func (m *Machine) collectScreenshot(ctx context.Context, s *session.Session, msg Message) Result {
	evidence, ok := DefaultImageEvidence(msg)
	if !ok {
		return Result{Outcome: ScreenshotAcknowledged, Session: s, Snapshot: s.Snapshot()}
	}
	if m.verifier != nil && evidence.Attachment {
		if _, err := m.verifier.Verify(ctx, evidence.Ref); err != nil {
			m.logger.Info("screenshot rejected", zap.String("ref", evidence.Ref), zap.Error(err))
			return Result{Outcome: ScreenshotRejected, Session: s, Snapshot: s.Snapshot(), Err: err}
		}
	}
	if err := s.AttachScreenshot(evidence.Ref, m.registry.Now()); err != nil {
		return Result{Outcome: NotHandled, Session: s, Snapshot: s.Snapshot(), Err: err}
	}
	return Result{Outcome: ScreenshotAttached, Session: s, Snapshot: s.Snapshot()}
}

func (m *Machine) isLostSession(msg Message) bool {
	if !msg.Location.IsThread || !IsSubmissionThreadName(msg.Location.ThreadName) {
		return false
	}
	mentions := 0
	for _, user := range msg.Mentions {
		if !user.Bot {
			mentions++
		}
	}
	return looksLikeParticipantsAnswer(msg.Content, mentions)
}

// Confirm finalizes the actor's session from ready_to_submit or awaiting_screenshot.
func (m *Machine) Confirm(ctx context.Context, actorID string, loc Location) Result {
	s, res, ok := m.ownedSession(actorID, loc)
	if !ok {
		return res
	}
	return m.finalize(ctx, s)
}

func (m *Machine) RequestScreenshot(actorID string, loc Location) Result {
	s, res, ok := m.ownedSession(actorID, loc)
	if !ok {
		return res
	}
	if err := s.RequestScreenshot(m.registry.Now()); err != nil {
		return Result{Outcome: NotHandled, Session: s, Snapshot: s.Snapshot(), Err: err}
	}
	return Result{Outcome: ScreenshotRequested, Session: s, Snapshot: s.Snapshot()}
}

func (m *Machine) Cancel(ctx context.Context, actorID string, loc Location) Result {
	s, res, ok := m.ownedSession(actorID, loc)
	if !ok {
		return res
	}
	snap, err := s.BeginCancel()
	if err != nil {
		return Result{Outcome: NotHandled, Session: s, Snapshot: snap, Err: err}
	}
	m.registry.RemoveSession(s)
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, snap.GuildID, actorID, audit.EventSubmissionCancelled, string(snap.EventType)+"/"+string(snap.Action))
	}
	return Result{Outcome: Cancelled, Session: s, Snapshot: snap}
}

func (m *Machine) ownedSession(actorID string, loc Location) (*session.Session, Result, bool) {
	s, ok := m.Resolve(actorID, loc)
	if !ok {
		return nil, Result{Outcome: SessionLost, Err: ErrSessionLost}, false
	}
	if s.SubmitterID() != actorID {
		return nil, Result{Outcome: NotHandled, Snapshot: s.Snapshot(), Err: ErrNotOwner}, false
	}
	return s, Result{}, true
}

func (m *Machine) finalize(ctx context.Context, s *session.Session) Result {
	snap, err := s.BeginFinalize()
	if err != nil {
		return Result{Outcome: NotHandled, Session: s, Snapshot: snap, Err: err}
	}
	base, err := m.catalog.BasePoints(snap.EventType, snap.Action)
	if err != nil {
		s.AbortFinalize()
		return Result{Outcome: FinalizeFailed, Session: s, Snapshot: snap, Err: err}
	}

	sub := storage.NewSubmission{
		GuildID:               snap.GuildID,
		SubmitterID:           snap.SubmitterID,
		EventType:             string(snap.EventType),
		Action:                string(snap.Action),
		Participants:          snap.Participants,
		BasePoints:            base,
		Screenshot:            snap.Screenshot,
		ThreadID:              snap.ChannelID,
		AnnouncementChannelID: snap.AnnouncementChannelID,
		AnnouncementMessageID: snap.AnnouncementMessageID,
		CorrelationToken:      snap.CorrelationToken,
		CreatedAt:             m.registry.Now(),
	}

	var id int64
	err = utils.RetryOnce(ctx, m.retryDelay, nil, func(ctx context.Context) error {
		var createErr error
		id, createErr = m.gateway.CreateSubmission(ctx, sub)
		return createErr
	})
	if err != nil {
		s.AbortFinalize()
		m.logger.Error("persist submission failed", zap.String("user_id", snap.SubmitterID), zap.String("token", snap.CorrelationToken), zap.Error(err))
		return Result{Outcome: FinalizeFailed, Session: s, Snapshot: snap, BasePoints: base, Err: err}
	}

	s.CompleteFinalize(m.registry.Now())
	m.registry.RemoveSession(s)
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, snap.GuildID, snap.SubmitterID, audit.EventSubmissionCreated, fmt.Sprintf("#%d %s/%s group=%d", id, snap.EventType, snap.Action, len(snap.Participants)))
	}
	return Result{Outcome: Finalized, Session: s, Snapshot: s.Snapshot(), BasePoints: base, SubmissionID: id}
}

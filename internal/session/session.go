package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"eventpoints-bot/internal/catalog"
)

// State is the lifecycle position of a submission session. Transitions only move forward.
type State int

const (
	CollectingParticipants State = iota
	ReadyToSubmit
	AwaitingScreenshot
	Finalized
)

func (s State) String() string {
	switch s {
	case CollectingParticipants:
		return "collecting_participants"
	case ReadyToSubmit:
		return "ready_to_submit"
	case AwaitingScreenshot:
		return "awaiting_screenshot"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidTransition        = errors.New("invalid session transition")
	ErrParticipantLimitExceeded = errors.New("participant limit exceeded")
	ErrFinalizeInProgress       = errors.New("finalize already in progress")
)

// Snapshot is a copy of a session's fields, safe to read without locking.
type Snapshot struct {
	GuildID               string
	SubmitterID           string
	ChannelID             string
	EventType             catalog.EventType
	Action                catalog.Action
	Participants          []string
	Screenshot            string
	State                 State
	AnnouncementChannelID string
	AnnouncementMessageID string
	CorrelationToken      string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Session struct {
	mu         sync.Mutex
	snap       Snapshot
	finalizing bool
	cancelled  bool
}

func newSession(guildID, submitterID, channelID string, eventType catalog.EventType, action catalog.Action, token string, now time.Time) *Session {
	return &Session{snap: Snapshot{
		GuildID:          guildID,
		SubmitterID:      submitterID,
		ChannelID:        channelID,
		EventType:        eventType,
		Action:           action,
		Participants:     []string{submitterID},
		State:            CollectingParticipants,
		CorrelationToken: token,
		CreatedAt:        now,
		UpdatedAt:        now,
	}}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Session) copyLocked() Snapshot {
	out := s.snap
	out.Participants = append([]string(nil), s.snap.Participants...)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.State
}

func (s *Session) SubmitterID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.SubmitterID
}

func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ChannelID
}

func (s *Session) SetAnnouncement(channelID, messageID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AnnouncementChannelID = channelID
	s.snap.AnnouncementMessageID = messageID
	s.snap.UpdatedAt = now
}

// ConfirmParticipants merges ids into the participant set and moves the session to
// ReadyToSubmit. Nothing changes when the merged set would exceed limit.
func (s *Session) ConfirmParticipants(ids []string, limit int, now time.Time) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != CollectingParticipants {
		return s.copyLocked(), fmt.Errorf("%w: confirm participants from %s", ErrInvalidTransition, s.snap.State)
	}

	merged := append([]string(nil), s.snap.Participants...)
	seen := make(map[string]struct{}, len(merged)+len(ids))
	for _, id := range merged {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	if _, ok := seen[s.snap.SubmitterID]; !ok {
		merged = append([]string{s.snap.SubmitterID}, merged...)
	}
	if limit > 0 && len(merged) > limit {
		return s.copyLocked(), fmt.Errorf("%w: %d > %d", ErrParticipantLimitExceeded, len(merged), limit)
	}

	s.snap.Participants = merged
	s.snap.State = ReadyToSubmit
	s.snap.UpdatedAt = now
	return s.copyLocked(), nil
}

func (s *Session) RequestScreenshot(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != ReadyToSubmit {
		return fmt.Errorf("%w: request screenshot from %s", ErrInvalidTransition, s.snap.State)
	}
	s.snap.State = AwaitingScreenshot
	s.snap.UpdatedAt = now
	return nil
}

func (s *Session) AttachScreenshot(ref string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != AwaitingScreenshot {
		return fmt.Errorf("%w: attach screenshot in %s", ErrInvalidTransition, s.snap.State)
	}
	s.snap.Screenshot = ref
	s.snap.UpdatedAt = now
	return nil
}

// BeginFinalize reserves the session for persistence. Exactly one caller wins until
// AbortFinalize releases the reservation or CompleteFinalize makes it terminal.
func (s *Session) BeginFinalize() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.snap.State {
	case ReadyToSubmit, AwaitingScreenshot:
	default:
		return s.copyLocked(), fmt.Errorf("%w: finalize from %s", ErrInvalidTransition, s.snap.State)
	}
	if s.cancelled {
		return s.copyLocked(), fmt.Errorf("%w: finalize after cancel", ErrInvalidTransition)
	}
	if s.finalizing {
		return s.copyLocked(), ErrFinalizeInProgress
	}
	s.finalizing = true
	return s.copyLocked(), nil
}

// BeginCancel marks the session cancelled. It fails while a finalize holds the
// reservation or once the session is finalized; a cancelled session never finalizes.
func (s *Session) BeginCancel() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State == Finalized {
		return s.copyLocked(), fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, s.snap.State)
	}
	if s.finalizing {
		return s.copyLocked(), ErrFinalizeInProgress
	}
	s.cancelled = true
	return s.copyLocked(), nil
}

func (s *Session) AbortFinalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizing = false
}

func (s *Session) CompleteFinalize(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizing = false
	s.snap.State = Finalized
	s.snap.UpdatedAt = now
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.UpdatedAt
}

func (s *Session) rebind(channelID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ChannelID = channelID
	s.snap.UpdatedAt = now
}

package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"eventpoints-bot/internal/catalog"

	"github.com/google/go-cmp/cmp"
)

func newTestSession() *Session {
	return newSession("g1", "u1", "t1", catalog.CrystalSpider, catalog.Kill, "tmp-test", time.Unix(0, 0))
}

func TestLifecycleMovesForwardOnly(t *testing.T) {
	s := newTestSession()
	now := time.Unix(10, 0)

	if err := s.RequestScreenshot(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("screenshot before participants should fail, got %v", err)
	}
	if _, err := s.BeginFinalize(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("finalize before participants should fail, got %v", err)
	}

	if _, err := s.ConfirmParticipants([]string{"u2"}, catalog.MaxParticipants, now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := s.ConfirmParticipants([]string{"u3"}, catalog.MaxParticipants, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("participants are only collected once, got %v", err)
	}
	if err := s.AttachScreenshot("https://x/y.png", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("attach outside awaiting_screenshot should fail, got %v", err)
	}
	if err := s.RequestScreenshot(now); err != nil {
		t.Fatalf("request screenshot: %v", err)
	}
	if err := s.RequestScreenshot(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second request should fail, got %v", err)
	}
	if err := s.AttachScreenshot("https://x/y.png", now); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if _, err := s.BeginFinalize(); err != nil {
		t.Fatalf("begin finalize: %v", err)
	}
	if _, err := s.BeginFinalize(); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("expected in-progress guard, got %v", err)
	}
	s.AbortFinalize()
	if _, err := s.BeginFinalize(); err != nil {
		t.Fatalf("begin after abort: %v", err)
	}
	s.CompleteFinalize(now)
	if s.State() != Finalized {
		t.Fatalf("expected finalized, got %s", s.State())
	}
	if _, err := s.BeginFinalize(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("finalized is terminal, got %v", err)
	}
}

func TestCancelRespectsFinalizeReservation(t *testing.T) {
	s := newTestSession()
	now := time.Unix(10, 0)
	if _, err := s.ConfirmParticipants(nil, catalog.MaxParticipants, now); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := s.BeginFinalize(); err != nil {
		t.Fatalf("begin finalize: %v", err)
	}
	if _, err := s.BeginCancel(); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("cancel during finalize should fail, got %v", err)
	}

	s.AbortFinalize()
	if _, err := s.BeginCancel(); err != nil {
		t.Fatalf("cancel after abort: %v", err)
	}
	if _, err := s.BeginFinalize(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelled session must not finalize, got %v", err)
	}
}

func TestCancelAfterFinalizeFails(t *testing.T) {
	s := newTestSession()
	now := time.Unix(10, 0)
	if _, err := s.ConfirmParticipants(nil, catalog.MaxParticipants, now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := s.BeginFinalize(); err != nil {
		t.Fatalf("begin finalize: %v", err)
	}
	s.CompleteFinalize(now)
	if _, err := s.BeginCancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestConfirmParticipantsMergesAndKeepsSubmitter(t *testing.T) {
	s := newTestSession()
	snap, err := s.ConfirmParticipants([]string{"u2", "u1", "u3", "u2", ""}, catalog.MaxParticipants, time.Unix(1, 0))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if diff := cmp.Diff([]string{"u1", "u2", "u3"}, snap.Participants); diff != "" {
		t.Fatalf("participants mismatch (-want +got):\n%s", diff)
	}
	if snap.State != ReadyToSubmit {
		t.Fatalf("expected ready_to_submit, got %s", snap.State)
	}
}

func TestConfirmParticipantsLimit(t *testing.T) {
	s := newTestSession()
	var ids []string
	for i := 0; i < catalog.MaxParticipants; i++ {
		ids = append(ids, fmt.Sprintf("m%d", i))
	}
	_, err := s.ConfirmParticipants(ids, catalog.MaxParticipants, time.Unix(1, 0))
	if !errors.Is(err, ErrParticipantLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
	snap := s.Snapshot()
	if diff := cmp.Diff([]string{"u1"}, snap.Participants); diff != "" {
		t.Fatalf("participants changed on rejection:\n%s", diff)
	}
	if snap.State != CollectingParticipants {
		t.Fatalf("state changed on rejection: %s", snap.State)
	}

	if _, err := s.ConfirmParticipants(ids[:catalog.MaxParticipants-1], catalog.MaxParticipants, time.Unix(1, 0)); err != nil {
		t.Fatalf("exactly %d participants should pass: %v", catalog.MaxParticipants, err)
	}
}

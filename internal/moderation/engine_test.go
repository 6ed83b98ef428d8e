package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/storage"
	"eventpoints-bot/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls []storage.Submission
	err   error
}

func (a *recordingAnnouncer) Announce(_ context.Context, sub storage.Submission) AnnouncementOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, sub)
	return AnnouncementOutcome{Attempted: true, Err: a.err}
}

// flakyGateway fails the first n calls to CreditPoints before delegating.
type flakyGateway struct {
	*storage.Store
	creditFailures int
}

func (g *flakyGateway) CreditPoints(ctx context.Context, guildID, userID string, amount float64) error {
	if g.creditFailures > 0 {
		g.creditFailures--
		return errors.New("database is locked")
	}
	return g.Store.CreditPoints(ctx, guildID, userID, amount)
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())
	return store
}

func seed(t *testing.T, store *storage.Store, base float64, participants ...string) int64 {
	t.Helper()
	id, err := store.CreateSubmission(context.Background(), storage.NewSubmission{
		GuildID:      "g1",
		SubmitterID:  participants[0],
		EventType:    "crystal_spider",
		Action:       "kill",
		Participants: participants,
		BasePoints:   base,
	})
	require.NoError(t, err)
	return id
}

func newEngine(gateway Gateway, announcer Announcer) *Engine {
	engine := New(gateway, announcer, nil, zap.NewNop(), nil)
	engine.WithRetryDelay(0)
	engine.WithClock(fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)})
	return engine
}

func TestApproveSplitsPointsAcrossParticipants(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 1, "A", "B", "C")
	announcer := &recordingAnnouncer{}
	engine := newEngine(store, announcer)

	decision, err := engine.Approve(ctx, id, "mod", 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, decision.PointsPerParticipant)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, decision.Credited)
	assert.Empty(t, decision.CreditFailed)
	assert.True(t, decision.Announcement.OK())

	for _, user := range []string{"A", "B", "C"} {
		balance, err := store.GetPoints(ctx, "g1", user)
		require.NoError(t, err)
		assert.Equal(t, 1.0, balance.TotalPoints, user)
		assert.Equal(t, 1, balance.EventsParticipated, user)
	}

	sub, err := store.GetSubmission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusApproved, sub.Status)
	require.NotNil(t, sub.FinalMultiplier)
	assert.Equal(t, 3.0, *sub.FinalMultiplier)
	require.Len(t, announcer.calls, 1)
	assert.Equal(t, storage.StatusApproved, announcer.calls[0].Status)
}

func TestApproveRoundsPerParticipantShare(t *testing.T) {
	store := newStore(t)
	id := seed(t, store, 10, "A", "B", "C")
	engine := newEngine(store, nil)

	decision, err := engine.Approve(context.Background(), id, "mod", 1)
	require.NoError(t, err)
	assert.Equal(t, 3.33, decision.PointsPerParticipant)
}

func TestSecondDecisionHasNoEffect(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 2, "A", "B")
	engine := newEngine(store, nil)

	_, err := engine.Approve(ctx, id, "mod1", 2)
	require.NoError(t, err)

	_, err = engine.Approve(ctx, id, "mod2", 10)
	require.ErrorIs(t, err, ErrAlreadyDecided)
	_, err = engine.Reject(ctx, id, "mod2", "late")
	require.ErrorIs(t, err, ErrAlreadyDecided)

	balance, err := store.GetPoints(ctx, "g1", "A")
	require.NoError(t, err)
	assert.Equal(t, 2.0, balance.TotalPoints)
	assert.Equal(t, 1, balance.EventsParticipated)
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 5, "A", "B")
	engine := newEngine(store, nil)

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Approve(ctx, id, "mod", 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyDecided)
	}
	assert.Equal(t, 1, succeeded)

	balance, err := store.GetPoints(ctx, "g1", "B")
	require.NoError(t, err)
	assert.Equal(t, 2.5, balance.TotalPoints)
}

func TestRejectAwardsNothing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 1, "A")
	announcer := &recordingAnnouncer{}
	engine := newEngine(store, announcer)

	decision, err := engine.Reject(ctx, id, "mod", "no screenshot")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusRejected, decision.Submission.Status)

	balance, err := store.GetPoints(ctx, "g1", "A")
	require.NoError(t, err)
	assert.Zero(t, balance.TotalPoints)

	sub, err := store.GetSubmission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "no screenshot", sub.Reason)
	assert.Nil(t, sub.FinalPoints)
}

func TestApproveRejectsUnknownMultiplier(t *testing.T) {
	store := newStore(t)
	id := seed(t, store, 1, "A")
	engine := newEngine(store, nil)

	_, err := engine.Approve(context.Background(), id, "mod", 4)
	require.ErrorIs(t, err, ErrInvalidMultiplier)

	sub, err := store.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, sub.Status)
}

func TestUnknownSubmission(t *testing.T) {
	engine := newEngine(newStore(t), nil)
	_, err := engine.Approve(context.Background(), 42, "mod", 1)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
	_, err = engine.Reject(context.Background(), 42, "mod", "x")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestCreditRetriedOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 1, "A", "B")

	gateway := &flakyGateway{Store: store, creditFailures: 1}
	decision, err := newEngine(gateway, nil).Approve(ctx, id, "mod", 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, decision.Credited)

	balance, err := store.GetPoints(ctx, "g1", "A")
	require.NoError(t, err)
	assert.Equal(t, 0.5, balance.TotalPoints)
}

func TestCreditFailureReported(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 1, "A", "B")

	gateway := &flakyGateway{Store: store, creditFailures: 2}
	decision, err := newEngine(gateway, nil).Approve(ctx, id, "mod", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, decision.CreditFailed)
	assert.Equal(t, []string{"B"}, decision.Credited)
}

func TestCreditFailureAudited(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 1, "A", "B")

	gateway := &flakyGateway{Store: store, creditFailures: 2}
	engine := New(gateway, nil, audit.NewLogger(store, zap.NewNop()), zap.NewNop(), nil)
	engine.WithRetryDelay(0)
	engine.WithClock(fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)})
	_, err := engine.Approve(ctx, id, "mod", 1)
	require.NoError(t, err)

	logs, err := store.ListAuditLogs(ctx, "g1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	var crit []storage.AuditLog
	for _, entry := range logs {
		if entry.Level == audit.LevelCrit {
			crit = append(crit, entry)
		}
	}
	require.Len(t, crit, 1)
	assert.Equal(t, audit.EventCreditFailed, crit[0].Event)
	assert.Equal(t, "A", crit[0].UserID)
}

func TestAnnouncementFailureDoesNotUndoDecision(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := seed(t, store, 1, "A")
	announcer := &recordingAnnouncer{err: ErrAnnouncementMessageNotFound}

	decision, err := newEngine(store, announcer).Approve(ctx, id, "mod", 1)
	require.NoError(t, err)
	assert.False(t, decision.Announcement.OK())
	assert.ErrorIs(t, decision.Announcement.Err, ErrAnnouncementMessageNotFound)

	sub, err := store.GetSubmission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusApproved, sub.Status)
}

func TestApproveOutsidePointsWindow(t *testing.T) {
	store := newStore(t)
	id := seed(t, store, 1, "A")
	engine := newEngine(store, nil)
	engine.WithPointsWindow(func(context.Context, string) PointsWindow {
		return PointsWindow{Start: "2026-04-01"}
	})

	_, err := engine.Approve(context.Background(), id, "mod", 1)
	require.ErrorIs(t, err, ErrPointsNotStarted)
}

func TestPersistentFailureAsksToRetry(t *testing.T) {
	gateway := &brokenGateway{}
	_, err := newEngine(gateway, nil).Reject(context.Background(), 1, "mod", "x")
	require.ErrorIs(t, err, utils.ErrTryAgain)
	assert.Equal(t, 2, gateway.calls)
}

type brokenGateway struct{ calls int }

func (g *brokenGateway) GetSubmission(context.Context, int64) (storage.Submission, error) {
	g.calls++
	return storage.Submission{}, errors.New("connection reset")
}

func (g *brokenGateway) SetStatus(context.Context, storage.StatusUpdate) (bool, error) {
	return false, errors.New("connection reset")
}

func (g *brokenGateway) CreditPoints(context.Context, string, string, float64) error {
	return errors.New("connection reset")
}

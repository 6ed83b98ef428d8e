package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrateTwice(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestUpsertGuildConfig(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := GuildConfig{GuildID: "g1", Language: "ru", EventsChannel: "c1", ModeratorChannel: "m1", PointsStartDate: "2026-01-01"}
	if err := store.UpsertGuildConfig(ctx, cfg); err != nil {
		t.Fatalf("upsert guild config: %v", err)
	}
	cfg.EventsChannel = "c2"
	if err := store.UpsertGuildConfig(ctx, cfg); err != nil {
		t.Fatalf("update guild config: %v", err)
	}

	got, err := store.GetGuildConfig(ctx, "g1", GuildConfig{Language: "en"})
	if err != nil {
		t.Fatalf("get guild config: %v", err)
	}
	if got.EventsChannel != "c2" || got.Language != "ru" || got.PointsStartDate != "2026-01-01" {
		t.Fatalf("unexpected config: %+v", got)
	}

	fallback, err := store.GetGuildConfig(ctx, "g2", GuildConfig{Language: "en", EventsChannel: "default"})
	if err != nil {
		t.Fatalf("get missing guild config: %v", err)
	}
	if fallback.GuildID != "g2" || fallback.Language != "en" || fallback.EventsChannel != "default" {
		t.Fatalf("expected defaults, got %+v", fallback)
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateSubmission(ctx, NewSubmission{
		GuildID:          "g1",
		SubmitterID:      "u1",
		EventType:        "crystal_spider",
		Action:           "kill",
		Participants:     []string{"u1", "u2", "u3"},
		BasePoints:       1.0,
		ThreadID:         "t1",
		CorrelationToken: "tmp-abc",
		CreatedAt:        time.Unix(1_700_000_000, 0),
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}

	sub, err := store.GetSubmission(ctx, id)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if sub.Status != StatusPending || sub.GroupSize != 3 || sub.BasePoints != 1.0 {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if len(sub.Participants) != 3 || sub.Participants[0] != "u1" || sub.Participants[2] != "u3" {
		t.Fatalf("unexpected participants: %v", sub.Participants)
	}
	if sub.FinalMultiplier != nil || sub.ReviewedAt != nil {
		t.Fatalf("pending submission must not carry a decision")
	}

	multiplier, points := 3.0, 1.0
	changed, err := store.SetStatus(ctx, StatusUpdate{ID: id, Status: StatusApproved, ReviewerID: "m1", Multiplier: &multiplier, FinalPoints: &points})
	if err != nil || !changed {
		t.Fatalf("approve: changed=%v err=%v", changed, err)
	}
	changed, err = store.SetStatus(ctx, StatusUpdate{ID: id, Status: StatusRejected, ReviewerID: "m2", Reason: "late"})
	if err != nil {
		t.Fatalf("second decision: %v", err)
	}
	if changed {
		t.Fatalf("decided submission must not change again")
	}

	sub, err = store.GetSubmission(ctx, id)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if sub.Status != StatusApproved || sub.ReviewerID != "m1" || sub.FinalPoints == nil || *sub.FinalPoints != 1.0 {
		t.Fatalf("unexpected decided submission: %+v", sub)
	}

	if _, err := store.GetSubmission(ctx, id+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreditPointsAndLeaderboard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, step := range []struct {
		user   string
		amount float64
	}{{"u1", 1.5}, {"u2", 4}, {"u1", 1.5}} {
		if err := store.CreditPoints(ctx, "g1", step.user, step.amount); err != nil {
			t.Fatalf("credit %s: %v", step.user, err)
		}
	}

	balance, err := store.GetPoints(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get points: %v", err)
	}
	if balance.TotalPoints != 3 || balance.EventsParticipated != 2 {
		t.Fatalf("unexpected balance: %+v", balance)
	}

	empty, err := store.GetPoints(ctx, "g1", "nobody")
	if err != nil || empty.TotalPoints != 0 {
		t.Fatalf("expected zero balance, got %+v err=%v", empty, err)
	}

	if err := store.SetPoints(ctx, "g1", "u3", 0); err != nil {
		t.Fatalf("set points: %v", err)
	}
	board, err := store.Leaderboard(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UserID != "u2" || board[1].UserID != "u1" {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	if _, err := store.ResetAllPoints(ctx, "g1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	board, _ = store.Leaderboard(ctx, "g1", 10)
	if len(board) != 0 {
		t.Fatalf("expected empty leaderboard after reset, got %d", len(board))
	}
}

func TestShopPurchaseRefundOnReject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreatePurchase(ctx, NewPurchase{GuildID: "g1", UserID: "u1", ItemID: "gear_set", ItemName: "Gear", Cost: 50}); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	if err := store.AddPoints(ctx, "g1", "u1", 60); err != nil {
		t.Fatalf("add points: %v", err)
	}
	id, err := store.CreatePurchase(ctx, NewPurchase{GuildID: "g1", UserID: "u1", ItemID: "gear_set", ItemName: "Gear", Cost: 50})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	balance, _ := store.GetPoints(ctx, "g1", "u1")
	if balance.TotalPoints != 10 {
		t.Fatalf("expected 10 after purchase, got %v", balance.TotalPoints)
	}

	p, err := store.ProcessPurchase(ctx, id, PurchaseRejected, "m1", "out of stock")
	if err != nil {
		t.Fatalf("reject purchase: %v", err)
	}
	if p.Status != PurchaseRejected || p.ProcessedBy != "m1" {
		t.Fatalf("unexpected purchase: %+v", p)
	}
	balance, _ = store.GetPoints(ctx, "g1", "u1")
	if balance.TotalPoints != 60 {
		t.Fatalf("expected refund to 60, got %v", balance.TotalPoints)
	}

	if _, err := store.ProcessPurchase(ctx, id, PurchaseCompleted, "m1", ""); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}

	pending, err := store.ListPurchases(ctx, "g1", PurchasePending)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected no pending purchases, got %d err=%v", len(pending), err)
	}
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.AddPoints(ctx, "g1", "u1", 100); err != nil {
		t.Fatalf("add points: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		bought   int
		declined int
	)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreatePurchase(ctx, NewPurchase{GuildID: "g1", UserID: "u1", ItemID: "gear_set", ItemName: "Gear", Cost: 30})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				bought++
			case errors.Is(err, ErrInsufficientPoints):
				declined++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if bought != 3 || declined != 5 {
		t.Fatalf("expected 3 bought and 5 declined, got %d and %d", bought, declined)
	}
	balance, _ := store.GetPoints(ctx, "g1", "u1")
	if balance.TotalPoints != 10 {
		t.Fatalf("expected 10 left, got %v", balance.TotalPoints)
	}
	pending, err := store.ListPurchases(ctx, "g1", PurchasePending)
	if err != nil || len(pending) != 3 {
		t.Fatalf("expected 3 pending purchases, got %d err=%v", len(pending), err)
	}
}

func TestGuildStatsAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, _ := store.CreateSubmission(ctx, NewSubmission{GuildID: "g1", SubmitterID: "u1", EventType: "sphere_gold", Action: "transport", Participants: []string{"u1", "u2"}, BasePoints: 5})
	second, _ := store.CreateSubmission(ctx, NewSubmission{GuildID: "g1", SubmitterID: "u3", EventType: "crystal_spider", Action: "kill", Participants: []string{"u3"}, BasePoints: 1})
	_, _ = store.CreateSubmission(ctx, NewSubmission{GuildID: "g1", SubmitterID: "u1", EventType: "crystal_spider", Action: "kill", Participants: []string{"u1"}, BasePoints: 1})

	multiplier, points := 2.0, 5.0
	if _, err := store.SetStatus(ctx, StatusUpdate{ID: first, Status: StatusApproved, ReviewerID: "m", Multiplier: &multiplier, FinalPoints: &points}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_ = store.CreditPoints(ctx, "g1", "u1", points)
	_ = store.CreditPoints(ctx, "g1", "u2", points)
	if _, err := store.SetStatus(ctx, StatusUpdate{ID: second, Status: StatusRejected, ReviewerID: "m", Reason: "no proof"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	stats, err := store.GuildStats(ctx, "g1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ByStatus[StatusApproved] != 1 || stats.ByStatus[StatusRejected] != 1 || stats.ByStatus[StatusPending] != 1 {
		t.Fatalf("unexpected status counts: %+v", stats.ByStatus)
	}
	if stats.PointsDistributed != 10 || stats.ActiveUsers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	history, err := store.UserHistory(ctx, "g1", "u2", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != first || len(history[0].Participants) != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}

	pending, err := store.ListSubmissions(ctx, "g1", StatusPending, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending, got %d err=%v", len(pending), err)
	}

	if err := store.DeleteSubmission(ctx, second); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteSubmission(ctx, second); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPostgresPlaceholders(t *testing.T) {
	s := &Store{dialect: DriverPostgres}
	got := s.q(`SELECT a FROM t WHERE x = ? AND y = ?`)
	if got != `SELECT a FROM t WHERE x = $1 AND y = $2` {
		t.Fatalf("unexpected rewrite: %s", got)
	}
	lite := &Store{dialect: DriverSQLite}
	if lite.q(`x = ?`) != `x = ?` {
		t.Fatalf("sqlite queries must stay unchanged")
	}
}

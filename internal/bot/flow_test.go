package bot

import (
	"testing"
	"time"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/session"
	"eventpoints-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func TestTruncateRunes(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "ж"
	}
	got := truncateRunes(long, threadNameLimit)
	if n := len([]rune(got)); n != threadNameLimit {
		t.Fatalf("expected %d runes, got %d", threadNameLimit, n)
	}
	if short := truncateRunes("Заявка", threadNameLimit); short != "Заявка" {
		t.Fatalf("short names must be unchanged, got %q", short)
	}
}

func TestStatsSince(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	if got := statsSince(now, "day"); !got.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("day: %v", got)
	}
	if got := statsSince(now, "week"); !got.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("week: %v", got)
	}
	if got := statsSince(now, "month"); !got.Equal(now.AddDate(0, -1, 0)) {
		t.Fatalf("month: %v", got)
	}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func TestDateOption(t *testing.T) {
	options := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("start_date", "2024-05-01"),
		stringOption("end_date", "-"),
	})

	if got, ok := dateOption(options, "start_date", ""); !ok || got != "2024-05-01" {
		t.Fatalf("start_date: %q %v", got, ok)
	}
	if got, ok := dateOption(options, "end_date", "2024-06-01"); !ok || got != "" {
		t.Fatalf("dash should clear, got %q %v", got, ok)
	}
	if got, ok := dateOption(options, "missing", "2024-01-01"); !ok || got != "2024-01-01" {
		t.Fatalf("missing option keeps current, got %q %v", got, ok)
	}

	bad := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{stringOption("start_date", "01.05.2024")})
	if _, ok := dateOption(bad, "start_date", ""); ok {
		t.Fatalf("expected invalid date")
	}
}

func TestLeaderboardSize(t *testing.T) {
	intOption := func(n float64) commandOptions {
		return optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "limit", Type: discordgo.ApplicationCommandOptionInteger, Value: n},
		})
	}
	if got := leaderboardSize(commandOptions{}); got != leaderboardLimit {
		t.Fatalf("default: %d", got)
	}
	if got := leaderboardSize(intOption(0)); got != 1 {
		t.Fatalf("lower clamp: %d", got)
	}
	if got := leaderboardSize(intOption(100)); got != leaderboardMax {
		t.Fatalf("upper clamp: %d", got)
	}
	if got := leaderboardSize(intOption(5)); got != 5 {
		t.Fatalf("explicit: %d", got)
	}
}

func TestCancelledDraftKeepsAnnouncement(t *testing.T) {
	registry := session.NewRegistry()
	s, err := registry.Create("g1", "u1", "events", catalog.CrystalSpider, catalog.Kill)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.SetAnnouncement("events", "m1", registry.Now())
	snap, err := s.BeginCancel()
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	draft := cancelledDraft("en", snap)
	if draft.Status != storage.StatusRejected || draft.Reason != lookup("en", "cancelled") {
		t.Fatalf("unexpected status %q reason %q", draft.Status, draft.Reason)
	}
	if draft.AnnouncementChannelID != "events" || draft.AnnouncementMessageID != "m1" {
		t.Fatalf("announcement reference lost: %+v", draft)
	}
	if draft.SubmitterID != "u1" || draft.EventType != string(catalog.CrystalSpider) {
		t.Fatalf("unexpected draft: %+v", draft)
	}
}

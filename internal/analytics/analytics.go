package analytics

import (
	"context"
	"time"

	"eventpoints-bot/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Pending           int
	Approved          int
	Rejected          int
	PointsDistributed float64
	ActiveUsers       int
	RecentActivity    int
	ByEvent           map[string]int
}

func (r Report) Total() int {
	return r.Pending + r.Approved + r.Rejected
}

// Report combines submission totals with audit activity since the given time.
func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	stats, err := s.store.GuildStats(ctx, guildID)
	if err != nil {
		return Report{}, err
	}
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Pending:           stats.ByStatus[storage.StatusPending],
		Approved:          stats.ByStatus[storage.StatusApproved],
		Rejected:          stats.ByStatus[storage.StatusRejected],
		PointsDistributed: stats.PointsDistributed,
		ActiveUsers:       stats.ActiveUsers,
		ByEvent:           make(map[string]int),
	}
	for _, log := range logs {
		report.RecentActivity++
		report.ByEvent[log.Event]++
	}
	return report, nil
}

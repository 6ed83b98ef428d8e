package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Balance struct {
	GuildID            string
	UserID             string
	TotalPoints        float64
	EventsParticipated int
	LastUpdated        time.Time
}

// CreditPoints adds amount to a user's balance and counts one more event, in a single statement.
func (s *Store) CreditPoints(ctx context.Context, guildID, userID string, amount float64) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO user_points (guild_id, user_id, total_points, events_participated, last_updated)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			total_points = user_points.total_points + excluded.total_points,
			events_participated = user_points.events_participated + 1,
			last_updated = excluded.last_updated
	`), guildID, userID, amount, time.Now().Unix())
	return err
}

// AddPoints adjusts a balance by delta without counting an event.
func (s *Store) AddPoints(ctx context.Context, guildID, userID string, delta float64) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO user_points (guild_id, user_id, total_points, events_participated, last_updated)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			total_points = user_points.total_points + excluded.total_points,
			last_updated = excluded.last_updated
	`), guildID, userID, delta, time.Now().Unix())
	return err
}

func (s *Store) SetPoints(ctx context.Context, guildID, userID string, total float64) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO user_points (guild_id, user_id, total_points, events_participated, last_updated)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			total_points = excluded.total_points,
			last_updated = excluded.last_updated
	`), guildID, userID, total, time.Now().Unix())
	return err
}

func (s *Store) ResetAllPoints(ctx context.Context, guildID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE user_points SET total_points = 0, events_participated = 0, last_updated = ? WHERE guild_id = ?
	`), time.Now().Unix(), guildID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetPoints returns a zero balance for users that never earned anything.
func (s *Store) GetPoints(ctx context.Context, guildID, userID string) (Balance, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT total_points, events_participated, last_updated
		FROM user_points WHERE guild_id = ? AND user_id = ?
	`), guildID, userID)

	balance := Balance{GuildID: guildID, UserID: userID}
	var updated int64
	if err := row.Scan(&balance.TotalPoints, &balance.EventsParticipated, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return balance, nil
		}
		return Balance{}, err
	}
	balance.LastUpdated = time.Unix(updated, 0)
	return balance, nil
}

func (s *Store) Leaderboard(ctx context.Context, guildID string, limit int) ([]Balance, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT user_id, total_points, events_participated, last_updated
		FROM user_points
		WHERE guild_id = ? AND total_points > 0
		ORDER BY total_points DESC, user_id
		LIMIT ?
	`), guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		balance := Balance{GuildID: guildID}
		var updated int64
		if err := rows.Scan(&balance.UserID, &balance.TotalPoints, &balance.EventsParticipated, &updated); err != nil {
			return nil, err
		}
		balance.LastUpdated = time.Unix(updated, 0)
		out = append(out, balance)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type NewSubmission struct {
	GuildID               string
	SubmitterID           string
	EventType             string
	Action                string
	Participants          []string
	BasePoints            float64
	Screenshot            string
	ThreadID              string
	AnnouncementChannelID string
	AnnouncementMessageID string
	CorrelationToken      string
	CreatedAt             time.Time
}

type Submission struct {
	ID                    int64
	GuildID               string
	SubmitterID           string
	EventType             string
	Action                string
	GroupSize             int
	BasePoints            float64
	Participants          []string
	Screenshot            string
	Status                string
	FinalMultiplier       *float64
	FinalPoints           *float64
	ReviewerID            string
	Reason                string
	ThreadID              string
	AnnouncementChannelID string
	AnnouncementMessageID string
	ModeratorChannelID    string
	ModeratorMessageID    string
	CorrelationToken      string
	CreatedAt             time.Time
	ReviewedAt            *time.Time
}

type StatusUpdate struct {
	ID          int64
	Status      string
	ReviewerID  string
	Multiplier  *float64
	FinalPoints *float64
	Reason      string
	At          time.Time
}

const submissionColumns = `
	id, guild_id, submitter_id, event_type, action, group_size, base_points, screenshot_url,
	status, final_multiplier, final_points_per_person, reviewer_id, reason, thread_id,
	announcement_channel_id, announcement_message_id, moderator_channel_id, moderator_message_id,
	correlation_token, created_at, reviewed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var multiplier, points sql.NullFloat64
	var created int64
	var reviewed sql.NullInt64
	err := row.Scan(
		&sub.ID, &sub.GuildID, &sub.SubmitterID, &sub.EventType, &sub.Action, &sub.GroupSize, &sub.BasePoints, &sub.Screenshot,
		&sub.Status, &multiplier, &points, &sub.ReviewerID, &sub.Reason, &sub.ThreadID,
		&sub.AnnouncementChannelID, &sub.AnnouncementMessageID, &sub.ModeratorChannelID, &sub.ModeratorMessageID,
		&sub.CorrelationToken, &created, &reviewed,
	)
	if err != nil {
		return Submission{}, err
	}
	if multiplier.Valid {
		value := multiplier.Float64
		sub.FinalMultiplier = &value
	}
	if points.Valid {
		value := points.Float64
		sub.FinalPoints = &value
	}
	sub.CreatedAt = time.Unix(created, 0)
	if reviewed.Valid {
		value := time.Unix(reviewed.Int64, 0)
		sub.ReviewedAt = &value
	}
	return sub, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub NewSubmission) (id int64, err error) {
	if len(sub.Participants) == 0 {
		return 0, errors.New("submission needs at least one participant")
	}
	created := sub.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, s.q(`
		INSERT INTO event_submissions (
			guild_id, submitter_id, event_type, action, group_size, base_points, screenshot_url,
			status, thread_id, announcement_channel_id, announcement_message_id, correlation_token, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		sub.GuildID, sub.SubmitterID, sub.EventType, sub.Action, len(sub.Participants), sub.BasePoints, sub.Screenshot,
		StatusPending, sub.ThreadID, sub.AnnouncementChannelID, sub.AnnouncementMessageID, sub.CorrelationToken, created.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	for i, userID := range sub.Participants {
		if _, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO event_participants (submission_id, user_id, seq, points_awarded)
			VALUES (?, ?, ?, 0)
			ON CONFLICT(submission_id, user_id) DO NOTHING
		`), id, userID, i); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetSubmission(ctx context.Context, id int64) (Submission, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+submissionColumns+` FROM event_submissions WHERE id = ?`), id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, fmt.Errorf("submission %d: %w", id, ErrNotFound)
		}
		return Submission{}, err
	}
	participants, err := s.participants(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	sub.Participants = participants
	return sub, nil
}

func (s *Store) participants(ctx context.Context, submissionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT user_id FROM event_participants WHERE submission_id = ? ORDER BY seq, user_id
	`), submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus moves a pending submission to approved or rejected. It reports false
// without changing anything when the submission is no longer pending.
func (s *Store) SetStatus(ctx context.Context, update StatusUpdate) (changed bool, err error) {
	if update.Status != StatusApproved && update.Status != StatusRejected {
		return false, fmt.Errorf("invalid target status %q", update.Status)
	}
	at := update.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !changed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE event_submissions SET
			status = ?,
			reviewer_id = ?,
			final_multiplier = ?,
			final_points_per_person = ?,
			reason = ?,
			reviewed_at = ?
		WHERE id = ? AND status = ?
	`), update.Status, update.ReviewerID, nullFloat(update.Multiplier), nullFloat(update.FinalPoints), update.Reason, at.Unix(), update.ID, StatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if update.Status == StatusApproved && update.FinalPoints != nil {
		if _, err = tx.ExecContext(ctx, s.q(`
			UPDATE event_participants SET points_awarded = ? WHERE submission_id = ?
		`), *update.FinalPoints, update.ID); err != nil {
			return false, err
		}
	}

	changed = true
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetModeratorMessage(ctx context.Context, id int64, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE event_submissions SET moderator_channel_id = ?, moderator_message_id = ? WHERE id = ?
	`), channelID, messageID, id)
	return err
}

// ListSubmissions returns the newest submissions of a guild, optionally filtered by status.
func (s *Store) ListSubmissions(ctx context.Context, guildID, status string, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 25
	}
	query := `SELECT ` + submissionColumns + ` FROM event_submissions WHERE guild_id = ?`
	args := []any{guildID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	subs, err := s.querySubmissions(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return subs, s.attachParticipants(ctx, subs)
}

// UserHistory lists the submissions a user took part in, newest first.
func (s *Store) UserHistory(ctx context.Context, guildID, userID string, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 10
	}
	subs, err := s.querySubmissions(ctx, `
		SELECT `+submissionColumns+` FROM event_submissions
		WHERE guild_id = ? AND id IN (SELECT submission_id FROM event_participants WHERE user_id = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, guildID, userID, limit)
	if err != nil {
		return nil, err
	}
	return subs, s.attachParticipants(ctx, subs)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) attachParticipants(ctx context.Context, subs []Submission) error {
	for i := range subs {
		participants, err := s.participants(ctx, subs[i].ID)
		if err != nil {
			return err
		}
		subs[i].Participants = participants
	}
	return nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.q(`DELETE FROM event_participants WHERE submission_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM event_submissions WHERE id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = fmt.Errorf("submission %d: %w", id, ErrNotFound)
		return err
	}
	return tx.Commit()
}

type GuildStats struct {
	ByStatus          map[string]int
	PointsDistributed float64
	ActiveUsers       int
}

func (s *Store) GuildStats(ctx context.Context, guildID string) (GuildStats, error) {
	stats := GuildStats{ByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT status, COUNT(*) FROM event_submissions WHERE guild_id = ? GROUP BY status
	`), guildID)
	if err != nil {
		return GuildStats{}, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return GuildStats{}, err
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return GuildStats{}, err
	}
	rows.Close()

	var distributed sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.q(`
		SELECT SUM(final_points_per_person * group_size) FROM event_submissions
		WHERE guild_id = ? AND status = ?
	`), guildID, StatusApproved).Scan(&distributed); err != nil {
		return GuildStats{}, err
	}
	stats.PointsDistributed = distributed.Float64

	if err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM user_points WHERE guild_id = ? AND total_points > 0
	`), guildID).Scan(&stats.ActiveUsers); err != nil {
		return GuildStats{}, err
	}
	return stats, nil
}

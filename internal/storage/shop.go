package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
	PurchaseRejected  = "rejected"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrAlreadyProcessed   = errors.New("purchase already processed")
)

type NewPurchase struct {
	GuildID  string
	UserID   string
	ItemID   string
	ItemName string
	Cost     int
}

type Purchase struct {
	ID          int64
	GuildID     string
	UserID      string
	ItemID      string
	ItemName    string
	Cost        int
	Status      string
	AdminNotes  string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	ProcessedBy string
}

// CreatePurchase deducts the item cost and records a pending purchase in one transaction.
func (s *Store) CreatePurchase(ctx context.Context, p NewPurchase) (id int64, err error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The balance check lives in the UPDATE so concurrent buys cannot both pass it.
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE user_points SET total_points = total_points - ?, last_updated = ?
		WHERE guild_id = ? AND user_id = ? AND total_points >= ?
	`), p.Cost, now.Unix(), p.GuildID, p.UserID, p.Cost)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		var balance float64
		if scanErr := tx.QueryRowContext(ctx, s.q(`
			SELECT total_points FROM user_points WHERE guild_id = ? AND user_id = ?
		`), p.GuildID, p.UserID).Scan(&balance); scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
			err = scanErr
			return 0, err
		}
		err = fmt.Errorf("%w: have %.2f, need %d", ErrInsufficientPoints, balance, p.Cost)
		return 0, err
	}

	err = tx.QueryRowContext(ctx, s.q(`
		INSERT INTO shop_purchases (guild_id, user_id, item_id, item_name, points_cost, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), p.GuildID, p.UserID, p.ItemID, p.ItemName, p.Cost, PurchasePending, now.Unix()).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ProcessPurchase completes or rejects a pending purchase. Rejection refunds the cost.
func (s *Store) ProcessPurchase(ctx context.Context, id int64, status, processedBy, notes string) (p Purchase, err error) {
	if status != PurchaseCompleted && status != PurchaseRejected {
		return Purchase{}, fmt.Errorf("invalid purchase status %q", status)
	}
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Purchase{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	p, err = scanPurchase(tx.QueryRowContext(ctx, s.q(`SELECT `+purchaseColumns+` FROM shop_purchases WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("purchase %d: %w", id, ErrNotFound)
		}
		return Purchase{}, err
	}
	if p.Status != PurchasePending {
		err = fmt.Errorf("purchase %d is %s: %w", id, p.Status, ErrAlreadyProcessed)
		return Purchase{}, err
	}

	if _, err = tx.ExecContext(ctx, s.q(`
		UPDATE shop_purchases SET status = ?, admin_notes = ?, processed_at = ?, processed_by = ? WHERE id = ?
	`), status, notes, now.Unix(), processedBy, id); err != nil {
		return Purchase{}, err
	}
	if status == PurchaseRejected {
		if _, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO user_points (guild_id, user_id, total_points, events_participated, last_updated)
			VALUES (?, ?, ?, 0, ?)
			ON CONFLICT(guild_id, user_id) DO UPDATE SET
				total_points = user_points.total_points + excluded.total_points,
				last_updated = excluded.last_updated
		`), p.GuildID, p.UserID, p.Cost, now.Unix()); err != nil {
			return Purchase{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return Purchase{}, err
	}

	p.Status = status
	p.AdminNotes = notes
	p.ProcessedAt = &now
	p.ProcessedBy = processedBy
	return p, nil
}

func (s *Store) ListPurchases(ctx context.Context, guildID, status string) ([]Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM shop_purchases WHERE guild_id = ?`
	args := []any{guildID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const purchaseColumns = `id, guild_id, user_id, item_id, item_name, points_cost, status, admin_notes, created_at, processed_at, processed_by`

func scanPurchase(row rowScanner) (Purchase, error) {
	var p Purchase
	var created int64
	var processed sql.NullInt64
	if err := row.Scan(&p.ID, &p.GuildID, &p.UserID, &p.ItemID, &p.ItemName, &p.Cost, &p.Status, &p.AdminNotes, &created, &processed, &p.ProcessedBy); err != nil {
		return Purchase{}, err
	}
	p.CreatedAt = time.Unix(created, 0)
	if processed.Valid {
		value := time.Unix(processed.Int64, 0)
		p.ProcessedAt = &value
	}
	return p, nil
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db      *sql.DB
	dialect string
}

type GuildConfig struct {
	GuildID          string
	Language         string
	EventsChannel    string
	ModeratorChannel string
	ModeratorRole    string
	PointsStartDate  string
	PointsEndDate    string
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

// New opens the store. driver is "sqlite" (dsn is a file path or ":memory:") or
// "postgres" (dsn is a libpq/pgx connection string).
func New(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// one connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
		return &Store{db: db, dialect: DriverSQLite}, nil
	case DriverPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return &Store{db: db, dialect: DriverPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Migrate() error {
	dir := path.Join("migrations", s.dialect)
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join(dir, file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

// q rewrites ? placeholders into $n for postgres.
func (s *Store) q(query string) string {
	if s.dialect != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) GetGuildConfig(ctx context.Context, guildID string, defaults GuildConfig) (GuildConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT language, events_channel, moderator_channel, moderator_role, points_start_date, points_end_date
		FROM guild_config WHERE guild_id = ?`), guildID)

	result := defaults
	result.GuildID = guildID

	var cfg GuildConfig
	err := row.Scan(&cfg.Language, &cfg.EventsChannel, &cfg.ModeratorChannel, &cfg.ModeratorRole, &cfg.PointsStartDate, &cfg.PointsEndDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return GuildConfig{}, err
	}
	if cfg.Language != "" {
		result.Language = cfg.Language
	}
	if cfg.EventsChannel != "" {
		result.EventsChannel = cfg.EventsChannel
	}
	if cfg.ModeratorChannel != "" {
		result.ModeratorChannel = cfg.ModeratorChannel
	}
	result.ModeratorRole = cfg.ModeratorRole
	result.PointsStartDate = cfg.PointsStartDate
	result.PointsEndDate = cfg.PointsEndDate
	return result, nil
}

func (s *Store) UpsertGuildConfig(ctx context.Context, cfg GuildConfig) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO guild_config (
			guild_id, language, events_channel, moderator_channel, moderator_role,
			points_start_date, points_end_date, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			language = excluded.language,
			events_channel = excluded.events_channel,
			moderator_channel = excluded.moderator_channel,
			moderator_role = excluded.moderator_role,
			points_start_date = excluded.points_start_date,
			points_end_date = excluded.points_end_date,
			updated_at = excluded.updated_at
	`),
		cfg.GuildID,
		cfg.Language,
		cfg.EventsChannel,
		cfg.ModeratorChannel,
		cfg.ModeratorRole,
		cfg.PointsStartDate,
		cfg.PointsEndDate,
		time.Now().Unix(),
	)
	return err
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`), guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM audit_logs WHERE created_at < ?`), cutoff.Unix())
	return err
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}

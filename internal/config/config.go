package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken     string             `yaml:"discord_token"`
	DatabaseDriver   string             `yaml:"database_driver"`
	DatabasePath     string             `yaml:"database_path"`
	LogLevel         string             `yaml:"log_level"`
	DefaultLanguage  string             `yaml:"default_language"`
	EventsChannel    string             `yaml:"events_channel"`
	ModeratorChannel string             `yaml:"moderator_channel"`
	RetentionDays    int                `yaml:"retention_days"`
	Health           HealthConfig       `yaml:"health"`
	Points           PointsConfig       `yaml:"points"`
	Session          SessionConfig      `yaml:"session"`
	Throttle         ThrottleConfig     `yaml:"throttle"`
	Announcements    AnnouncementConfig `yaml:"announcements"`
	Screenshots      ScreenshotConfig   `yaml:"screenshots"`
	EmbedColors      EmbedColors        `yaml:"embed_colors"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type PointsConfig struct {
	Multipliers     []float64 `yaml:"multipliers"`
	MaxParticipants int       `yaml:"max_participants"`
}

type SessionConfig struct {
	TTLMinutes   int `yaml:"ttl_minutes"`
	SweepSeconds int `yaml:"sweep_seconds"`
}

type ThrottleConfig struct {
	MaxSessions   int `yaml:"max_sessions"`
	WindowSeconds int `yaml:"window_seconds"`
}

type AnnouncementConfig struct {
	EditsPerSecond float64 `yaml:"edits_per_second"`
	Burst          int     `yaml:"burst"`
}

type ScreenshotConfig struct {
	Probe    bool  `yaml:"probe"`
	MaxBytes int64 `yaml:"max_bytes"`
}

type EmbedColors struct {
	Info    int `yaml:"info"`
	Success int `yaml:"success"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseDriver:  "sqlite",
		DatabasePath:    "/data/eventpoints.db",
		LogLevel:        "info",
		DefaultLanguage: "ru",
		RetentionDays:   30,
		Health:          HealthConfig{Enabled: false, Addr: ":8080"},
		Points: PointsConfig{
			Multipliers:     []float64{1, 1.5, 2, 3, 5, 6, 10},
			MaxParticipants: 20,
		},
		Session:       SessionConfig{TTLMinutes: 0, SweepSeconds: 60},
		Throttle:      ThrottleConfig{MaxSessions: 5, WindowSeconds: 60},
		Announcements: AnnouncementConfig{EditsPerSecond: 2, Burst: 4},
		Screenshots:   ScreenshotConfig{Probe: false, MaxBytes: 1 << 20},
		EmbedColors: EmbedColors{
			Info:    0x3B82F6,
			Success: 0x22C55E,
			Warning: 0xF59E0B,
			Error:   0xEF4444,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	switch c.DatabaseDriver {
	case "", "sqlite":
		c.DatabaseDriver = "sqlite"
	case "postgres", "postgresql", "pgx":
		c.DatabaseDriver = "postgres"
	default:
		return fmt.Errorf("unsupported database_driver %q", c.DatabaseDriver)
	}
	c.DefaultLanguage = normalizeLanguage(c.DefaultLanguage)

	if len(c.Points.Multipliers) == 0 {
		c.Points.Multipliers = DefaultConfig().Points.Multipliers
	}
	for _, m := range c.Points.Multipliers {
		if m <= 0 {
			return fmt.Errorf("points.multipliers: %v must be positive", m)
		}
	}
	if c.Points.MaxParticipants <= 0 {
		c.Points.MaxParticipants = 20
	}
	if c.Session.TTLMinutes < 0 {
		c.Session.TTLMinutes = 0
	}
	if c.Session.SweepSeconds <= 0 {
		c.Session.SweepSeconds = 60
	}
	if c.Announcements.EditsPerSecond <= 0 {
		c.Announcements.EditsPerSecond = 2
	}
	if c.Announcements.Burst <= 0 {
		c.Announcements.Burst = 1
	}
	if c.Screenshots.MaxBytes <= 0 {
		c.Screenshots.MaxBytes = 1 << 20
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabaseDriver = envString("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultLanguage = envString("DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	cfg.EventsChannel = envString("EVENTS_CHANNEL", cfg.EventsChannel)
	cfg.ModeratorChannel = envString("MODERATOR_CHANNEL", cfg.ModeratorChannel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Points.Multipliers = envFloats("POINTS_MULTIPLIERS", cfg.Points.Multipliers)
	cfg.Points.MaxParticipants = envInt("POINTS_MAX_PARTICIPANTS", cfg.Points.MaxParticipants)
	cfg.Session.TTLMinutes = envInt("SESSION_TTL_MINUTES", cfg.Session.TTLMinutes)
	cfg.Session.SweepSeconds = envInt("SESSION_SWEEP_SECONDS", cfg.Session.SweepSeconds)
	cfg.Throttle.MaxSessions = envInt("THROTTLE_MAX_SESSIONS", cfg.Throttle.MaxSessions)
	cfg.Throttle.WindowSeconds = envInt("THROTTLE_WINDOW_SECONDS", cfg.Throttle.WindowSeconds)
	cfg.Screenshots.Probe = envBool("SCREENSHOTS_PROBE", cfg.Screenshots.Probe)
	cfg.EmbedColors.Info = envInt("EMBED_COLOR_INFO", cfg.EmbedColors.Info)
	cfg.EmbedColors.Success = envInt("EMBED_COLOR_SUCCESS", cfg.EmbedColors.Success)
	cfg.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.EmbedColors.Warning)
	cfg.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.EmbedColors.Error)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func normalizeLanguage(value string) string {
	switch strings.ToLower(value) {
	case "en":
		return "en"
	default:
		return "ru"
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

// envFloats reads a comma separated list. Any bad element keeps the fallback.
func envFloats(key string, fallback []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []float64
	for _, part := range strings.Split(value, ",") {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return fallback
		}
		out = append(out, parsed)
	}
	return out
}

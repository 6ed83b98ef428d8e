package throttle

import (
	"context"
	"sync"
	"time"

	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/utils"
)

type Config struct {
	Actions       int
	WindowSeconds int
}

// Module limits how many submission actions one member can start per window.
type Module struct {
	mu      sync.Mutex
	windows map[string]*utils.SlidingWindow
	config  Config
	audit   *audit.Logger
	now     func() time.Time
}

func New(cfg Config, auditLogger *audit.Logger) *Module {
	return &Module{
		windows: make(map[string]*utils.SlidingWindow),
		config:  cfg,
		audit:   auditLogger,
		now:     time.Now,
	}
}

func (m *Module) Enabled() bool {
	return m.config.Actions > 0 && m.config.WindowSeconds > 0
}

// Allow records an action by userID and reports whether it fits the limit.
func (m *Module) Allow(ctx context.Context, guildID, userID string) bool {
	if !m.Enabled() {
		return true
	}
	window := m.getWindow(guildID + ":" + userID)
	if window.Allow(m.now(), m.config.Actions) {
		return true
	}
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelWarn, guildID, userID, audit.EventThrottled, "submission actions burst")
	}
	return false
}

// Prune drops windows with no hits left. It returns how many were dropped.
func (m *Module) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for key, window := range m.windows {
		if window.Count(now) == 0 {
			delete(m.windows, key)
			dropped++
		}
	}
	return dropped
}

func (m *Module) getWindow(key string) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.windows[key]
	if window == nil {
		window = utils.NewSlidingWindow(time.Duration(m.config.WindowSeconds) * time.Second)
		m.windows[key] = window
	}
	return window
}

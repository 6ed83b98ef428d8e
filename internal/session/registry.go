package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"eventpoints-bot/internal/catalog"

	"github.com/google/uuid"
)

var (
	ErrDuplicateSession = errors.New("session already exists")
	ErrSessionNotFound  = errors.New("session not found")
)

type Key struct {
	SubmitterID string
	ChannelID   string
}

func (k Key) String() string {
	return k.SubmitterID + ":" + k.ChannelID
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Registry maps (submitter, conversation channel) to the live session of that pair.
// It is the only place sessions are created, rekeyed or dropped.
type Registry struct {
	mu       sync.RWMutex
	clock    Clock
	ttl      time.Duration
	entries  map[Key]*Session
	newToken func() string
}

func NewRegistry() *Registry {
	return &Registry{
		clock:    realClock{},
		entries:  make(map[Key]*Session),
		newToken: correlationToken,
	}
}

func (r *Registry) WithClock(clock Clock) {
	r.clock = clock
}

// WithTTL enables idle eviction in Sweep. Zero keeps sessions until they are removed.
func (r *Registry) WithTTL(ttl time.Duration) {
	r.ttl = ttl
}

func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

func correlationToken() string {
	return "tmp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (r *Registry) Create(guildID, submitterID, channelID string, eventType catalog.EventType, action catalog.Action) (*Session, error) {
	key := Key{SubmitterID: submitterID, ChannelID: channelID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, key)
	}
	s := newSession(guildID, submitterID, channelID, eventType, action, r.newToken(), r.clock.Now())
	r.entries[key] = s
	return s, nil
}

func (r *Registry) Lookup(submitterID, channelID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[Key{SubmitterID: submitterID, ChannelID: channelID}]
	return s, ok
}

// Rebind moves the session of submitterID from oldChannelID to newChannelID in one step.
func (r *Registry) Rebind(oldChannelID, newChannelID, submitterID string) (*Session, error) {
	return r.RebindIf(oldChannelID, newChannelID, submitterID, nil)
}

// RebindIf is Rebind restricted to sessions accepted by match. A nil match accepts all.
func (r *Registry) RebindIf(oldChannelID, newChannelID, submitterID string, match func(Snapshot) bool) (*Session, error) {
	oldKey := Key{SubmitterID: submitterID, ChannelID: oldChannelID}
	newKey := Key{SubmitterID: submitterID, ChannelID: newChannelID}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[oldKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, oldKey)
	}
	if match != nil && !match(s.Snapshot()) {
		return nil, fmt.Errorf("%w: %s does not belong to %s", ErrSessionNotFound, newChannelID, oldKey)
	}
	if oldKey == newKey {
		return s, nil
	}
	if _, taken := r.entries[newKey]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, newKey)
	}
	delete(r.entries, oldKey)
	s.rebind(newChannelID, r.clock.Now())
	r.entries[newKey] = s
	return s, nil
}

// RescueScan looks for a session whose conversation channel is channelID but which
// is stored under a different key. A session owned by authorID wins; otherwise a
// channel-only match is accepted only when it is the single candidate. The match is
// rekeyed to (owner, channelID) unless that key is already taken.
func (r *Registry) RescueScan(channelID, authorID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type candidate struct {
		key     Key
		session *Session
	}
	var owned []candidate
	var all []candidate
	for key, s := range r.entries {
		snap := s.Snapshot()
		if snap.ChannelID != channelID && key.ChannelID != channelID {
			continue
		}
		c := candidate{key: key, session: s}
		all = append(all, c)
		if snap.SubmitterID == authorID {
			owned = append(owned, c)
		}
	}

	var match candidate
	switch {
	case len(owned) == 1:
		match = owned[0]
	case len(owned) == 0 && len(all) == 1:
		match = all[0]
	default:
		return nil, false
	}

	target := Key{SubmitterID: match.session.SubmitterID(), ChannelID: channelID}
	if match.key == target {
		return match.session, true
	}
	if existing, taken := r.entries[target]; taken && existing != match.session {
		return nil, false
	}
	delete(r.entries, match.key)
	match.session.rebind(channelID, r.clock.Now())
	r.entries[target] = match.session
	return match.session, true
}

func (r *Registry) Remove(submitterID, channelID string) bool {
	key := Key{SubmitterID: submitterID, ChannelID: channelID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// RemoveSession drops s from whatever key currently holds it.
func (r *Registry) RemoveSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.entries {
		if entry == s {
			delete(r.entries, key)
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

// Sweep evicts sessions idle longer than the configured TTL and returns how many were dropped.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, s := range r.entries {
		if s.lastActivity().Before(cutoff) {
			delete(r.entries, key)
			evicted++
		}
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration, onEvict func(int)) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 && onEvict != nil {
				onEvict(n)
			}
		}
	}
}

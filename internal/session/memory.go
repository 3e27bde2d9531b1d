package session

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
)

const (
	DefaultRetention     = 24 * time.Hour
	DefaultHistoryWindow = 10
)

// Option configures a Memory.
type Option func(*Memory)

// WithRetention sets how long an idle session is kept.
func WithRetention(d time.Duration) Option {
	return func(m *Memory) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithLogger attaches a logger for eviction events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Memory) { m.log = l }
}

// Memory is the process-wide conversation store. It is created once at
// startup, handed to the orchestrator, and dropped at shutdown; nothing in
// it survives a restart.
type Memory struct {
	mu        sync.Mutex
	sessions  map[string]*Conversation
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewMemory creates an empty store.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		sessions:  make(map[string]*Conversation),
		retention: DefaultRetention,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Retention returns the configured retention window.
func (m *Memory) Retention() time.Duration { return m.retention }

// Append records a plain message turn. See AppendKind.
func (m *Memory) Append(sessionID string, role Role, content string) TurnID {
	return m.AppendKind(sessionID, role, content, KindMessage)
}

// AppendKind records a turn and returns its id. It never fails. Stale
// sessions are evicted first, so every append bounds memory growth.
func (m *Memory) AppendKind(sessionID string, role Role, content string, kind Kind) TurnID {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evictLocked(now, m.retention)

	conv, ok := m.sessions[sessionID]
	if !ok {
		conv = newConversation(sessionID, now)
		m.sessions[sessionID] = conv
	}

	id := TurnID(uuid.NewString())
	conv.Turns = append(conv.Turns, Turn{
		ID:        id,
		Role:      role,
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
	})
	conv.UpdatedAt = now
	return id
}

// Recent returns up to n of the latest turns, oldest first. The returned
// slice is a copy.
func (m *Memory) Recent(sessionID string, n int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.sessions[sessionID]
	if !ok || n <= 0 {
		return nil
	}
	turns := conv.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return slices.Clone(turns)
}

// Turns returns the full log of a session (copy).
func (m *Memory) Turns(sessionID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.sessions[sessionID]; ok {
		return slices.Clone(conv.Turns)
	}
	return nil
}

// EvictStale removes every session whose most recent activity is older than
// maxAge before now, and drops expired turns from the sessions that stay.
// It returns the number of sessions removed.
func (m *Memory) EvictStale(now time.Time, maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(now, maxAge)
}

// Sweep evicts with the store's own clock and retention window. Callers
// run it before reading a session so expired turns never reach a prompt.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(m.now(), m.retention)
}

func (m *Memory) evictLocked(now time.Time, maxAge time.Duration) int {
	cutoff := now.Add(-maxAge)
	removed := 0
	for id, conv := range m.sessions {
		if conv.lastActivity().Before(cutoff) {
			delete(m.sessions, id)
			removed++
			continue
		}
		conv.Turns = slices.DeleteFunc(conv.Turns, func(t Turn) bool {
			return t.CreatedAt.Before(cutoff)
		})
	}
	if removed > 0 {
		m.log.Debug().Int("sessions", removed).Dur("max_age", maxAge).Msg("evicted stale sessions")
	}
	return removed
}

// Clear drops a single session and its scratch state.
func (m *Memory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// ClearAll drops every session.
func (m *Memory) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sessions)
}

// Len reports how many sessions are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions lists live sessions, most recently active first.
func (m *Memory) Sessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, conv := range m.sessions {
		infos = append(infos, Info{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			LastActivity: conv.lastActivity(),
			Turns:        len(conv.Turns),
		})
	}
	slices.SortFunc(infos, func(a, b Info) int { return b.LastActivity.Compare(a.LastActivity) })
	return infos
}

// SetCurrentItems stores the item lookup shown to the model this turn.
func (m *Memory) SetCurrentItems(sessionID string, items map[string][]checklist.ItemRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.bucketLocked(sessionID)
	conv.CurrentItems = maps.Clone(items)
}

// CurrentItems returns the last stored item lookup, or an empty map.
func (m *Memory) CurrentItems(sessionID string) map[string][]checklist.ItemRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.sessions[sessionID]; ok && conv.CurrentItems != nil {
		return maps.Clone(conv.CurrentItems)
	}
	return map[string][]checklist.ItemRef{}
}

// SetVerificationState replaces the per-session verification scratch state.
func (m *Memory) SetVerificationState(sessionID string, state map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.bucketLocked(sessionID)
	conv.Verification = maps.Clone(state)
}

// VerificationState returns the verification scratch state, or an empty map.
func (m *Memory) VerificationState(sessionID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.sessions[sessionID]; ok && conv.Verification != nil {
		return maps.Clone(conv.Verification)
	}
	return map[string]string{}
}

// Context bundles recent turns and scratch state of a session.
func (m *Memory) Context(sessionID string, n int) Context {
	recent := m.Recent(sessionID, n)
	if recent == nil {
		recent = []Turn{}
	}
	return Context{
		SessionID:    sessionID,
		RecentTurns:  recent,
		CurrentItems: m.CurrentItems(sessionID),
		Verification: m.VerificationState(sessionID),
	}
}

// RunSweeper evicts stale sessions every interval until ctx is done.
// Append already evicts on every message; the sweeper only matters for
// deployments that may sit idle for long periods.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Memory) bucketLocked(sessionID string) *Conversation {
	conv, ok := m.sessions[sessionID]
	if !ok {
		now := m.now()
		conv = newConversation(sessionID, now)
		m.sessions[sessionID] = conv
	}
	return conv
}

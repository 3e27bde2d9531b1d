package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory() (*Memory, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	return NewMemory(WithClock(clk.Now)), clk
}

func TestMemory_RecentWindow(t *testing.T) {
	m, clk := newTestMemory()
	for i := range 12 {
		m.Append("s1", RoleUser, fmt.Sprintf("msg %d", i))
		clk.Advance(time.Second)
	}

	got := m.Recent("s1", DefaultHistoryWindow)
	require.Len(t, got, 10)
	assert.Equal(t, "msg 2", got[0].Content)
	assert.Equal(t, "msg 11", got[9].Content)

	assert.Len(t, m.Recent("s1", 50), 12)
	assert.Empty(t, m.Recent("s1", 0))
	assert.Empty(t, m.Recent("nobody", 10))
}

func TestMemory_RecentReturnsCopy(t *testing.T) {
	m, _ := newTestMemory()
	m.Append("s1", RoleUser, "hello")

	got := m.Recent("s1", 10)
	got[0].Content = "changed"

	assert.Equal(t, "hello", m.Recent("s1", 10)[0].Content)
}

func TestMemory_SessionsAreIsolated(t *testing.T) {
	m, _ := newTestMemory()
	m.Append("a", RoleUser, "from a")
	m.Append("b", RoleUser, "from b")

	require.Len(t, m.Recent("a", 10), 1)
	assert.Equal(t, "from a", m.Recent("a", 10)[0].Content)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_AppendKindAndIDs(t *testing.T) {
	m, _ := newTestMemory()
	id1 := m.Append("s1", RoleUser, "done with the radio")
	id2 := m.AppendKind("s1", RoleStatus, "Progress: 1/30 items completed", KindStatusUpdate)
	assert.NotEqual(t, id1, id2)

	turns := m.Turns("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, KindMessage, turns[0].Kind)
	assert.Equal(t, KindStatusUpdate, turns[1].Kind)
	assert.Equal(t, RoleStatus, turns[1].Role)
}

func TestMemory_EvictStale(t *testing.T) {
	m, clk := newTestMemory()
	m.Append("old", RoleUser, "yesterday")
	clk.Advance(23 * time.Hour)
	m.Append("fresh", RoleUser, "today")
	clk.Advance(2 * time.Hour)

	removed := m.EvictStale(clk.Now(), DefaultRetention)
	assert.Equal(t, 1, removed)
	assert.Empty(t, m.Recent("old", 10))
	assert.Len(t, m.Recent("fresh", 10), 1)
}

func TestMemory_SweepUsesOwnClock(t *testing.T) {
	m, clk := newTestMemory()
	m.Append("s1", RoleUser, "before the trip")
	clk.Advance(DefaultRetention + time.Minute)

	assert.Equal(t, 1, m.Sweep())
	assert.Empty(t, m.Recent("s1", 10))
	assert.Zero(t, m.Sweep())
}

func TestMemory_AppendEvictsOtherSessions(t *testing.T) {
	m, clk := newTestMemory()
	m.Append("old", RoleUser, "ping")
	clk.Advance(25 * time.Hour)

	m.Append("new", RoleUser, "pong")
	assert.Equal(t, 1, m.Len())
	assert.Empty(t, m.Turns("old"))
}

func TestMemory_PrunesExpiredTurnsInLiveSession(t *testing.T) {
	m, clk := newTestMemory()
	m.Append("s1", RoleUser, "first")
	clk.Advance(25 * time.Hour)
	m.Append("s1", RoleUser, "second")

	turns := m.Turns("s1")
	require.Len(t, turns, 1)
	assert.Equal(t, "second", turns[0].Content)
}

func TestMemory_WithRetention(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	m := NewMemory(WithClock(clk.Now), WithRetention(time.Hour))
	assert.Equal(t, time.Hour, m.Retention())

	m.Append("s1", RoleUser, "hi")
	clk.Advance(90 * time.Minute)
	m.Append("s2", RoleUser, "hi")
	assert.Empty(t, m.Turns("s1"))
}

func TestMemory_Clear(t *testing.T) {
	m, _ := newTestMemory()
	m.Append("a", RoleUser, "1")
	m.Append("b", RoleUser, "2")
	m.SetVerificationState("a", map[string]string{"7": "pending"})

	m.Clear("a")
	assert.Empty(t, m.Turns("a"))
	assert.Empty(t, m.VerificationState("a"))
	assert.Len(t, m.Turns("b"), 1)

	m.ClearAll()
	assert.Zero(t, m.Len())
}

func TestMemory_ScratchState(t *testing.T) {
	m, _ := newTestMemory()
	assert.Empty(t, m.CurrentItems("s1"))

	items := map[string][]checklist.ItemRef{
		"vhf radio test": {{ID: 7, Category: "Catamaran", Section: "Navigation & Communication"}},
	}
	m.SetCurrentItems("s1", items)
	delete(items, "vhf radio test")

	got := m.CurrentItems("s1")
	require.Contains(t, got, "vhf radio test")
	assert.Equal(t, int64(7), got["vhf radio test"][0].ID)

	ctx := m.Context("s1", 10)
	assert.Equal(t, "s1", ctx.SessionID)
	assert.Empty(t, ctx.RecentTurns)
	assert.Len(t, ctx.CurrentItems, 1)
	assert.NotNil(t, ctx.Verification)
}

func TestMemory_SessionsOrderedByActivity(t *testing.T) {
	m, clk := newTestMemory()
	m.Append("a", RoleUser, "1")
	clk.Advance(time.Minute)
	m.Append("b", RoleUser, "2")
	m.Append("b", RoleAssistant, "3")

	infos := m.Sessions()
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].ID)
	assert.Equal(t, 2, infos[0].Turns)
	assert.Equal(t, "a", infos[1].ID)
}

func TestMemory_ConcurrentAppend(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				m.Append(fmt.Sprintf("s%d", i%2), RoleUser, fmt.Sprintf("%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.Turns("s0"), 200)
	assert.Len(t, m.Turns("s1"), 200)
}

func TestMemory_RunSweeperStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMemory(WithRetention(time.Millisecond))
	m.Append("s1", RoleUser, "hi")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestMemory_RunSweeperDisabled(t *testing.T) {
	m := NewMemory()
	// Returns immediately when the interval is zero.
	m.RunSweeper(context.Background(), 0)
}

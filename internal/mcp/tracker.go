package mcp

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashita-ai/convergent/internal/matching"
	"github.com/ashita-ai/convergent/internal/model"
)

// resolveTracker records recent convergent_resolve calls so handlePublish can
// detect when a caller publishes without resolving first and nudge them.
//
// Entries are keyed on (agentID, subject), where subject comes from
// trackSubject. The tracker is in-memory and per-process; the nudge is
// advisory, not a gate.
type resolveTracker struct {
	mu       sync.Mutex
	resolved map[resolveKey]time.Time
	window   time.Duration
}

type resolveKey struct {
	agentID string
	subject string
}

// trackSubject identifies what an intent is about: its sorted, normalized
// provided names, or its id when it provides nothing. Intents without an id
// get a fresh one on every decode, so the id alone cannot link a publish back
// to the resolve that preceded it.
func trackSubject(n model.IntentNode) string {
	if len(n.Provides) == 0 {
		return "id:" + n.ID
	}
	names := make([]string, 0, len(n.Provides))
	for _, p := range n.Provides {
		names = append(names, matching.NormalizeName(p.Name))
	}
	slices.Sort(names)
	return "provides:" + strings.Join(slices.Compact(names), "\x00")
}

func newResolveTracker(window time.Duration) *resolveTracker {
	return &resolveTracker{
		resolved: make(map[resolveKey]time.Time),
		window:   window,
	}
}

// Record notes that the agent resolved something about subject.
func (t *resolveTracker) Record(agentID, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolved[resolveKey{agentID, subject}] = time.Now()

	if len(t.resolved) > 1000 {
		t.purgeStale()
	}
}

// WasResolved reports whether the agent resolved subject within the window.
// A hit consumes the entry.
func (t *resolveTracker) WasResolved(agentID, subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := resolveKey{agentID, subject}
	ts, ok := t.resolved[key]
	if !ok {
		return false
	}
	delete(t.resolved, key)
	return time.Since(ts) <= t.window
}

// purgeStale removes entries older than the window. Must be called with mu held.
func (t *resolveTracker) purgeStale() {
	now := time.Now()
	for k, ts := range t.resolved {
		if now.Sub(ts) > t.window {
			delete(t.resolved, k)
		}
	}
}

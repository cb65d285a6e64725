// ABOUTME: Tests for ledger collection, expiry sweeps, conflict policies and apply bookkeeping.

package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/stream-agents/internal/agent"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger(t *testing.T) (*Ledger, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
	l := New(Options{Now: c.Now, SettledTTL: 5 * time.Minute})
	t.Cleanup(l.Close)
	return l, c
}

type recOpt func(*agent.Recommendation)

func withTTL(now time.Time, ttl time.Duration) recOpt {
	return func(r *agent.Recommendation) {
		exp := now.Add(ttl)
		r.ExpiresAt = &exp
	}
}

func withPayload(kv ...any) recOpt {
	return func(r *agent.Recommendation) {
		for i := 0; i+1 < len(kv); i += 2 {
			r.Payload[kv[i].(string)] = kv[i+1]
		}
	}
}

func rec(kind string, confidence float64, created time.Time, opts ...recOpt) agent.Recommendation {
	r := agent.Recommendation{
		ID:         uuid.New().String(),
		ProducedBy: "agent",
		Kind:       kind,
		Confidence: confidence,
		Payload:    map[string]any{},
		CreatedAt:  created,
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func TestLedger_CollectDeduplicatesByValue(t *testing.T) {
	l, c := newTestLedger(t)
	a := rec("k", 0.5, c.Now())
	b := rec("k", 0.5, c.Now())

	added := l.Collect([]agent.Recommendation{a, b})
	assert.Len(t, added, 2, "distinct ids never collapse")

	added = l.Collect([]agent.Recommendation{a, b})
	assert.Empty(t, added)
	assert.Equal(t, 2, l.Counts().Active)
}

func TestLedger_SweepRemovesExpired(t *testing.T) {
	l, c := newTestLedger(t)
	short := rec("short", 0.5, c.Now(), withTTL(c.Now(), 10*time.Second))
	forever := rec("forever", 0.5, c.Now())
	l.Collect([]agent.Recommendation{short, forever})

	assert.Empty(t, l.Sweep())

	c.Advance(11 * time.Second)
	expired := l.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, short.ID, expired[0].ID)

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, forever.ID, active[0].ID)
}

func TestLedger_ConfidencePolicyForPlaylist(t *testing.T) {
	l, c := newTestLedger(t)
	low := rec(agent.KindPlaylistOptimization, 0.6, c.Now())
	high := rec(agent.KindPlaylistOptimization, 0.9, c.Now().Add(time.Second))
	l.Collect([]agent.Recommendation{low, high})

	res := l.ResolveConflicts()
	require.Len(t, res, 1)
	assert.Equal(t, high.ID, res[0].Winner.ID)
	require.Len(t, res[0].Losers, 1)
	assert.Equal(t, low.ID, res[0].Losers[0].ID)

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 0.9, active[0].Confidence)
}

func TestLedger_SeverityPolicyPrefersLeastSevere(t *testing.T) {
	l, c := newTestLedger(t)
	high := rec(agent.KindQualityOptimization, 0.95, c.Now(), withPayload("severity", "high"))
	medium := rec(agent.KindQualityOptimization, 0.5, c.Now(), withPayload("severity", "medium"))
	l.Collect([]agent.Recommendation{high, medium})

	l.ResolveConflicts()

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "medium", active[0].Payload["severity"])
}

func TestLedger_SeverityPolicyIsNotAlphabetical(t *testing.T) {
	l, c := newTestLedger(t)
	// Alphabetical minimum would pick "high".
	l.Collect([]agent.Recommendation{
		rec(agent.KindQualityOptimization, 0.8, c.Now(), withPayload("severity", "medium")),
		rec(agent.KindQualityOptimization, 0.8, c.Now(), withPayload("severity", "high")),
		rec(agent.KindQualityOptimization, 0.8, c.Now(), withPayload("severity", "low")),
	})

	l.ResolveConflicts()

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "low", active[0].Payload["severity"])
}

func TestLedger_SeverityTieFallsBackToConfidence(t *testing.T) {
	l, c := newTestLedger(t)
	a := rec(agent.KindQualityOptimization, 0.7, c.Now(), withPayload("severity", "medium"))
	b := rec(agent.KindQualityOptimization, 0.85, c.Now(), withPayload("severity", "medium"))
	l.Collect([]agent.Recommendation{a, b})

	l.ResolveConflicts()

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestLedger_ConfidenceTieBrokenByEarliestCreation(t *testing.T) {
	l, c := newTestLedger(t)
	later := rec("custom", 0.8, c.Now().Add(time.Minute))
	earlier := rec("custom", 0.8, c.Now())
	l.Collect([]agent.Recommendation{later, earlier})

	l.ResolveConflicts()

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, earlier.ID, active[0].ID)
}

func TestLedger_ResolveLeavesSingletonsAndOrder(t *testing.T) {
	l, c := newTestLedger(t)
	a := rec("a", 0.5, c.Now())
	b1 := rec("b", 0.4, c.Now())
	cc := rec("c", 0.5, c.Now())
	b2 := rec("b", 0.9, c.Now())
	l.Collect([]agent.Recommendation{a, b1, cc, b2})

	res := l.ResolveConflicts()
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].Kind)

	var ids []string
	for _, r := range l.Active() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{a.ID, cc.ID, b2.ID}, ids)
}

func TestLedger_LosersAreNotRecollected(t *testing.T) {
	l, c := newTestLedger(t)
	low := rec(agent.KindPlaylistOptimization, 0.6, c.Now())
	high := rec(agent.KindPlaylistOptimization, 0.9, c.Now())
	l.Collect([]agent.Recommendation{low, high})
	l.ResolveConflicts()

	added := l.Collect([]agent.Recommendation{low, high})
	assert.Empty(t, added)
	assert.Equal(t, 1, l.Counts().Active)
}

func TestLedger_CustomPolicy(t *testing.T) {
	l, c := newTestLedger(t)
	l.SetPolicy("custom", func(a, b agent.Recommendation) bool { return a.Confidence < b.Confidence })
	l.Collect([]agent.Recommendation{rec("custom", 0.2, c.Now()), rec("custom", 0.9, c.Now())})

	l.ResolveConflicts()

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 0.2, active[0].Confidence)
}

func TestLedger_Eligible(t *testing.T) {
	l, c := newTestLedger(t)
	yes := rec("k1", 0.95, c.Now(), withPayload("auto_apply", true))
	lowConfidence := rec("k2", 0.75, c.Now(), withPayload("auto_apply", true))
	boundary := rec("k3", 0.8, c.Now(), withPayload("auto_apply", true))
	notFlagged := rec("k4", 0.99, c.Now())
	l.Collect([]agent.Recommendation{yes, lowConfidence, boundary, notFlagged})

	eligible := l.Eligible(0.8)
	require.Len(t, eligible, 1)
	assert.Equal(t, yes.ID, eligible[0].ID)
}

func TestLedger_MarkAppliedMovesAtomically(t *testing.T) {
	l, c := newTestLedger(t)
	r := rec("k", 0.95, c.Now(), withPayload("auto_apply", true))
	l.Collect([]agent.Recommendation{r})

	require.True(t, l.MarkApplied(r))
	assert.False(t, l.MarkApplied(r), "already applied")

	assert.Empty(t, l.Active())
	applied := l.Applied()
	require.Len(t, applied, 1)
	assert.Equal(t, r.ID, applied[0].ID)

	// Applied recommendations stay out of the pool on later collections.
	assert.Empty(t, l.Collect([]agent.Recommendation{r}))
	assert.Equal(t, Counts{Active: 0, Applied: 1, AppliedTotal: 1}, l.Counts())
}

func TestLedger_AppliedLogKeepsLastTen(t *testing.T) {
	l, c := newTestLedger(t)

	var all []agent.Recommendation
	for i := range 12 {
		all = append(all, rec(fmt.Sprintf("k%d", i), 0.9, c.Now()))
	}
	l.Collect(all)
	for _, r := range all {
		require.True(t, l.MarkApplied(r))
	}

	applied := l.Applied()
	require.Len(t, applied, DefaultAppliedLogSize)
	assert.Equal(t, "k2", applied[0].Kind)
	assert.Equal(t, "k11", applied[len(applied)-1].Kind)
	assert.Equal(t, 12, l.Counts().AppliedTotal)
}

func TestLedger_SettledIDsExpire(t *testing.T) {
	l, c := newTestLedger(t)
	r := rec("k", 0.9, c.Now())
	l.Collect([]agent.Recommendation{r})
	require.True(t, l.MarkApplied(r))

	c.Advance(6 * time.Minute)
	assert.Len(t, l.Collect([]agent.Recommendation{r}), 1)
}

func TestLedger_Find(t *testing.T) {
	l, c := newTestLedger(t)
	r := rec("k", 0.9, c.Now())
	l.Collect([]agent.Recommendation{r})

	got, ok := l.Find(r.ID)
	require.True(t, ok)
	assert.True(t, got.Equal(r))

	_, ok = l.Find("missing")
	assert.False(t, ok)
}

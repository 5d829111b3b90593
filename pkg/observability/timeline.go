// Unified decision timeline.
//
// Every arbitration, promotion, throttle, seal, and replay result appears in
// one queryable timeline, filterable by decision, actor, and time range.
package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TimelineEntryType categorizes timeline entries.
type TimelineEntryType string

const (
	EntryTypeDecision  TimelineEntryType = "DECISION"
	EntryTypePromotion TimelineEntryType = "PROMOTION"
	EntryTypeThrottle  TimelineEntryType = "THROTTLE"
	EntryTypeSeal      TimelineEntryType = "SEAL"
	EntryTypeReplay    TimelineEntryType = "REPLAY"
)

// TimelineEntry is a single recorded event.
type TimelineEntry struct {
	EntryID     string            `json:"entry_id"`
	EntryType   TimelineEntryType `json:"entry_type"`
	DecisionID  string            `json:"decision_id"`
	Actor       string            `json:"actor,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Summary     string            `json:"summary"`
	ContentHash string            `json:"content_hash"`
	Details     map[string]any    `json:"details,omitempty"`
}

// TimelineQuery filters timeline entries.
type TimelineQuery struct {
	DecisionID string             `json:"decision_id,omitempty"`
	Actor      string             `json:"actor,omitempty"`
	EntryType  *TimelineEntryType `json:"entry_type,omitempty"`
	After      *time.Time         `json:"after,omitempty"`
	Before     *time.Time         `json:"before,omitempty"`
	Limit      int                `json:"limit,omitempty"`
}

// DecisionTimeline collects and queries decision events.
type DecisionTimeline struct {
	mu      sync.RWMutex
	entries []TimelineEntry
	index   map[string][]int // decisionID → entry indices
	seq     int64
	clock   func() time.Time
}

// NewDecisionTimeline creates an empty timeline.
func NewDecisionTimeline() *DecisionTimeline {
	return &DecisionTimeline{
		entries: make([]TimelineEntry, 0),
		index:   make(map[string][]int),
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *DecisionTimeline) WithClock(clock func() time.Time) *DecisionTimeline {
	t.clock = clock
	return t
}

// Record adds an entry. Entry IDs and timestamps are assigned when absent,
// and the content hash is always recomputed from the details.
func (t *DecisionTimeline) Record(entry TimelineEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("tl-%d", t.seq)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock()
	}

	data, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	h := sha256.Sum256(data)
	entry.ContentHash = "sha256:" + hex.EncodeToString(h[:])

	idx := len(t.entries)
	t.entries = append(t.entries, entry)

	if entry.DecisionID != "" {
		t.index[entry.DecisionID] = append(t.index[entry.DecisionID], idx)
	}
	return nil
}

// Query retrieves entries matching the query, oldest first.
func (t *DecisionTimeline) Query(q TimelineQuery) []TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []TimelineEntry
	if q.DecisionID != "" {
		indices, ok := t.index[q.DecisionID]
		if !ok {
			return nil
		}
		for _, i := range indices {
			candidates = append(candidates, t.entries[i])
		}
	} else {
		candidates = make([]TimelineEntry, len(t.entries))
		copy(candidates, t.entries)
	}

	var results []TimelineEntry
	for _, e := range candidates {
		if q.Actor != "" && e.Actor != q.Actor {
			continue
		}
		if q.EntryType != nil && e.EntryType != *q.EntryType {
			continue
		}
		if q.After != nil && e.Timestamp.Before(*q.After) {
			continue
		}
		if q.Before != nil && e.Timestamp.After(*q.Before) {
			continue
		}
		results = append(results, e)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// Count returns total entries.
func (t *DecisionTimeline) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

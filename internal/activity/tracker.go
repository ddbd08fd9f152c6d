// Package activity tracks which audio sources have recently produced sound,
// so "capture the active app" requests can rank candidates.
package activity

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultDecayMs is how long a source stays ranked after its last sample.
	DefaultDecayMs = 30000
	// emaAlpha is the smoothing factor for the running RMS average.
	emaAlpha = 0.1
)

// Record is the tracked activity state for one process id.
type Record struct {
	ProcessID   int     `json:"process_id"`
	LastSeenMs  int64   `json:"last_seen_ms"`
	AvgRMS      float64 `json:"avg_rms"`
	SampleCount int64   `json:"sample_count"`
}

// Tracker maintains decayed activity records per process id.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	enabled bool
	decayMs int64
	records map[int]*Record
	now     func() time.Time
}

// NewTracker creates an enabled tracker with the given decay window.
// A non-positive decay falls back to DefaultDecayMs.
func NewTracker(decayMs int64) *Tracker {
	if decayMs <= 0 {
		decayMs = DefaultDecayMs
	}
	return &Tracker{
		enabled: true,
		decayMs: decayMs,
		records: make(map[int]*Record),
		now:     time.Now,
	}
}

// Record updates the exponential moving average for a process id and marks it
// seen now. No-op when the tracker is disabled.
func (t *Tracker) Record(processID int, rms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	nowMs := t.now().UnixMilli()
	rec, ok := t.records[processID]
	if !ok {
		t.records[processID] = &Record{
			ProcessID:   processID,
			LastSeenMs:  nowMs,
			AvgRMS:      rms,
			SampleCount: 1,
		}
		return
	}

	rec.AvgRMS = rec.AvgRMS*(1-emaAlpha) + rms*emaAlpha
	rec.LastSeenMs = nowMs
	rec.SampleCount++
}

// Snapshot returns a copy of the record for a process id, if present and not
// expired.
func (t *Tracker) Snapshot(processID int) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked()
	rec, ok := t.records[processID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Rank orders process ids by how recently they produced audio, most recent
// first. Ids with no record keep their input order after all recorded ids.
// When the tracker is disabled the input order is returned unchanged.
func (t *Tracker) Rank(processIDs []int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ranked := make([]int, len(processIDs))
	copy(ranked, processIDs)

	if !t.enabled {
		return ranked
	}

	t.evictExpiredLocked()

	lastSeen := func(pid int) int64 {
		if rec, ok := t.records[pid]; ok {
			return rec.LastSeenMs
		}
		return -1
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return lastSeen(ranked[i]) > lastSeen(ranked[j])
	})
	return ranked
}

// Enabled reports whether tracking is active.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Disable clears all records and turns tracking off. Subsequent Record calls
// become no-ops until Enable.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
	t.records = make(map[int]*Record)
}

// Enable turns tracking back on.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
}

// evictExpiredLocked removes records older than the decay window.
// Caller must hold t.mu.
func (t *Tracker) evictExpiredLocked() {
	nowMs := t.now().UnixMilli()
	for pid, rec := range t.records {
		if nowMs-rec.LastSeenMs > t.decayMs {
			delete(t.records, pid)
		}
	}
}

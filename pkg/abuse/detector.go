// detector.go — In-process abuse detection for verification misuse.
//
// Users probing the checker with a stream of forged documents show up as
// repeated fake verdicts. The detector keeps a sliding one-hour window of
// fake verdicts per user and raises an event when the count exceeds the
// threshold. Detection is advisory: it records an event for admin review
// and never blocks the verification itself.
package abuse

import (
	"sync"
	"time"
)

// fakeThreshold is the number of fake verdicts within the window that
// triggers an event. Strictly greater-than: the sixth fake in an hour fires.
const fakeThreshold = 5

// window is the sliding window length.
const window = time.Hour

// Event describes a detected abuse pattern.
type Event struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"user_id"`
	DetectedAt time.Time              `json:"detected_at"`
	Details    map[string]interface{} `json:"details"`
}

// Detector tracks fake verdict timestamps per user. Safe for concurrent use.
type Detector struct {
	mu    sync.Mutex
	fakes map[string][]time.Time
	// cooldown prevents an event per upload once a user is over threshold;
	// one event per user per window is enough for the review queue.
	lastEvent map[string]time.Time
}

// NewDetector returns an empty detector.
func NewDetector() *Detector {
	return &Detector{
		fakes:     make(map[string][]time.Time),
		lastEvent: make(map[string]time.Time),
	}
}

// RecordVerdict feeds a completed verification verdict into the detector.
// Returns (true, event) when the fake count for the user newly exceeds the
// threshold within the window.
func (d *Detector) RecordVerdict(userID, verdict string) (bool, *Event) {
	if verdict != "fake" {
		return false, nil
	}

	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	// Drop timestamps that have slid out of the window.
	kept := d.fakes[userID][:0]
	for _, ts := range d.fakes[userID] {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	d.fakes[userID] = kept

	if len(kept) <= fakeThreshold {
		return false, nil
	}
	if last, ok := d.lastEvent[userID]; ok && now.Sub(last) < window {
		return false, nil
	}
	d.lastEvent[userID] = now

	return true, &Event{
		Type:       "repeat_fake_uploads",
		UserID:     userID,
		DetectedAt: now,
		Details: map[string]interface{}{
			"fake_count":     len(kept),
			"window_minutes": int(window.Minutes()),
		},
	}
}

// defaultDetector backs the package-level API used by the verify service.
var defaultDetector = NewDetector()

// RecordVerdict feeds a verdict into the process-wide detector.
func RecordVerdict(userID, verdict string) (bool, *Event) {
	return defaultDetector.RecordVerdict(userID, verdict)
}

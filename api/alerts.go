package api

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertSegmentationFailureSpike AlertType = "segmentation_failure_spike"
	AlertAccessDeniedSpike        AlertType = "access_denied_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// spike fires once threshold hits land within window, then starts over.
type spike struct {
	kind      AlertType
	message   string
	window    time.Duration
	threshold int
	hits      []time.Time
}

func (s *spike) hit(now time.Time) (AlertEvent, bool) {
	s.hits = trimWindow(append(s.hits, now), now, s.window)
	if len(s.hits) < s.threshold {
		return AlertEvent{}, false
	}
	evt := AlertEvent{
		Type:      s.kind,
		Message:   s.message,
		Count:     len(s.hits),
		Threshold: s.threshold,
		Timestamp: now,
	}
	s.hits = s.hits[:0]
	return evt, true
}

// trimWindow drops the entries of the ascending slice older than window.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}

// alertCollector watches segmentation failures and operator denials for
// spikes. A nil collector, or one without a callback, ignores everything.
type alertCollector struct {
	clock   clockwork.Clock
	alertFn AlertFunc

	mu          sync.Mutex
	segFailures spike
	denials     spike
}

func newAlertCollector(alertFn AlertFunc) *alertCollector {
	return &alertCollector{
		clock:   clockwork.NewRealClock(),
		alertFn: alertFn,
		segFailures: spike{
			kind:      AlertSegmentationFailureSpike,
			message:   "segmentation failure rate exceeds threshold",
			window:    5 * time.Minute,
			threshold: 10,
		},
		denials: spike{
			kind:      AlertAccessDeniedSpike,
			message:   "operator access denials exceed threshold",
			window:    time.Minute,
			threshold: 20,
		},
	}
}

// recordEvent counts access denials from the audit log.
func (m *alertCollector) recordEvent(event AuditEvent) {
	if m != nil && event == AuditAccessDenied {
		m.observe(&m.denials)
	}
}

// recordSegmentationFailure counts a failed background removal.
func (m *alertCollector) recordSegmentationFailure() {
	if m == nil {
		return
	}
	m.observe(&m.segFailures)
}

func (m *alertCollector) observe(s *spike) {
	if m.alertFn == nil {
		return
	}
	m.mu.Lock()
	evt, fire := s.hit(m.clock.Now())
	m.mu.Unlock()
	if fire {
		m.alertFn(evt)
	}
}

package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

// captureNotifier records every alert it receives.
type captureNotifier struct {
	alerts []dto.Alert
}

func (n *captureNotifier) SendAlert(alert dto.Alert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *captureNotifier) byType(alertType string) []dto.Alert {
	var out []dto.Alert
	for _, alert := range n.alerts {
		if alert.Type == alertType {
			out = append(out, alert)
		}
	}
	return out
}

func newTestMonitor() (*SecurityMonitorService, *captureNotifier, *time.Time) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	capture := &captureNotifier{}

	svc := &SecurityMonitorService{
		minTimeBetween: 30 * time.Second,
		maxPerHour:     100,
		ratioThreshold: 0.10,
		resetInterval:  time.Hour,
		alertSvc:       &AlertService{notifiers: []Notifier{capture}},
	}
	svc.now = func() time.Time { return current }
	svc.resetStateLocked(current)

	return svc, capture, &current
}

func testMeta(ip string) dto.SubmissionMetadata {
	return dto.SubmissionMetadata{IP: ip, RatingCount: 3, CommentCount: 1}
}

func TestSecurityMonitor_RapidSubmissionFlagged(t *testing.T) {
	svc, _, now := newTestMonitor()

	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	*now = now.Add(10 * time.Second)
	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))

	events := svc.Events(0)
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventRapidSubmission, events[0].Type)
	assert.Equal(t, "203.0.113.1", events[0].IP)
	assert.InDelta(t, 10.0, events[0].Details["time_diff_seconds"], 0.001)

	metrics := svc.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalSubmissions)
	assert.Equal(t, int64(1), metrics.SuspiciousAttempts)
}

func TestSecurityMonitor_SpacedSubmissionsNotFlagged(t *testing.T) {
	svc, _, now := newTestMonitor()

	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	*now = now.Add(60 * time.Second)
	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))

	assert.Empty(t, svc.Events(0))
	assert.Equal(t, int64(0), svc.GetMetrics().SuspiciousAttempts)
}

func TestSecurityMonitor_DistinctIPsNotCorrelated(t *testing.T) {
	svc, _, now := newTestMonitor()

	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	*now = now.Add(time.Second)
	svc.RecordSubmission("203.0.113.2", testMeta("203.0.113.2"))

	assert.Empty(t, svc.Events(0))
}

func TestSecurityMonitor_HighSuspiciousRatioAlert(t *testing.T) {
	svc, capture, _ := newTestMonitor()

	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	svc.RecordSuspiciousActivity("203.0.113.9", shared.EventContentViolation, nil)

	fired := capture.byType(shared.AlertHighSuspiciousRatio)
	require.Len(t, fired, 1)
	assert.Equal(t, shared.SeverityCritical, fired[0].Severity)
	assert.InDelta(t, 1.0, fired[0].Metrics.SuspiciousRatio, 0.001)

	// Same alert type is deduplicated within the interval.
	svc.RecordSuspiciousActivity("203.0.113.9", shared.EventContentViolation, nil)
	assert.Len(t, capture.byType(shared.AlertHighSuspiciousRatio), 1)
}

func TestSecurityMonitor_HighSubmissionRateAlert(t *testing.T) {
	svc, capture, now := newTestMonitor()
	svc.maxPerHour = 2

	for i := 0; i < 3; i++ {
		svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
		*now = now.Add(time.Minute)
	}

	fired := capture.byType(shared.AlertHighSubmissionRate)
	require.Len(t, fired, 1)
	assert.Equal(t, shared.SeverityWarning, fired[0].Severity)
}

func TestSecurityMonitor_ExcessiveValidationErrors(t *testing.T) {
	svc, _, _ := newTestMonitor()

	for i := 0; i < 5; i++ {
		svc.RecordValidationError("203.0.113.1", shared.CodeMaliciousContent, nil)
	}
	assert.Empty(t, svc.Events(0))

	svc.RecordValidationError("203.0.113.1", shared.CodeMaliciousContent, nil)

	events := svc.Events(0)
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventExcessiveErrors, events[0].Type)
	assert.Equal(t, 6, events[0].Details["error_count"])
}

func TestSecurityMonitor_RateLimitHits(t *testing.T) {
	svc, _, _ := newTestMonitor()

	svc.RecordRateLimitHit("203.0.113.1", false)
	svc.RecordRateLimitHit("203.0.113.2", true)
	svc.RecordRateLimitHit("203.0.113.2", true)

	metrics := svc.GetMetrics()
	assert.Equal(t, int64(3), metrics.RateLimitHits)
	assert.Equal(t, []string{"203.0.113.2"}, metrics.BlockedIPs)
}

func TestSecurityMonitor_ResetMetrics(t *testing.T) {
	svc, capture, now := newTestMonitor()

	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	svc.RecordSuspiciousActivity("203.0.113.1", shared.EventContentViolation, nil)
	svc.RecordRateLimitHit("203.0.113.1", true)
	require.Len(t, capture.byType(shared.AlertHighSuspiciousRatio), 1)

	*now = now.Add(time.Hour)
	svc.ResetMetrics()

	metrics := svc.GetMetrics()
	assert.Equal(t, int64(0), metrics.TotalSubmissions)
	assert.Equal(t, int64(0), metrics.SuspiciousAttempts)
	assert.Equal(t, int64(0), metrics.RateLimitHits)
	assert.Empty(t, metrics.BlockedIPs)
	assert.Equal(t, *now, metrics.LastReset)
	assert.Empty(t, svc.Events(0))

	// Alert dedup state resets with the interval.
	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	svc.RecordSuspiciousActivity("203.0.113.1", shared.EventContentViolation, nil)
	assert.Len(t, capture.byType(shared.AlertHighSuspiciousRatio), 2)
}

func TestSecurityMonitor_EventsNewestFirstWithLimit(t *testing.T) {
	svc, _, now := newTestMonitor()

	for i := 0; i < 5; i++ {
		svc.RecordSuspiciousActivity("203.0.113.1", shared.EventContentViolation, map[string]interface{}{"seq": i})
		*now = now.Add(time.Second)
	}

	events := svc.Events(2)
	require.Len(t, events, 2)
	assert.Equal(t, 4, events[0].Details["seq"])
	assert.Equal(t, 3, events[1].Details["seq"])
}

func TestSecurityMonitor_EventLogEvictsOldestWhenFull(t *testing.T) {
	svc, _, _ := newTestMonitor()

	for i := 0; i < maxTrackedEvents+1; i++ {
		svc.RecordSuspiciousActivity("203.0.113.1", shared.EventContentViolation, map[string]interface{}{"seq": i})
	}

	events := svc.Events(0)
	require.Len(t, events, maxTrackedEvents)
	// Newest first: the latest event survives, the very first was evicted.
	assert.Equal(t, maxTrackedEvents, events[0].Details["seq"])
	assert.Equal(t, 1, events[len(events)-1].Details["seq"])
}

func TestSecurityMonitor_ReportFinding(t *testing.T) {
	svc, capture, _ := newTestMonitor()

	svc.ReportFinding(dto.PatternFinding{
		Type:        shared.FindingDuplicateSubmissions,
		IP:          "203.0.113.1",
		GroupKey:    "deadbeef00000000",
		Count:       5,
		Description: "5 submissions share identical ratings and personal info",
	})

	events := svc.Events(0)
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventDuplicateCluster, events[0].Type)
	assert.Equal(t, "deadbeef00000000", events[0].Details["group_key"])

	fired := capture.byType(shared.AlertDuplicateSubmissions)
	require.Len(t, fired, 1)
	assert.Equal(t, shared.SeverityWarning, fired[0].Severity)
}

func TestSecurityMonitor_SweepEvictsStaleEntries(t *testing.T) {
	svc, _, now := newTestMonitor()

	svc.RecordSubmission("203.0.113.1", testMeta("203.0.113.1"))
	svc.RecordValidationError("203.0.113.1", shared.CodeSpamPattern, nil)

	*now = now.Add(time.Hour)
	svc.sweepStale()

	svc.mutex.Lock()
	assert.Empty(t, svc.lastSubmissions)
	assert.Empty(t, svc.errorCounts)
	svc.mutex.Unlock()
}

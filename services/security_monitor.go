package services

import (
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

// SecurityMonitorService is the process-wide anomaly tracker. All state is
// owned by this one instance and guarded by a single mutex; the hourly
// reset and the TTL sweep run on the same lock, so readers never observe a
// partially reset snapshot.
type SecurityMonitorService struct {
	appContext.DefaultService

	mutex sync.Mutex

	totalSubmissions   int64
	suspiciousAttempts int64
	rateLimitHits      int64
	blockedIPs         map[string]struct{}
	lastReset          time.Time

	events          []dto.SuspiciousEvent
	lastSubmissions map[string]time.Time
	errorCounts     map[string]int
	alertedTypes    map[string]bool

	minTimeBetween time.Duration
	maxPerHour     float64
	ratioThreshold float64
	strictMode     bool
	resetInterval  time.Duration

	now  func() time.Time
	stop chan struct{}

	alertSvc *AlertService
}

const SECURITY_MONITOR_SVC = "security_monitor_svc"

const (
	maxTrackedEvents    = 1000
	errorCountThreshold = 5
	monitorSweepEvery   = 10 * time.Minute
)

func (svc SecurityMonitorService) Id() string {
	return SECURITY_MONITOR_SVC
}

func (svc *SecurityMonitorService) Configure(ctx *appContext.Context) error {
	svc.minTimeBetween = envDuration("MIN_TIME_BETWEEN_SUBMISSIONS", 30*time.Second)
	svc.maxPerHour = envFloat("MAX_SUBMISSIONS_PER_HOUR", 100)
	svc.ratioThreshold = envFloat("SUSPICIOUS_RATIO_THRESHOLD", 0.10)
	svc.strictMode = envBool("STRICT_MODE")
	svc.resetInterval = time.Hour

	svc.now = time.Now
	svc.resetStateLocked(time.Now())

	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityMonitorService) Start() error {
	svc.alertSvc = svc.Service(ALERT_SVC).(*AlertService)

	svc.stop = make(chan struct{})
	go svc.resetLoop()
	go svc.sweepLoop()

	return nil
}

func (svc *SecurityMonitorService) Shutdown() {
	if svc.stop != nil {
		close(svc.stop)
	}
}

// resetStateLocked zeroes every counter and map. Callers hold the mutex,
// except during Configure when no other goroutine exists yet.
func (svc *SecurityMonitorService) resetStateLocked(now time.Time) {
	svc.totalSubmissions = 0
	svc.suspiciousAttempts = 0
	svc.rateLimitHits = 0
	svc.blockedIPs = make(map[string]struct{})
	svc.events = nil
	svc.lastSubmissions = make(map[string]time.Time)
	svc.errorCounts = make(map[string]int)
	svc.alertedTypes = make(map[string]bool)
	svc.lastReset = now
}

// ==================== RECORDING ====================

// RecordSubmission books an accepted submission and flags rapid resubmits
// from the same IP.
func (svc *SecurityMonitorService) RecordSubmission(ip string, meta dto.SubmissionMetadata) {
	svc.mutex.Lock()
	now := svc.now()

	svc.totalSubmissions++
	submissionsRecordedTotal.Inc()

	var rapid bool
	var timeDiff time.Duration
	if last, ok := svc.lastSubmissions[ip]; ok {
		timeDiff = now.Sub(last)
		rapid = timeDiff < svc.minTimeBetween
	}
	svc.lastSubmissions[ip] = now
	svc.mutex.Unlock()

	log.WithFields(log.Fields{
		"ip":             ip,
		"rating_count":   meta.RatingCount,
		"comment_count":  meta.CommentCount,
		"content_length": meta.ContentLength,
	}).Debug("Submission recorded")

	if rapid {
		svc.RecordSuspiciousActivity(ip, shared.EventRapidSubmission, map[string]interface{}{
			"time_diff_seconds": timeDiff.Seconds(),
		})
	} else {
		svc.fireAlerts(svc.collectAlerts())
	}
}

// RecordSuspiciousActivity books an anomaly event and re-evaluates the
// alert thresholds.
func (svc *SecurityMonitorService) RecordSuspiciousActivity(ip, eventType string, details map[string]interface{}) {
	svc.mutex.Lock()
	svc.suspiciousAttempts++
	suspiciousAttemptsTotal.WithLabelValues(eventType).Inc()

	event := dto.SuspiciousEvent{
		ID:        uuid.New().String(),
		IP:        ip,
		Type:      eventType,
		Details:   details,
		Timestamp: svc.now(),
	}
	// Bounded log: once full, the oldest event makes room for the newest.
	if len(svc.events) >= maxTrackedEvents {
		copy(svc.events, svc.events[1:])
		svc.events[len(svc.events)-1] = event
	} else {
		svc.events = append(svc.events, event)
	}
	svc.mutex.Unlock()

	entry := log.WithFields(log.Fields{
		"ip":   ip,
		"type": eventType,
	})
	if svc.strictMode {
		entry.Warn("Suspicious activity recorded")
	} else {
		entry.Info("Suspicious activity recorded")
	}

	svc.fireAlerts(svc.collectAlerts())
}

// RecordValidationError counts guard-chain rejections per IP; an IP piling
// up errors becomes a suspicious signal of its own.
func (svc *SecurityMonitorService) RecordValidationError(ip, code string, details map[string]interface{}) {
	svc.mutex.Lock()
	svc.errorCounts[ip]++
	count := svc.errorCounts[ip]
	svc.mutex.Unlock()

	validationErrorsTotal.WithLabelValues(code).Inc()

	if count > errorCountThreshold {
		svc.RecordSuspiciousActivity(ip, shared.EventExcessiveErrors, map[string]interface{}{
			"error_count": count,
			"last_code":   code,
		})
	}
}

// RecordRateLimitHit books a 429 rejection; blocked marks the IP in the
// blocked set for the current interval.
func (svc *SecurityMonitorService) RecordRateLimitHit(ip string, blocked bool) {
	svc.mutex.Lock()
	svc.rateLimitHits++
	if blocked {
		svc.blockedIPs[ip] = struct{}{}
	}
	blockedCount := len(svc.blockedIPs)
	svc.mutex.Unlock()

	rateLimitHitsTotal.Inc()
	blockedIPsGauge.Set(float64(blockedCount))
}

// ==================== ALERTING ====================

// collectAlerts evaluates the thresholds under the lock and returns any
// alerts to fire. Forwarding happens outside the lock so a slow sink can
// never stall the request path.
func (svc *SecurityMonitorService) collectAlerts() []dto.Alert {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	var pending []dto.Alert
	now := svc.now()

	if svc.totalSubmissions > 0 {
		ratio := float64(svc.suspiciousAttempts) / float64(svc.totalSubmissions)
		if ratio > svc.ratioThreshold && !svc.alertedTypes[shared.AlertHighSuspiciousRatio] {
			svc.alertedTypes[shared.AlertHighSuspiciousRatio] = true
			pending = append(pending, svc.buildAlertLocked(shared.AlertHighSuspiciousRatio, now, map[string]interface{}{
				"ratio":     ratio,
				"threshold": svc.ratioThreshold,
			}))
		}
	}

	hours := now.Sub(svc.lastReset).Hours()
	if hours < 1 {
		hours = 1
	}
	perHour := float64(svc.totalSubmissions) / hours
	if perHour > svc.maxPerHour && !svc.alertedTypes[shared.AlertHighSubmissionRate] {
		svc.alertedTypes[shared.AlertHighSubmissionRate] = true
		pending = append(pending, svc.buildAlertLocked(shared.AlertHighSubmissionRate, now, map[string]interface{}{
			"submissions_per_hour": perHour,
			"max_per_hour":         svc.maxPerHour,
		}))
	}

	return pending
}

func (svc *SecurityMonitorService) buildAlertLocked(alertType string, now time.Time, details map[string]interface{}) dto.Alert {
	return dto.Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severityFor(alertType),
		Timestamp: now,
		Details:   details,
		Metrics:   svc.snapshotLocked(now),
	}
}

func (svc *SecurityMonitorService) fireAlerts(alerts []dto.Alert) {
	for _, alert := range alerts {
		svc.alertSvc.Publish(alert)
	}
}

// ReportFinding turns a pattern-analyzer finding into a suspicious event
// and an alert.
func (svc *SecurityMonitorService) ReportFinding(finding dto.PatternFinding) {
	details := map[string]interface{}{
		"count":       finding.Count,
		"description": finding.Description,
	}
	if finding.MeanInterval > 0 {
		details["mean_interval_seconds"] = finding.MeanInterval
	}

	switch finding.Type {
	case shared.FindingDuplicateSubmissions:
		details["group_key"] = finding.GroupKey
		svc.RecordSuspiciousActivity(finding.IP, shared.EventDuplicateCluster, details)
	case shared.FindingRapidSubmissions:
		svc.RecordSuspiciousActivity(finding.IP, shared.EventRapidSubmission, details)
	}

	svc.mutex.Lock()
	alert := svc.buildAlertLocked(finding.Type, svc.now(), details)
	svc.mutex.Unlock()
	svc.alertSvc.Publish(alert)
}

// ==================== SNAPSHOTS ====================

func (svc *SecurityMonitorService) snapshotLocked(now time.Time) dto.SecurityMetrics {
	blocked := make([]string, 0, len(svc.blockedIPs))
	for ip := range svc.blockedIPs {
		blocked = append(blocked, ip)
	}

	var ratio float64
	if svc.totalSubmissions > 0 {
		ratio = float64(svc.suspiciousAttempts) / float64(svc.totalSubmissions)
	}

	return dto.SecurityMetrics{
		TotalSubmissions:   svc.totalSubmissions,
		SuspiciousAttempts: svc.suspiciousAttempts,
		BlockedIPs:         blocked,
		RateLimitHits:      svc.rateLimitHits,
		SuspiciousRatio:    ratio,
		LastReset:          svc.lastReset,
	}
}

// GetMetrics returns a read-only snapshot for dashboards.
func (svc *SecurityMonitorService) GetMetrics() dto.SecurityMetrics {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	return svc.snapshotLocked(svc.now())
}

// Events returns up to limit recent suspicious events, newest first.
func (svc *SecurityMonitorService) Events(limit int) []dto.SuspiciousEvent {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if limit <= 0 || limit > len(svc.events) {
		limit = len(svc.events)
	}

	out := make([]dto.SuspiciousEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = svc.events[len(svc.events)-1-i]
	}
	return out
}

// ==================== BACKGROUND JOBS ====================

func (svc *SecurityMonitorService) resetLoop() {
	ticker := time.NewTicker(svc.resetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.ResetMetrics()
		case <-svc.stop:
			return
		}
	}
}

// ResetMetrics performs the scheduled full reset.
func (svc *SecurityMonitorService) ResetMetrics() {
	svc.mutex.Lock()
	snapshot := svc.snapshotLocked(svc.now())
	svc.resetStateLocked(svc.now())
	svc.mutex.Unlock()

	blockedIPsGauge.Set(0)

	log.WithFields(log.Fields{
		"total_submissions":   snapshot.TotalSubmissions,
		"suspicious_attempts": snapshot.SuspiciousAttempts,
		"rate_limit_hits":     snapshot.RateLimitHits,
		"blocked_ips":         len(snapshot.BlockedIPs),
	}).Info("Security metrics reset")
}

func (svc *SecurityMonitorService) sweepLoop() {
	ticker := time.NewTicker(monitorSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.sweepStale()
		case <-svc.stop:
			return
		}
	}
}

// sweepStale evicts per-IP entries untouched for twice the rapid-submission
// window, bounding the maps under high-cardinality traffic between resets.
func (svc *SecurityMonitorService) sweepStale() {
	maxIdle := 2 * svc.minTimeBetween
	if maxIdle < monitorSweepEvery {
		maxIdle = monitorSweepEvery
	}

	svc.mutex.Lock()
	cutoff := svc.now().Add(-maxIdle)
	evicted := 0
	for ip, last := range svc.lastSubmissions {
		if last.Before(cutoff) {
			delete(svc.lastSubmissions, ip)
			if _, hasErrors := svc.errorCounts[ip]; hasErrors {
				delete(svc.errorCounts, ip)
			}
			evicted++
		}
	}
	svc.mutex.Unlock()

	if evicted > 0 {
		log.Printf("Security monitor sweep evicted %d stale entries", evicted)
	}
}

func severityFor(alertType string) string {
	switch alertType {
	case shared.AlertHighSuspiciousRatio:
		return shared.SeverityCritical
	case shared.AlertHighSubmissionRate, shared.AlertDuplicateSubmissions:
		return shared.SeverityWarning
	case shared.AlertRapidSubmissions:
		return shared.SeverityWarning
	default:
		return shared.SeverityInfo
	}
}

package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/model"
	"github.com/nador-airport/survey_api/shared"
)

// SubmissionSource is the read-only store contract the analyzer runs over.
type SubmissionSource interface {
	GetSubmissionsSince(ctx context.Context, since time.Time) ([]model.Submission, error)
}

// PatternAnalyzerService is the out-of-band batch detector: it periodically
// reads recently stored submissions and surfaces duplicate clusters and
// rapid-fire bursts that per-request guards cannot see.
type PatternAnalyzerService struct {
	appContext.DefaultService

	source     SubmissionSource
	monitorSvc *SecurityMonitorService

	interval     time.Duration
	window       time.Duration
	queryTimeout time.Duration

	stop chan struct{}
}

const PATTERN_ANALYZER_SVC = "pattern_analyzer_svc"

const (
	duplicateClusterThreshold = 3  // findings require count > 3
	rapidMinSubmissions       = 2  // findings require count > 2
	rapidMeanIntervalSeconds  = 60.0
)

func (svc PatternAnalyzerService) Id() string {
	return PATTERN_ANALYZER_SVC
}

func (svc *PatternAnalyzerService) Configure(ctx *appContext.Context) error {
	svc.interval = envDuration("PATTERN_ANALYZER_INTERVAL", 15*time.Minute)
	svc.window = envDuration("PATTERN_ANALYZER_WINDOW", time.Hour)
	svc.queryTimeout = 10 * time.Second

	return svc.DefaultService.Configure(ctx)
}

func (svc *PatternAnalyzerService) Start() error {
	svc.source = svc.Service(SQLITE_SVC).(*SqliteService)
	svc.monitorSvc = svc.Service(SECURITY_MONITOR_SVC).(*SecurityMonitorService)

	svc.stop = make(chan struct{})
	go svc.runLoop()

	return nil
}

func (svc *PatternAnalyzerService) Shutdown() {
	if svc.stop != nil {
		close(svc.stop)
	}
}

// Window returns the configured analysis window.
func (svc *PatternAnalyzerService) Window() time.Duration {
	return svc.window
}

// Analyze inspects submissions stored within the window. Read-only: the
// caller decides what to do with the findings.
func (svc *PatternAnalyzerService) Analyze(ctx context.Context, window time.Duration) ([]dto.PatternFinding, error) {
	queryCtx, cancel := context.WithTimeout(ctx, svc.queryTimeout)
	defer cancel()

	since := time.Now().Add(-window)
	submissions, err := svc.source.GetSubmissionsSince(queryCtx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}

	var findings []dto.PatternFinding
	findings = append(findings, svc.detectDuplicates(submissions)...)
	findings = append(findings, svc.detectRapidSubmissions(submissions)...)
	return findings, nil
}

// detectDuplicates groups submissions by a canonical fingerprint of their
// ratings and personal info; a cluster above the threshold is coordinated
// bulk submission, not coincidence.
func (svc *PatternAnalyzerService) detectDuplicates(submissions []model.Submission) []dto.PatternFinding {
	type cluster struct {
		count int
		ip    string
	}
	clusters := make(map[string]*cluster)

	for i := range submissions {
		key, err := submissionFingerprint(&submissions[i])
		if err != nil {
			log.Printf("Skipping unparsable submission %s: %v", submissions[i].ID, err)
			continue
		}
		if c, ok := clusters[key]; ok {
			c.count++
		} else {
			clusters[key] = &cluster{count: 1, ip: submissions[i].IP}
		}
	}

	keys := make([]string, 0, len(clusters))
	for key := range clusters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var findings []dto.PatternFinding
	for _, key := range keys {
		c := clusters[key]
		if c.count > duplicateClusterThreshold {
			findings = append(findings, dto.PatternFinding{
				Type:        shared.FindingDuplicateSubmissions,
				IP:          c.ip,
				GroupKey:    key,
				Count:       c.count,
				Description: fmt.Sprintf("%d submissions share identical ratings and personal info", c.count),
			})
		}
	}
	return findings
}

// detectRapidSubmissions flags IPs whose consecutive submissions arrive
// with a mean gap under a minute.
func (svc *PatternAnalyzerService) detectRapidSubmissions(submissions []model.Submission) []dto.PatternFinding {
	byIP := make(map[string][]time.Time)
	for i := range submissions {
		byIP[submissions[i].IP] = append(byIP[submissions[i].IP], submissions[i].CreatedAt)
	}

	ips := make([]string, 0, len(byIP))
	for ip := range byIP {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	var findings []dto.PatternFinding
	for _, ip := range ips {
		timestamps := byIP[ip]
		if len(timestamps) <= rapidMinSubmissions {
			continue
		}

		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

		var total float64
		for i := 1; i < len(timestamps); i++ {
			total += timestamps[i].Sub(timestamps[i-1]).Seconds()
		}
		mean := total / float64(len(timestamps)-1)

		if mean < rapidMeanIntervalSeconds {
			findings = append(findings, dto.PatternFinding{
				Type:         shared.FindingRapidSubmissions,
				IP:           ip,
				Count:        len(timestamps),
				MeanInterval: mean,
				Description:  fmt.Sprintf("%d submissions from %s with a mean interval of %.1fs", len(timestamps), ip, mean),
			})
		}
	}
	return findings
}

// submissionFingerprint canonicalizes ratings and personal info into an
// order-independent hash. xxhash64 is not collision proof, but a collision
// only inflates a heuristic counter.
func submissionFingerprint(sub *model.Submission) (string, error) {
	ratings, err := sub.RatingsMap()
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(ratings))
	for key := range ratings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	digest := xxhash.New()
	for _, key := range keys {
		fmt.Fprintf(digest, "%s=%d;", key, ratings[key])
	}
	fmt.Fprintf(digest, "|%s|%s|%s", sub.Age, sub.Nationality, sub.TravelPurpose)

	return fmt.Sprintf("%016x", digest.Sum64()), nil
}

// ==================== BACKGROUND JOB ====================

func (svc *PatternAnalyzerService) runLoop() {
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.runOnce()
		case <-svc.stop:
			return
		}
	}
}

// runOnce executes a scheduled analysis pass and forwards findings.
// Analyzer faults are logged and swallowed; monitoring must never take the
// submission path down with it.
func (svc *PatternAnalyzerService) runOnce() {
	findings, err := svc.Analyze(context.Background(), svc.window)
	if err != nil {
		log.Printf("Pattern analysis failed: %v", err)
		return
	}

	for _, finding := range findings {
		svc.monitorSvc.ReportFinding(finding)
	}

	if len(findings) > 0 {
		log.WithFields(log.Fields{"findings": len(findings)}).Warn("Pattern analysis surfaced anomalies")
	}
}

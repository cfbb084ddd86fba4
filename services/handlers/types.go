package handlers

import (
	"context"
	"time"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/model"
)

type SubmissionStoreInterface interface {
	SaveSubmission(sub *model.Submission) error
	GetSubmissionsSince(ctx context.Context, since time.Time) ([]model.Submission, error)
}

type SecurityMonitorInterface interface {
	RecordSubmission(ip string, meta dto.SubmissionMetadata)
	GetMetrics() dto.SecurityMetrics
	Events(limit int) []dto.SuspiciousEvent
	ReportFinding(finding dto.PatternFinding)
}

type PatternAnalyzerInterface interface {
	Analyze(ctx context.Context, window time.Duration) ([]dto.PatternFinding, error)
	Window() time.Duration
}

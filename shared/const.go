package shared

const (
	ClientIP           = "client_ip"
	ClientUserAgent    = "client_user_agent"
	SubmissionMetadata = "submission_metadata"
	SurveyRequest      = "survey_request"

	// Violation codes returned by the guard chain
	CodeMaliciousContent     = "SECURITY_MALICIOUS_CONTENT"
	CodeCommentTooLong       = "SECURITY_COMMENT_TOO_LONG"
	CodeSpamPattern          = "SECURITY_SPAM_PATTERN"
	CodeInsufficientRatings  = "SECURITY_INSUFFICIENT_RATINGS"
	CodeExtremeRatingPattern = "SECURITY_EXTREME_RATING_PATTERN"
	CodeInvalidNationality   = "SECURITY_INVALID_NATIONALITY_CHARS"
	CodeInvalidRequest       = "VALIDATION_INVALID_REQUEST"

	// Suspicious event types tracked by the security monitor
	EventRapidSubmission  = "RAPID_SUBMISSION"
	EventExcessiveErrors  = "EXCESSIVE_ERRORS"
	EventContentViolation = "CONTENT_VIOLATION"
	EventRatingAnomaly    = "RATING_ANOMALY"
	EventDuplicateCluster = "DUPLICATE_CLUSTER"

	// Alert types
	AlertHighSuspiciousRatio  = "HIGH_SUSPICIOUS_RATIO"
	AlertHighSubmissionRate   = "HIGH_SUBMISSION_RATE"
	AlertDuplicateSubmissions = "DUPLICATE_SUBMISSIONS"
	AlertRapidSubmissions     = "RAPID_SUBMISSIONS"

	// Alert severities
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"

	// Pattern finding types
	FindingDuplicateSubmissions = "DUPLICATE_SUBMISSIONS"
	FindingRapidSubmissions     = "RAPID_SUBMISSIONS"

	// Named limiter instances
	LimiterBruteForce = "brute_force"
	LimiterDuplicate  = "duplicate"

	RatingMin = 1
	RatingMax = 5
)

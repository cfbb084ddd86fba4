package services

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

// SubmissionGuardService runs the per-request guard chain:
// brute-force limit -> duplicate limit -> content scan -> business rules.
// The first failing stage rejects and no later stage executes. Limiter
// storage faults fail open; detected violations always fail closed.
type SubmissionGuardService struct {
	appContext.DefaultService

	rateLimitSvc *RateLimitService
	contentSvc   *ContentValidatorService
	businessSvc  *BusinessRuleValidatorService
	monitorSvc   *SecurityMonitorService

	strictMode bool
}

const SUBMISSION_GUARD_SVC = "submission_guard_svc"

func (svc SubmissionGuardService) Id() string {
	return SUBMISSION_GUARD_SVC
}

func (svc *SubmissionGuardService) Configure(ctx *appContext.Context) error {
	svc.strictMode = envBool("STRICT_MODE")
	return svc.DefaultService.Configure(ctx)
}

func (svc *SubmissionGuardService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.contentSvc = svc.Service(CONTENT_VALIDATOR_SVC).(*ContentValidatorService)
	svc.businessSvc = svc.Service(BUSINESS_RULES_SVC).(*BusinessRuleValidatorService)
	svc.monitorSvc = svc.Service(SECURITY_MONITOR_SVC).(*SecurityMonitorService)
	return nil
}

// Guard returns the fiber middleware for the submission route.
func (svc *SubmissionGuardService) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getClientIP(c)
		userAgent := c.Get(fiber.HeaderUserAgent)

		// Both limiters run before the body is touched: a malformed flood
		// consumes points like every other request.

		// BRUTE_FORCE_CHECK
		if handled, err := svc.checkLimiter(c, shared.LimiterBruteForce, ip, ip); handled || err != nil {
			return err
		}

		// DUPLICATE_CHECK
		dupKey := DuplicateKey(ip, userAgent)
		if handled, err := svc.checkLimiter(c, shared.LimiterDuplicate, dupKey, ip); handled || err != nil {
			return err
		}

		var req dto.SubmitSurveyRequest
		if err := c.BodyParser(&req); err != nil {
			svc.monitorSvc.RecordValidationError(ip, shared.CodeInvalidRequest, map[string]interface{}{
				"stage": "parse",
			})
			return shared.NewBadRequestError(err, "Invalid request body")
		}
		if err := req.Validate(); err != nil {
			svc.monitorSvc.RecordValidationError(ip, shared.CodeInvalidRequest, map[string]interface{}{
				"stage": "schema",
			})
			return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
		}

		// CONTENT_CHECK
		start := time.Now()
		violations := svc.contentSvc.ScanComments(req.Comments)
		observeStage("content", len(violations) == 0, start)
		if len(violations) > 0 {
			return svc.reject(c, ip, "Submission content rejected", violations)
		}

		// BUSINESS_CHECK
		start = time.Now()
		violations = svc.businessSvc.ValidateRatings(req.Ratings)
		violations = append(violations, svc.businessSvc.ValidatePersonalInfo(req.PersonalInfo)...)
		observeStage("business", len(violations) == 0, start)
		if len(violations) > 0 {
			return svc.reject(c, ip, "Submission failed business validation", violations)
		}

		// PASSED
		contentLength := 0
		for _, comment := range req.Comments {
			contentLength += len(comment)
		}

		// Parsed body travels with the request so the handler does not
		// parse it twice.
		c.Locals(shared.SurveyRequest, &req)
		c.Locals(shared.ClientIP, ip)
		c.Locals(shared.ClientUserAgent, userAgent)
		c.Locals(shared.SubmissionMetadata, dto.SubmissionMetadata{
			IP:            ip,
			UserAgent:     userAgent,
			Timestamp:     time.Now(),
			RatingCount:   len(req.Ratings),
			CommentCount:  len(req.Comments),
			ContentLength: contentLength,
		})

		return c.Next()
	}
}

// checkLimiter consumes one point and writes the 429 response when the
// quota is exhausted. A storage fault is logged and the request proceeds:
// a monitoring failure must never block a legitimate submission.
func (svc *SubmissionGuardService) checkLimiter(c *fiber.Ctx, limiter, key, ip string) (bool, error) {
	start := time.Now()
	result, err := svc.rateLimitSvc.Consume(c.Context(), limiter, key)
	if err != nil {
		observeStage(limiter, true, start)
		log.WithFields(log.Fields{
			"limiter": limiter,
			"ip":      ip,
			"error":   err.Error(),
		}).Error("Rate limit check failed, allowing request")
		return false, nil
	}
	observeStage(limiter, result.Allowed, start)

	addRateLimitHeaders(c, result)

	if result.Allowed {
		return false, nil
	}

	svc.monitorSvc.RecordRateLimitHit(ip, result.BlockedUntil != nil)

	retryAfter := int((result.MsBeforeNext + 999) / 1000)
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

	return true, c.Status(fiber.StatusTooManyRequests).JSON(dto.RateLimitedResponse{
		Success:    false,
		Message:    retryMessage(limiter, retryAfter),
		RetryAfter: retryAfter,
	})
}

// reject writes the 400 response enumerating every violation of the
// failing stage and books the rejection with the monitor.
func (svc *SubmissionGuardService) reject(c *fiber.Ctx, ip, message string, violations []dto.Violation) error {
	codes := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, v.Code)
	}

	svc.monitorSvc.RecordValidationError(ip, codes[0], map[string]interface{}{
		"codes": codes,
	})

	// Strict mode treats every rejection as hostile.
	for _, v := range violations {
		if svc.strictMode || isSecurityViolation(v.Code) {
			svc.monitorSvc.RecordSuspiciousActivity(ip, eventTypeFor(v.Code), map[string]interface{}{
				"field": v.Field,
				"code":  v.Code,
			})
		}
	}

	log.WithFields(log.Fields{
		"ip":    ip,
		"codes": strings.Join(codes, ","),
	}).Info("Submission rejected by guard chain")

	return c.Status(fiber.StatusBadRequest).JSON(dto.RejectionResponse{
		Success: false,
		Message: message,
		Errors:  violations,
	})
}

// isSecurityViolation separates deliberate-abuse codes (counted as
// suspicious activity) from plain validation mistakes.
func isSecurityViolation(code string) bool {
	switch code {
	case shared.CodeMaliciousContent, shared.CodeSpamPattern, shared.CodeExtremeRatingPattern:
		return true
	}
	return false
}

func eventTypeFor(code string) string {
	if code == shared.CodeExtremeRatingPattern {
		return shared.EventRatingAnomaly
	}
	return shared.EventContentViolation
}

func addRateLimitHeaders(c *fiber.Ctx, result *dto.RateLimitResult) {
	if result.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	}
	if result.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
	}
}

func retryMessage(limiter string, retryAfter int) string {
	var what string
	switch limiter {
	case shared.LimiterDuplicate:
		what = "Duplicate submissions detected."
	default:
		what = "Too many submissions."
	}
	return fmt.Sprintf("%s Please try again in %s.", what, humanDuration(retryAfter))
}

func humanDuration(seconds int) string {
	if seconds < 60 {
		return pluralize(seconds, "second")
	}
	minutes := (seconds + 59) / 60
	if minutes < 60 {
		return pluralize(minutes, "minute")
	}
	return pluralize((minutes+59)/60, "hour")
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func observeStage(stage string, allowed bool, start time.Time) {
	outcome := "pass"
	if !allowed {
		outcome = "reject"
	}
	guardStageDurationSeconds.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}

// ==================== UTILITY FUNCTIONS ====================

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Check for real IP header
	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Check Cloudflare header
	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	// Fall back to remote address
	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}

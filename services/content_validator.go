package services

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	appContext "github.com/alphabatem/common/context"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

// ContentValidatorService scans free-text fields for malicious or spammy
// content. Stateless: a pure function of the input plus the rule table.
type ContentValidatorService struct {
	appContext.DefaultService
}

const CONTENT_VALIDATOR_SVC = "content_validator_svc"

const maxCommentLength = 2000

// spam pattern: a unit of at least 3 characters repeated at least 6 times
// consecutively. Go's RE2 regexp has no backreferences, so this one rule is
// a scan instead of a table entry.
const (
	spamMinUnitLength = 3
	spamMinRepeats    = 6
)

type contentRule struct {
	Name    string
	Pattern *regexp.Regexp
	Code    string
	Message string
}

// The malicious-markup rules are declarative so new patterns can be added
// and tested without touching the scan orchestration.
var contentRules = []contentRule{
	{
		Name:    "script_tag",
		Pattern: regexp.MustCompile(`(?i)<\s*script\b`),
		Code:    shared.CodeMaliciousContent,
		Message: "Content contains script markup",
	},
	{
		Name:    "javascript_uri",
		Pattern: regexp.MustCompile(`(?i)javascript\s*:`),
		Code:    shared.CodeMaliciousContent,
		Message: "Content contains a javascript: URI",
	},
	{
		Name:    "event_handler",
		Pattern: regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
		Code:    shared.CodeMaliciousContent,
		Message: "Content contains an inline event handler",
	},
	{
		Name:    "eval_call",
		Pattern: regexp.MustCompile(`(?i)\beval\s*\(`),
		Code:    shared.CodeMaliciousContent,
		Message: "Content contains an eval call",
	},
	{
		Name:    "embedded_object",
		Pattern: regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`),
		Code:    shared.CodeMaliciousContent,
		Message: "Content contains embedded frame or object markup",
	},
}

func (svc ContentValidatorService) Id() string {
	return CONTENT_VALIDATOR_SVC
}

func (svc *ContentValidatorService) Start() error {
	return nil
}

// Scan applies every content rule to text. Violations are scoped to field.
func (svc *ContentValidatorService) Scan(field, text string) []dto.Violation {
	var violations []dto.Violation

	for _, rule := range contentRules {
		if rule.Pattern.MatchString(text) {
			violations = append(violations, dto.Violation{
				Field:   field,
				Message: rule.Message,
				Code:    rule.Code,
			})
		}
	}

	if utf8.RuneCountInString(text) > maxCommentLength {
		violations = append(violations, dto.Violation{
			Field:   field,
			Message: fmt.Sprintf("Comment exceeds %d characters", maxCommentLength),
			Code:    shared.CodeCommentTooLong,
		})
	}

	if hasRepeatedPattern(text, spamMinUnitLength, spamMinRepeats) {
		violations = append(violations, dto.Violation{
			Field:   field,
			Message: "Comment contains a repeated spam pattern",
			Code:    shared.CodeSpamPattern,
		})
	}

	return violations
}

// ScanComments runs Scan over every comments entry in deterministic field
// order so rejection bodies are stable.
func (svc *ContentValidatorService) ScanComments(comments map[string]string) []dto.Violation {
	keys := make([]string, 0, len(comments))
	for key := range comments {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var violations []dto.Violation
	for _, key := range keys {
		violations = append(violations, svc.Scan("comments."+key, comments[key])...)
	}
	return violations
}

// hasRepeatedPattern reports whether any unit of at least minUnit bytes
// occurs minRepeats times back to back. String equality bails on the first
// differing byte, so the scan stays cheap on normal text.
func hasRepeatedPattern(text string, minUnit, minRepeats int) bool {
	n := len(text)
	maxUnit := n / minRepeats

	for unit := minUnit; unit <= maxUnit; unit++ {
		for start := 0; start+unit*minRepeats <= n; start++ {
			seg := text[start : start+unit]
			count := 1
			for pos := start + unit; pos+unit <= n; pos += unit {
				if text[pos:pos+unit] != seg {
					break
				}
				count++
				if count >= minRepeats {
					return true
				}
			}
		}
	}
	return false
}

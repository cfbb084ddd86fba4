package services

import (
	"fmt"
	"strings"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

// BusinessRuleValidatorService runs statistical sanity checks on rating
// payloads and character-class sanitation on free-text personal fields.
type BusinessRuleValidatorService struct {
	appContext.DefaultService
}

const BUSINESS_RULES_SVC = "business_rules_svc"

const uniformRatingThreshold = 10

const nationalityForbiddenChars = "<>{}[]\\/|`~!@#$%^&*()+="

func (svc BusinessRuleValidatorService) Id() string {
	return BUSINESS_RULES_SVC
}

func (svc *BusinessRuleValidatorService) Start() error {
	return nil
}

// ValidateRatings checks the rating payload for statistically suspicious
// patterns. More than uniformRatingThreshold identical ratings is only
// rejecting when the shared value sits on the scale boundary; identical
// mid-scale ratings are legitimate lukewarm feedback and are logged, not
// blocked. That asymmetry is intentional policy.
func (svc *BusinessRuleValidatorService) ValidateRatings(ratings map[string]int) []dto.Violation {
	if len(ratings) < 1 {
		return []dto.Violation{{
			Field:   "ratings",
			Message: "At least one rating is required",
			Code:    shared.CodeInsufficientRatings,
		}}
	}

	if len(ratings) <= uniformRatingThreshold {
		return nil
	}

	uniform := true
	var value int
	first := true
	for _, v := range ratings {
		if first {
			value = v
			first = false
			continue
		}
		if v != value {
			uniform = false
			break
		}
	}
	if !uniform {
		return nil
	}

	if value == shared.RatingMin || value == shared.RatingMax {
		return []dto.Violation{{
			Field:   "ratings",
			Message: fmt.Sprintf("All %d ratings share the extreme value %d", len(ratings), value),
			Code:    shared.CodeExtremeRatingPattern,
		}}
	}

	log.WithFields(log.Fields{
		"rating_count": len(ratings),
		"value":        value,
	}).Info("Uniform mid-scale rating pattern observed")
	return nil
}

// ValidatePersonalInfo sanitizes free-text personal fields. Only character
// classes are inspected; the values themselves are not business-validated
// here.
func (svc *BusinessRuleValidatorService) ValidatePersonalInfo(info dto.PersonalInfo) []dto.Violation {
	if strings.ContainsAny(info.Nationality, nationalityForbiddenChars) {
		return []dto.Violation{{
			Field:   "personalInfo.nationality",
			Message: "Nationality contains forbidden characters",
			Code:    shared.CodeInvalidNationality,
		}}
	}
	return nil
}

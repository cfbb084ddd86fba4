package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

func uniformRatings(count, value int) map[string]int {
	ratings := make(map[string]int, count)
	for i := 0; i < count; i++ {
		ratings[fmt.Sprintf("question_%d", i)] = value
	}
	return ratings
}

func TestBusinessRules_ValidateRatings(t *testing.T) {
	svc := &BusinessRuleValidatorService{}

	tests := []struct {
		name     string
		ratings  map[string]int
		wantCode string
	}{
		{"nil ratings", nil, shared.CodeInsufficientRatings},
		{"empty ratings", map[string]int{}, shared.CodeInsufficientRatings},
		{"single rating", map[string]int{"checkin": 4}, ""},
		{"eleven uniform max", uniformRatings(11, 5), shared.CodeExtremeRatingPattern},
		{"eleven uniform min", uniformRatings(11, 1), shared.CodeExtremeRatingPattern},
		{"eleven uniform mid-scale", uniformRatings(11, 3), ""},
		{"ten uniform max under threshold", uniformRatings(10, 5), ""},
		{"eleven mixed", func() map[string]int {
			ratings := uniformRatings(11, 5)
			ratings["question_0"] = 4
			return ratings
		}(), ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			violations := svc.ValidateRatings(tc.ratings)

			if tc.wantCode == "" {
				assert.Empty(t, violations)
				return
			}

			require.Len(t, violations, 1)
			assert.Equal(t, tc.wantCode, violations[0].Code)
			assert.Equal(t, "ratings", violations[0].Field)
		})
	}
}

func TestBusinessRules_ValidatePersonalInfo(t *testing.T) {
	svc := &BusinessRuleValidatorService{}

	tests := []struct {
		name        string
		nationality string
		wantReject  bool
	}{
		{"plain value", "Moroccan", false},
		{"empty value", "", false},
		{"accented value", "Française", false},
		{"hyphenated value", "Guinea-Bissau", false},
		{"markup injection", "<script>", true},
		{"brace injection", "{{payload}}", true},
		{"shell characters", "x$(rm)", true},
		{"pipe character", "a|b", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			violations := svc.ValidatePersonalInfo(dto.PersonalInfo{Nationality: tc.nationality})

			if !tc.wantReject {
				assert.Empty(t, violations)
				return
			}

			require.Len(t, violations, 1)
			assert.Equal(t, shared.CodeInvalidNationality, violations[0].Code)
			assert.Equal(t, "personalInfo.nationality", violations[0].Field)
		})
	}
}

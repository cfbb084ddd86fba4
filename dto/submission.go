package dto

import "time"

type PersonalInfo struct {
	Age           string `json:"age" validate:"omitempty,max=32"`
	Nationality   string `json:"nationality" validate:"omitempty,max=128"`
	TravelPurpose string `json:"travelPurpose" validate:"omitempty,max=128"`
	Frequency     string `json:"frequency" validate:"omitempty,max=64"`
}

type SubmitSurveyRequest struct {
	Ratings      map[string]int    `json:"ratings" validate:"required,dive,min=1,max=5"`
	Comments     map[string]string `json:"comments" validate:"omitempty"`
	PersonalInfo PersonalInfo      `json:"personalInfo"`
}

func (r SubmitSurveyRequest) Validate() error {
	return GetValidator().Struct(r)
}

type SubmitSurveyResponse struct {
	SubmissionID string    `json:"submission_id"`
	ReceivedAt   time.Time `json:"received_at"`
}

// SubmissionMetadata is attached to the request context once the guard
// chain passes. Consumed by logging and the security monitor only.
type SubmissionMetadata struct {
	IP            string    `json:"ip"`
	UserAgent     string    `json:"user_agent"`
	Timestamp     time.Time `json:"timestamp"`
	RatingCount   int       `json:"rating_count"`
	CommentCount  int       `json:"comment_count"`
	ContentLength int       `json:"content_length"`
}

type RecentSubmissionsResponse struct {
	Count       int         `json:"count"`
	WindowStart time.Time   `json:"window_start"`
	Submissions interface{} `json:"submissions"`
}

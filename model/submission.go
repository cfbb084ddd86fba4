package model

import (
	"encoding/json"
	"time"
)

// Submission is an accepted survey response. Guard metadata (IP, user agent)
// travels with the row so the pattern analyzer can group by origin.
type Submission struct {
	ID        string          `json:"id" gorm:"primaryKey;type:text;not null"`
	IP        string          `json:"ip" gorm:"not null;index;size:64"`
	UserAgent string          `json:"user_agent" gorm:"size:512"`
	Ratings   json.RawMessage `json:"ratings" gorm:"type:text;not null"`
	Comments  json.RawMessage `json:"comments,omitempty" gorm:"type:text"`

	Age           string `json:"age" gorm:"size:32"`
	Nationality   string `json:"nationality" gorm:"size:128"`
	TravelPurpose string `json:"travel_purpose" gorm:"size:128"`
	Frequency     string `json:"frequency" gorm:"size:64"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// RatingsMap decodes the stored ratings column.
func (s *Submission) RatingsMap() (map[string]int, error) {
	ratings := map[string]int{}
	if len(s.Ratings) == 0 {
		return ratings, nil
	}
	if err := json.Unmarshal(s.Ratings, &ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

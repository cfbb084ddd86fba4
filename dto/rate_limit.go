package dto

import "time"

type RateLimitResult struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	MsBeforeNext int64      `json:"ms_before_next"`
	ResetTime    *time.Time `json:"reset_time,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

type RateLimitStatsResponse struct {
	Configs   interface{} `json:"configs"`
	Timestamp time.Time   `json:"timestamp"`
}

type UpdateLimiterConfigRequest struct {
	Points        int    `json:"points" validate:"omitempty,min=1"`
	Window        string `json:"window" validate:"omitempty"`         // e.g. "30m", "1h"
	BlockDuration string `json:"block_duration" validate:"omitempty"` // e.g. "30m", "1h"
}

func (r UpdateLimiterConfigRequest) Validate() error {
	return GetValidator().Struct(r)
}

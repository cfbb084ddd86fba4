package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/model"
	"github.com/nador-airport/survey_api/shared"
)

type SubmissionHandler struct {
	store      SubmissionStoreInterface
	monitorSvc SecurityMonitorInterface
}

func NewSubmissionHandler(store SubmissionStoreInterface, monitorSvc SecurityMonitorInterface) *SubmissionHandler {
	return &SubmissionHandler{
		store:      store,
		monitorSvc: monitorSvc,
	}
}

// @Summary Submit Survey
// @Description This endpoint accepts a satisfaction survey submission that already passed the guard chain
// @Tags survey
// @Accept  json
// @Produce json
// @Param submitSurveyRequest body dto.SubmitSurveyRequest true "Survey submission"
// @Success 201 {object} shared.Response{data=dto.SubmitSurveyResponse}
// @Router /api/v1/survey/submit [post]
func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
	req, ok := c.Locals(shared.SurveyRequest).(*dto.SubmitSurveyRequest)
	if !ok {
		return shared.NewInternalError(nil)
	}
	meta, ok := c.Locals(shared.SubmissionMetadata).(dto.SubmissionMetadata)
	if !ok {
		return shared.NewInternalError(nil)
	}

	ratings, err := shared.JSONMarshal(req.Ratings)
	if err != nil {
		return shared.NewInternalError(err)
	}
	comments, err := shared.JSONMarshal(req.Comments)
	if err != nil {
		return shared.NewInternalError(err)
	}

	sub := &model.Submission{
		ID:            uuid.New().String(),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Ratings:       ratings,
		Comments:      comments,
		Age:           req.PersonalInfo.Age,
		Nationality:   req.PersonalInfo.Nationality,
		TravelPurpose: req.PersonalInfo.TravelPurpose,
		Frequency:     req.PersonalInfo.Frequency,
		CreatedAt:     meta.Timestamp,
	}

	if err := h.store.SaveSubmission(sub); err != nil {
		return err
	}

	h.monitorSvc.RecordSubmission(meta.IP, meta)

	return shared.ResponseCreated(c, dto.SubmitSurveyResponse{
		SubmissionID: sub.ID,
		ReceivedAt:   sub.CreatedAt,
	})
}

// @Summary Recent Submissions
// @Description This endpoint lists submissions stored within the given window
// @Tags admin
// @Accept  json
// @Produce json
// @Param window query string false "Window duration, e.g. 1h"
// @Success 200 {object} shared.Response{data=dto.RecentSubmissionsResponse}
// @Router /api/v1/admin/submissions/recent [get]
func (h *SubmissionHandler) RecentSubmissions(c *fiber.Ctx) error {
	window := time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return shared.NewBadRequestError(err, "Invalid window duration")
		}
		window = parsed
	}

	since := time.Now().Add(-window)
	submissions, err := h.store.GetSubmissionsSince(c.Context(), since)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.RecentSubmissionsResponse{
		Count:       len(submissions),
		WindowStart: since,
		Submissions: submissions,
	})
}

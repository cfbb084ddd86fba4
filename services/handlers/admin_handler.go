package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

type AdminHandler struct {
	monitorSvc  SecurityMonitorInterface
	analyzerSvc PatternAnalyzerInterface
}

func NewAdminHandler(monitorSvc SecurityMonitorInterface, analyzerSvc PatternAnalyzerInterface) *AdminHandler {
	return &AdminHandler{
		monitorSvc:  monitorSvc,
		analyzerSvc: analyzerSvc,
	}
}

// @Summary Security Metrics
// @Description This endpoint returns the current security metrics snapshot
// @Tags admin
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.SecurityMetrics}
// @Router /api/v1/admin/security/metrics [get]
func (h *AdminHandler) GetSecurityMetrics(c *fiber.Ctx) error {
	return shared.ResponseOK(c, h.monitorSvc.GetMetrics())
}

// @Summary Security Events
// @Description This endpoint lists recent suspicious events, newest first
// @Tags admin
// @Accept  json
// @Produce json
// @Param limit query int false "Maximum number of events"
// @Success 200 {object} shared.Response{data=[]dto.SuspiciousEvent}
// @Router /api/v1/admin/security/events [get]
func (h *AdminHandler) GetSecurityEvents(c *fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return shared.NewBadRequestError(err, "Invalid limit")
		}
		limit = parsed
	}

	return shared.ResponseOK(c, h.monitorSvc.Events(limit))
}

// @Summary Run Pattern Analysis
// @Description This endpoint runs the pattern analyzer on demand and optionally feeds findings back into the monitor
// @Tags admin
// @Accept  json
// @Produce json
// @Param window query string false "Window duration, e.g. 1h"
// @Param report query bool false "Forward findings to the security monitor"
// @Success 200 {object} shared.Response{data=dto.AnalyzeResponse}
// @Router /api/v1/admin/security/analyze [post]
func (h *AdminHandler) RunAnalysis(c *fiber.Ctx) error {
	window := h.analyzerSvc.Window()
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return shared.NewBadRequestError(err, "Invalid window duration")
		}
		window = parsed
	}

	findings, err := h.analyzerSvc.Analyze(c.Context(), window)
	if err != nil {
		return shared.NewInternalError(err)
	}

	if c.QueryBool("report") {
		for _, finding := range findings {
			h.monitorSvc.ReportFinding(finding)
		}
	}

	return shared.ResponseOK(c, dto.AnalyzeResponse{
		WindowStart: time.Now().Add(-window),
		Findings:    findings,
	})
}

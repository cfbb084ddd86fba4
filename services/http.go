package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/services/handlers"
	"github.com/nador-airport/survey_api/shared"
)

type HttpService struct {
	appContext.DefaultService

	sqlSvc       *SqliteService
	guardSvc     *SubmissionGuardService
	rateLimitSvc *RateLimitService
	monitorSvc   *SecurityMonitorService
	analyzerSvc  *PatternAnalyzerService

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	svc.guardSvc = svc.Service(SUBMISSION_GUARD_SVC).(*SubmissionGuardService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.monitorSvc = svc.Service(SECURITY_MONITOR_SVC).(*SecurityMonitorService)
	svc.analyzerSvc = svc.Service(PATTERN_ANALYZER_SVC).(*PatternAnalyzerService)

	app := fiber.New(fiber.Config{
		ErrorHandler: svc.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	app.Get("/ping", svc.ping)

	v1 := app.Group("/api/v1")

	submissionHandler := handlers.NewSubmissionHandler(svc.sqlSvc, svc.monitorSvc)
	adminHandler := handlers.NewAdminHandler(svc.monitorSvc, svc.analyzerSvc)

	survey := v1.Group("/survey")
	survey.Post("/submit", svc.guardSvc.Guard(), submissionHandler.Submit)

	admin := v1.Group("/admin")
	admin.Get("/submissions/recent", submissionHandler.RecentSubmissions)
	admin.Get("/security/metrics", adminHandler.GetSecurityMetrics)
	admin.Get("/security/events", adminHandler.GetSecurityEvents)
	admin.Post("/security/analyze", adminHandler.RunAnalysis)
	admin.Get("/ratelimit/stats", svc.rateLimitSvc.GetRateLimitStats())
	admin.Put("/ratelimit/:limiter", svc.rateLimitSvc.UpdateConfig())
	admin.Delete("/ratelimit/:limiter/:key", svc.rateLimitSvc.RemoveRateLimit())

	svc.server = app

	log.WithFields(log.Fields{"port": svc.port}).Info("HTTP server starting")
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithFields(log.Fields{"error": err.Error()}).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}

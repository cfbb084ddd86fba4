package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "survey_guard"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Security Metrics
var (
	submissionsRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "survey_submissions_recorded_total",
			Help: "Total accepted survey submissions",
		},
	)

	suspiciousAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_suspicious_attempts_total",
			Help: "Total suspicious events by type",
		},
		[]string{"type"},
	)

	validationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_validation_errors_total",
			Help: "Total guard-chain validation rejections by code",
		},
		[]string{"code"},
	)

	rateLimitHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "survey_rate_limit_hits_total",
			Help: "Total requests rejected by a rate limiter",
		},
	)

	blockedIPsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "survey_blocked_ips",
			Help: "IPs currently in the blocked set for this metrics interval",
		},
	)

	alertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_alerts_fired_total",
			Help: "Total security alerts fired by type and severity",
		},
		[]string{"type", "severity"},
	)

	guardStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "survey_guard_stage_duration_seconds",
			Help:    "Guard stage execution time in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"stage", "outcome"},
	)
)

type MonitoringService struct {
	appContext.DefaultService

	port     int
	register *prometheus.Registry

	server *fiber.App
}

func (svc *MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Start() error {
	portStr := os.Getenv("PROMETHEUS_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DEFAULT_PROMETHEUS_PORT
	}
	svc.port = port

	// Create new registry
	reg := prometheus.NewRegistry()

	// Register default collectors (includes Go runtime metrics like memory)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Register custom metrics
	reg.MustRegister(
		submissionsRecordedTotal,
		suspiciousAttemptsTotal,
		validationErrorsTotal,
		rateLimitHitsTotal,
		blockedIPsGauge,
		alertsFiredTotal,
		guardStageDurationSeconds,
	)

	svc.register = reg

	config := fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}

	svc.server = fiber.New(config)
	svc.server.Use(recover.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	log.WithFields(log.Fields{"port": svc.port}).Info("Prometheus metrics server started")
	go func() {
		if err := svc.server.Listen(fmt.Sprintf(":%v", svc.port)); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

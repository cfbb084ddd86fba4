package services

import (
	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/shared"
)

// Notifier receives published alerts. Delivery is fire-and-forget: a
// failing sink is logged and never propagates back to the guard chain.
type Notifier interface {
	SendAlert(alert dto.Alert) error
}

// AlertService fans published alerts out to its notifiers.
type AlertService struct {
	appContext.DefaultService

	notifiers []Notifier
}

const ALERT_SVC = "alert_svc"

func (svc AlertService) Id() string {
	return ALERT_SVC
}

func (svc *AlertService) Start() error {
	svc.notifiers = []Notifier{
		&LogNotifier{},
		&PrometheusNotifier{},
	}
	return nil
}

// Publish forwards the alert to every notifier.
func (svc *AlertService) Publish(alert dto.Alert) {
	for _, notifier := range svc.notifiers {
		if err := notifier.SendAlert(alert); err != nil {
			log.WithFields(log.Fields{
				"alert_type": alert.Type,
				"error":      err.Error(),
			}).Error("Alert delivery failed")
		}
	}
}

// LogNotifier sends alerts to local logs.
type LogNotifier struct{}

func (n *LogNotifier) SendAlert(alert dto.Alert) error {
	entry := log.WithFields(log.Fields{
		"alert_id":            alert.ID,
		"type":                alert.Type,
		"severity":            alert.Severity,
		"total_submissions":   alert.Metrics.TotalSubmissions,
		"suspicious_attempts": alert.Metrics.SuspiciousAttempts,
	})

	switch alert.Severity {
	case shared.SeverityCritical:
		entry.Error("Security alert")
	case shared.SeverityWarning:
		entry.Warn("Security alert")
	default:
		entry.Info("Security alert")
	}
	return nil
}

// PrometheusNotifier counts fired alerts by type and severity.
type PrometheusNotifier struct{}

func (n *PrometheusNotifier) SendAlert(alert dto.Alert) error {
	alertsFiredTotal.WithLabelValues(alert.Type, alert.Severity).Inc()
	return nil
}

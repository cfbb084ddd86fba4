package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/services"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	ctx, err := context.NewCtx(
		&services.SqliteService{},
		&services.RedisService{},
		&services.MonitoringService{},
		&services.AlertService{},
		&services.ContentValidatorService{},
		&services.BusinessRuleValidatorService{},
		&services.RateLimitService{},
		&services.SecurityMonitorService{},
		&services.PatternAnalyzerService{},
		&services.SubmissionGuardService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal(err)
		return
	}
}

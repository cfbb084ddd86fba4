package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nador-airport/survey_api/model"
)

type SqliteService struct {
	appContext.DefaultService
	db *gorm.DB

	database  string
	retention time.Duration
	stop      chan struct{}
}

const SQLITE_SVC = "sqlite_svc"

// Id returns Service ID
func (ds SqliteService) Id() string {
	return SQLITE_SVC
}

// Db Access to raw SqliteService db
func (ds SqliteService) Db() *gorm.DB {
	return ds.db
}

// Configure the service
func (ds *SqliteService) Configure(ctx *appContext.Context) error {
	ds.database = os.Getenv("DB_DATABASE")
	if ds.database == "" {
		ds.database = "survey.db"
	}
	ds.retention = envDuration("SUBMISSION_RETENTION", 24*time.Hour)

	return ds.DefaultService.Configure(ctx)
}

// Start the service and open connection to the database
// Migrate any tables that have changed since last runtime
func (ds *SqliteService) Start() (err error) {
	ds.db, err = gorm.Open(sqlite.Open(ds.database), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return err
	}

	err = ds.db.AutoMigrate(&model.Submission{})
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")

	ds.stop = make(chan struct{})
	go ds.startCleanupJob()

	return nil
}

func (ds *SqliteService) Shutdown() {
	if ds.stop != nil {
		close(ds.stop)
	}
}

// startCleanupJob drops submissions past the retention horizon every hour.
func (ds *SqliteService) startCleanupJob() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ds.CleanupOldSubmissions(ds.retention); err != nil {
				log.Printf("Submission cleanup error: %v", err)
			}
		case <-ds.stop:
			return
		}
	}
}

// SaveSubmission persists an accepted survey response.
func (ds *SqliteService) SaveSubmission(sub *model.Submission) error {
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	return ds.HandleError(ds.db.Create(sub).Error)
}

// GetSubmissionsSince returns submissions newer than since, oldest first.
// The context bounds the query so a slow store cannot stall callers.
func (ds *SqliteService) GetSubmissionsSince(ctx context.Context, since time.Time) ([]model.Submission, error) {
	var submissions []model.Submission
	err := ds.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at asc").
		Find(&submissions).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return submissions, nil
}

// CleanupOldSubmissions drops rows past the retention horizon.
func (ds *SqliteService) CleanupOldSubmissions(retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	return ds.HandleError(ds.db.Where("created_at < ?", cutoff).Delete(&model.Submission{}).Error)
}

func (ds *SqliteService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound // 404
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict // 409
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest // 400
		errorType = "FOREIGN_KEY_VIOLATION"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError // 500
		errorType = "TRANSACTION_ERROR"
	default:
		// Check for SQLite-specific errors
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			statusCode = http.StatusConflict // 409
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "no such table") {
			statusCode = http.StatusInternalServerError // 500
			errorType = "SCHEMA_ERROR"
		} else {
			statusCode = http.StatusInternalServerError // 500
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}

package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/cespare/xxhash/v2"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/nador-airport/survey_api/dto"
	"github.com/nador-airport/survey_api/services/ratelimit"
	"github.com/nador-airport/survey_api/shared"
)

// RateLimitService owns the named limiter instances used by the guard
// chain: brute_force (keyed by IP) and duplicate (keyed by IP+UserAgent).
type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*LimiterConfig
	mutex   sync.RWMutex

	storage ratelimit.Storage

	redisSvc *RedisService
}

// LimiterConfig is one named quota definition.
type LimiterConfig struct {
	Name          string        `json:"name"`
	Points        int           `json:"points"`
	Window        time.Duration `json:"window"`
	BlockDuration time.Duration `json:"block_duration"`
	Description   string        `json:"description"`
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.configs = make(map[string]*LimiterConfig)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.initDefaultConfigs()

	if svc.redisSvc.Enabled() {
		svc.storage = ratelimit.NewRedisStorage(svc.redisSvc.GetClient())
		log.Println("Rate limiter using redis bucket storage")
	} else {
		mem := ratelimit.NewMemoryStorage()
		mem.StartSweeper(10*time.Minute, svc.maxBucketIdle())
		svc.storage = mem
		log.Println("Rate limiter using in-memory bucket storage")
	}

	return nil
}

func (svc *RateLimitService) Shutdown() {
	if svc.storage != nil {
		_ = svc.storage.Close()
	}
}

// ==================== CONFIGURATION MANAGEMENT ====================

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*LimiterConfig{
		shared.LimiterBruteForce: {
			Name:          shared.LimiterBruteForce,
			Points:        envInt("BRUTE_FORCE_POINTS", 10),
			Window:        envDuration("BRUTE_FORCE_WINDOW", time.Hour),
			BlockDuration: envDuration("BRUTE_FORCE_BLOCK", time.Hour),
			Description:   "Submission flood protection per IP",
		},
		shared.LimiterDuplicate: {
			Name:          shared.LimiterDuplicate,
			Points:        envInt("DUPLICATE_POINTS", 3),
			Window:        envDuration("DUPLICATE_WINDOW", 30*time.Minute),
			BlockDuration: envDuration("DUPLICATE_BLOCK", 30*time.Minute),
			Description:   "Duplicate submission protection per IP and user agent",
		},
	}
}

func (svc *RateLimitService) maxBucketIdle() time.Duration {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	max := time.Hour
	for _, cfg := range svc.configs {
		if idle := cfg.Window + cfg.BlockDuration; idle > max {
			max = idle
		}
	}
	return max
}

func (svc *RateLimitService) getConfig(limiter string) (*LimiterConfig, bool) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	cfg, ok := svc.configs[limiter]
	if !ok {
		return nil, false
	}
	copied := *cfg
	return &copied, true
}

// Configs returns a snapshot of every limiter definition.
func (svc *RateLimitService) Configs() map[string]LimiterConfig {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	out := make(map[string]LimiterConfig, len(svc.configs))
	for name, cfg := range svc.configs {
		out[name] = *cfg
	}
	return out
}

// ==================== CORE RATE LIMITING LOGIC ====================

// Consume spends one point against the named limiter for key.
func (svc *RateLimitService) Consume(ctx context.Context, limiter, key string) (*dto.RateLimitResult, error) {
	cfg, ok := svc.getConfig(limiter)
	if !ok {
		// Unknown limiter: allow rather than guess at a quota.
		return &dto.RateLimitResult{Allowed: true, Remaining: -1}, nil
	}

	res, err := svc.storage.Consume(ctx, svc.storageKey(limiter, key), 1, ratelimit.Config{
		Points:        cfg.Points,
		Window:        cfg.Window,
		BlockDuration: cfg.BlockDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit consume failed for %s: %w", limiter, err)
	}

	if !res.Allowed {
		log.WithFields(log.Fields{
			"limiter":        limiter,
			"key":            key,
			"ms_before_next": res.MsBeforeNext,
		}).Info("Rate limit exceeded")
	}

	result := &dto.RateLimitResult{
		Allowed:      res.Allowed,
		Remaining:    res.Remaining,
		MsBeforeNext: res.MsBeforeNext,
		BlockedUntil: res.BlockedUntil,
	}
	resetTime := res.ResetTime
	if !resetTime.IsZero() {
		result.ResetTime = &resetTime
	}
	return result, nil
}

// ResetKey clears the bucket for key under the named limiter.
func (svc *RateLimitService) ResetKey(ctx context.Context, limiter, key string) error {
	return svc.storage.Reset(ctx, svc.storageKey(limiter, key))
}

func (svc *RateLimitService) storageKey(limiter, key string) string {
	return fmt.Sprintf("%s:%s", limiter, key)
}

// DuplicateKey builds the composite identity for the duplicate limiter.
// The user agent is hashed so arbitrary header content never lands in a
// storage key.
func DuplicateKey(ip, userAgent string) string {
	return fmt.Sprintf("%s:%016x", ip, xxhash.Sum64String(userAgent))
}

// ==================== ADMIN FUNCTIONS ====================

func (svc *RateLimitService) GetRateLimitStats() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, dto.RateLimitStatsResponse{
			Configs:   svc.Configs(),
			Timestamp: time.Now(),
		})
	}
}

func (svc *RateLimitService) RemoveRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := c.Params("limiter")
		key := c.Params("key")

		if limiter == "" || key == "" {
			return shared.NewBadRequestError(nil, "Missing limiter or key")
		}

		if err := svc.ResetKey(c.Context(), limiter, key); err != nil {
			return shared.NewInternalError(err)
		}

		return shared.ResponseJSON(c, fiber.StatusOK, fmt.Sprintf("Rate limit removed for %s/%s", limiter, key), nil)
	}
}

func (svc *RateLimitService) UpdateConfig() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := c.Params("limiter")

		var req dto.UpdateLimiterConfigRequest
		if err := c.BodyParser(&req); err != nil {
			return shared.NewBadRequestError(err, "Invalid request body")
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
		}

		svc.mutex.Lock()
		cfg, exists := svc.configs[limiter]
		if !exists {
			svc.mutex.Unlock()
			return shared.NewNotFoundError(nil, "Limiter not found")
		}

		if req.Points > 0 {
			cfg.Points = req.Points
		}
		if req.Window != "" {
			if duration, err := time.ParseDuration(req.Window); err == nil {
				cfg.Window = duration
			}
		}
		if req.BlockDuration != "" {
			if duration, err := time.ParseDuration(req.BlockDuration); err == nil {
				cfg.BlockDuration = duration
			}
		}
		updated := *cfg
		svc.mutex.Unlock()

		return shared.ResponseJSON(c, fiber.StatusOK, "Configuration updated successfully", updated)
	}
}

// ==================== ENV HELPERS ====================

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
		log.Printf("Invalid value for %s: %s", key, raw)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
		log.Printf("Invalid duration for %s: %s", key, raw)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
		log.Printf("Invalid value for %s: %s", key, raw)
	}
	return fallback
}

func envBool(key string) bool {
	raw := os.Getenv(key)
	return raw == "true" || raw == "1"
}

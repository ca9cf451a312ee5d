package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/observability"
)

// Cached result views.
const (
	ViewAttempts  = "attempts"
	ViewDetail    = "detail"
	ViewRows      = "rows"
	ViewSummary   = "summary"
	ViewQuestions = "questions"
)

// ViewCache stores rendered result views. Keys carry a generation that InvalidateResult
// bumps, so a read that started before an invalidation stores its copy under a key no later
// read will ask for.
type ViewCache interface {
	ResultKey(ctx context.Context, view string, examID, enrollmentID uint) string
	ExamKey(ctx context.Context, view string, examID uint) string
	Load(ctx context.Context, key string, dest interface{}) bool
	Store(ctx context.Context, key string, value interface{})
	InvalidateResult(ctx context.Context, examID, enrollmentID uint) error
}

// ResultViewKey names the cache entry of a per-enrollment view at a generation.
func ResultViewKey(view string, examID, enrollmentID uint, generation int64) string {
	return fmt.Sprintf("results:exam:%d:enrollment:%d:g%d:%s", examID, enrollmentID, generation, view)
}

// ExamViewKey names the cache entry of an exam-wide view at a generation.
func ExamViewKey(view string, examID uint, generation int64) string {
	return fmt.Sprintf("results:exam:%d:g%d:%s", examID, generation, view)
}

func resultGenerationKey(examID, enrollmentID uint) string {
	return fmt.Sprintf("results:exam:%d:enrollment:%d:gen", examID, enrollmentID)
}

func examGenerationKey(examID uint) string {
	return fmt.Sprintf("results:exam:%d:gen", examID)
}

type redisViewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewViewCache builds a Redis backed view cache. A nil client disables caching.
func NewViewCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) ViewCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &redisViewCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "view_cache").Logger(),
	}
}

// generation returns the current counter, or false when it cannot be read. Callers then skip
// the cache entirely.
func (c *redisViewCache) generation(ctx context.Context, key string) (int64, bool) {
	value, err := c.client.Get(ctx, key).Int64()
	switch {
	case err == nil:
		return value, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to read result view generation")
		return 0, false
	}
}

func (c *redisViewCache) ResultKey(ctx context.Context, view string, examID, enrollmentID uint) string {
	if c.client == nil {
		return ""
	}
	gen, ok := c.generation(ctx, resultGenerationKey(examID, enrollmentID))
	if !ok {
		return ""
	}
	return ResultViewKey(view, examID, enrollmentID, gen)
}

func (c *redisViewCache) ExamKey(ctx context.Context, view string, examID uint) string {
	if c.client == nil {
		return ""
	}
	gen, ok := c.generation(ctx, examGenerationKey(examID))
	if !ok {
		return ""
	}
	return ExamViewKey(view, examID, gen)
}

func (c *redisViewCache) Load(ctx context.Context, key string, dest interface{}) bool {
	if c.client == nil || key == "" {
		return false
	}

	cached, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to read result view cache")
		}
		observability.ViewCacheLookups().WithLabelValues(viewLabel(key), "miss").Inc()
		return false
	}

	if err := json.Unmarshal([]byte(cached), dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt result view cache entry")
		observability.ViewCacheLookups().WithLabelValues(viewLabel(key), "miss").Inc()
		return false
	}

	observability.ViewCacheLookups().WithLabelValues(viewLabel(key), "hit").Inc()
	return true
}

func (c *redisViewCache) Store(ctx context.Context, key string, value interface{}) {
	if c.client == nil || key == "" {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to encode result view")
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store result view cache")
	}
}

// InvalidateResult drops the current views of one result and its exam, then moves both
// generations forward in one transaction.
func (c *redisViewCache) InvalidateResult(ctx context.Context, examID, enrollmentID uint) error {
	if c.client == nil {
		return nil
	}

	keys := []string{
		c.ResultKey(ctx, ViewAttempts, examID, enrollmentID),
		c.ResultKey(ctx, ViewDetail, examID, enrollmentID),
		c.ExamKey(ctx, ViewRows, examID),
		c.ExamKey(ctx, ViewSummary, examID),
		c.ExamKey(ctx, ViewQuestions, examID),
	}
	current := keys[:0]
	for _, key := range keys {
		if key != "" {
			current = append(current, key)
		}
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, resultGenerationKey(examID, enrollmentID))
		pipe.Incr(ctx, examGenerationKey(examID))
		if len(current) > 0 {
			pipe.Del(ctx, current...)
		}
		return nil
	})
	if err != nil {
		c.logger.Error().Err(err).Uint("exam_id", examID).Uint("enrollment_id", enrollmentID).Msg("failed to invalidate result views")
		return err
	}

	return nil
}

func viewLabel(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

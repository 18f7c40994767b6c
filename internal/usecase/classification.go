package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/logging"
	"github.com/example/ecovision/internal/repository"
	"github.com/example/ecovision/internal/retry"
)

// ErrNoImageData is returned when the caller supplies an empty image.
var ErrNoImageData = errors.New("no image data provided")

const (
	processingTTL = time.Minute
	resultTTL     = 5 * time.Minute
)

// HistoryRepository defines the persistence operations needed by the use case.
type HistoryRepository interface {
	SaveLog(ctx context.Context, log *repository.ClassificationLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.ClassificationLog, error)
	ListRecent(ctx context.Context, limit int) ([]*repository.ClassificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Classifier is the pipeline the use case drives.
type Classifier interface {
	Classify(ctx context.Context, image []byte) Outcome
}

// ClassificationUseCase wraps the dispatcher with history, caching and
// metrics. Persistence problems are logged and never fail a classification.
type ClassificationUseCase struct {
	classifier Classifier
	repo       HistoryRepository
	cache      Cache
	logger     *zap.Logger
	policy     retry.Policy
	now        func() time.Time
}

// NewClassificationUseCase constructs a new use case instance. A nil cache
// disables caching.
func NewClassificationUseCase(classifier Classifier, repo HistoryRepository, cache Cache, logger *zap.Logger) *ClassificationUseCase {
	if cache == nil {
		cache = NoopCache{}
	}
	return &ClassificationUseCase{
		classifier: classifier,
		repo:       repo,
		cache:      cache,
		logger:     logger.Named("classification_usecase"),
		policy:     retry.DefaultPolicy(),
		now:        time.Now,
	}
}

// ClassifyImage runs the pipeline and records the result. The only error it
// returns is ErrNoImageData.
func (uc *ClassificationUseCase) ClassifyImage(ctx context.Context, imageBytes []byte) (string, *classification.Result, error) {
	if len(imageBytes) == 0 {
		return "", nil, ErrNoImageData
	}

	requestID := uuid.NewString()
	httpRequestID := logging.RequestIDFromContext(ctx)
	ctx = logging.ContextWithRequestID(ctx, requestID)
	opLogger := logging.WithOperation(uc.logger, "usecase.classify_image", requestID)
	if httpRequestID != "" {
		opLogger = opLogger.With(zap.String("http_request_id", httpRequestID))
	}

	cacheKey := resultCacheKey(requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", processingTTL)
	}); err != nil {
		opLogger.Warn("failed to set processing flag", zap.Error(err))
	}

	started := uc.now()
	outcome := uc.classifier.Classify(ctx, imageBytes)
	latency := uc.now().Sub(started)
	result := outcome.Result

	hash := sha1.Sum(imageBytes)
	log := repository.NewClassificationLog(requestID, hex.EncodeToString(hash[:]), result, latency, uc.now().UTC())
	opLogger.Info("classification complete",
		zap.String("category", string(result.Category)),
		zap.Int("confidence", result.Confidence),
		zap.String("source", string(outcome.Source)),
		zap.Duration("latency", latency),
	)

	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist classification log", zap.Error(wrapped))
	}

	serialized, err := json.Marshal(log)
	if err != nil {
		opLogger.Error("failed to serialize classification result", zap.Error(err))
		return requestID, &result, nil
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), resultTTL)
	}); err != nil {
		opLogger.Warn("failed to cache classification result", zap.Error(err))
	}

	return requestID, &result, nil
}

// GetResult retrieves a cached classification or loads it from history.
func (uc *ClassificationUseCase) GetResult(ctx context.Context, requestID string) (*repository.ClassificationLog, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)
	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultCacheKey(requestID))
	switch {
	case err == nil && cached != "processing":
		var log repository.ClassificationLog
		if err := json.Unmarshal([]byte(cached), &log); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
		} else {
			return &log, nil
		}
	case err != nil && !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestID(ctx, requestID)
}

// ListHistory returns the most recent classifications.
func (uc *ClassificationUseCase) ListHistory(ctx context.Context, limit int) ([]*repository.ClassificationLog, error) {
	return uc.repo.ListRecent(ctx, limit)
}

func (uc *ClassificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	return retry.Do(ctx, uc.logger, uc.policy, operation, requestID, fn)
}

func (uc *ClassificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var (
		result string
		miss   bool
	)
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	if miss {
		return "", redis.Nil
	}
	return result, nil
}

func resultCacheKey(requestID string) string {
	return fmt.Sprintf("classification:%s", requestID)
}

package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ecovision/internal/retry"
)

// GormStore persists classification history in a SQL database.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewGormStore creates a new repository instance.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.Named("classification_repository"),
		policy: retry.DefaultPolicy(),
	}
}

// AutoMigrate ensures the schema is available.
func (r *GormStore) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ClassificationLog{})
}

// SaveLog persists a classification log entry.
func (r *GormStore) SaveLog(ctx context.Context, log *ClassificationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the entry for a request.
func (r *GormStore) FindByRequestID(ctx context.Context, requestID string) (*ClassificationLog, error) {
	var log ClassificationLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ListRecent returns up to limit entries, newest first.
func (r *GormStore) ListRecent(ctx context.Context, limit int) ([]*ClassificationLog, error) {
	var logs []*ClassificationLog
	err := r.executeWithRetry(ctx, "repository.list_recent", "", func() error {
		return r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics computes totals over the whole history.
func (r *GormStore) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var totals struct {
		TotalCount        int64
		OfflineCount      int64
		AverageConfidence float64
		TotalBuds         int64
		AverageLatencyMs  float64
	}
	var counts []struct {
		Category string
		Count    int64
	}

	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		db := r.db.WithContext(ctx).Model(&ClassificationLog{})
		if err := db.Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN offline_mode THEN 1 ELSE 0 END), 0) AS offline_count, " +
				"COALESCE(AVG(confidence), 0) AS average_confidence, " +
				"COALESCE(SUM(buds_reward), 0) AS total_buds, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
		).Scan(&totals).Error; err != nil {
			return err
		}
		counts = counts[:0]
		return r.db.WithContext(ctx).Model(&ClassificationLog{}).
			Select("category, COUNT(*) AS count").
			Group("category").
			Scan(&counts).Error
	})
	if err != nil {
		return nil, err
	}

	aggregation := &MetricsAggregation{
		TotalCount:        totals.TotalCount,
		OfflineCount:      totals.OfflineCount,
		AverageConfidence: totals.AverageConfidence,
		TotalBuds:         totals.TotalBuds,
		AverageLatencyMs:  totals.AverageLatencyMs,
		CategoryCounts:    make(map[string]int64, len(counts)),
	}
	for _, c := range counts {
		aggregation.CategoryCounts[c.Category] = c.Count
	}
	return aggregation, nil
}

func (r *GormStore) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.logger, r.policy, operation, requestID, fn)
}

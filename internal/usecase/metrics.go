package usecase

import "context"

// MetricsSummary represents aggregated classification insights.
type MetricsSummary struct {
	TotalClassifications   int64            `json:"total_classifications"`
	OfflineClassifications int64            `json:"offline_classifications"`
	OfflineRate            float64          `json:"offline_rate"`
	AverageConfidence      float64          `json:"average_confidence"`
	TotalBudsAwarded       int64            `json:"total_buds_awarded"`
	AverageLatencyMs       float64          `json:"average_latency_ms"`
	CategoryCounts         map[string]int64 `json:"category_counts"`
}

// GetMetricsSummary aggregates classification metrics from the history.
func (uc *ClassificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalClassifications:   aggregation.TotalCount,
		OfflineClassifications: aggregation.OfflineCount,
		AverageConfidence:      aggregation.AverageConfidence,
		TotalBudsAwarded:       aggregation.TotalBuds,
		AverageLatencyMs:       aggregation.AverageLatencyMs,
		CategoryCounts:         aggregation.CategoryCounts,
	}
	if summary.CategoryCounts == nil {
		summary.CategoryCounts = map[string]int64{}
	}

	if aggregation.TotalCount > 0 {
		summary.OfflineRate = float64(aggregation.OfflineCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

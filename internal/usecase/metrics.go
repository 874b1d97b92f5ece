package usecase

import (
	"context"
	"errors"

	"github.com/example/cardscan/internal/repository"
)

// ErrAuditLogDisabled is returned by lookups when no repository is configured.
var ErrAuditLogDisabled = errors.New("recognition audit log is disabled")

// MetricsSummary represents aggregated recognition insights.
type MetricsSummary struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	SuccessRate        float64          `json:"success_rate"`
	AverageLatencyMs   float64          `json:"average_latency_ms"`
	ByStatus           map[string]int64 `json:"by_status"`
	AuditLogEnabled    bool             `json:"audit_log_enabled"`
}

// GetMetricsSummary aggregates recognition metrics from persisted logs.
// Without a repository it returns an empty summary.
func (uc *RecognitionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	summary := &MetricsSummary{ByStatus: map[string]int64{}}
	if uc.repo == nil {
		return summary, nil
	}

	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary.AuditLogEnabled = true
	summary.TotalRequests = aggregation.TotalCount
	summary.SuccessfulRequests = aggregation.SuccessCount
	summary.AverageLatencyMs = aggregation.AverageLatencyMs
	for status, count := range aggregation.StatusCounts {
		summary.ByStatus[status] = count
	}
	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

// GetResult returns the audit entry written for one recognized item. A
// non-empty subject only matches entries recorded for that subject.
func (uc *RecognitionUseCase) GetResult(ctx context.Context, subject, requestID string) (*repository.RecognitionLog, error) {
	if uc.repo == nil {
		return nil, ErrAuditLogDisabled
	}
	return uc.repo.FindByRequestIDAndSubject(ctx, requestID, subject)
}

package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/cardscan/internal/logging"
)

// RecognitionLog is one audited recognition attempt. Card contents are not stored.
type RecognitionLog struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Subject   string    `gorm:"column:subject;index;size:128"`
	ImageHash string    `gorm:"column:image_hash;index;size:40"`
	Model     string    `gorm:"column:model;size:128"`
	Status    string    `gorm:"column:status;index;size:32"`
	Details   string    `gorm:"column:details;type:text"`
	LatencyMs int64     `gorm:"column:latency_ms"`
	CacheHit  bool      `gorm:"column:cache_hit"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (RecognitionLog) TableName() string {
	return "recognition_logs"
}

// MetricsAggregation is the raw aggregate computed over recognition logs.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	AverageLatencyMs float64
	StatusCounts     map[string]int64
}

// RecognitionRepository persists recognition logs through gorm.
type RecognitionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRecognitionRepository creates a new repository instance.
func NewRecognitionRepository(db *gorm.DB, logger *zap.Logger) *RecognitionRepository {
	return &RecognitionRepository{
		db:             db,
		logger:         logger.Named("recognition_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *RecognitionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&RecognitionLog{})
}

// SaveLog persists a recognition log entry.
func (r *RecognitionRepository) SaveLog(ctx context.Context, log *RecognitionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndSubject retrieves the log written for a request. An empty
// subject matches any owner; otherwise the entry must belong to subject.
func (r *RecognitionRepository) FindByRequestIDAndSubject(ctx context.Context, requestID, subject string) (*RecognitionLog, error) {
	var log RecognitionLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		query := r.db.WithContext(ctx).Where("request_id = ?", requestID)
		if subject != "" {
			query = query.Where("subject = ?", subject)
		}
		return query.First(&log).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics counts logs per status and averages latency over all of them.
func (r *RecognitionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var rows []struct {
		Status     string
		Count      int64
		AvgLatency float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).
			Model(&RecognitionLog{}).
			Select("status, COUNT(*) AS count, COALESCE(AVG(latency_ms), 0) AS avg_latency").
			Group("status").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{StatusCounts: make(map[string]int64, len(rows))}
	var latencySum float64
	for _, row := range rows {
		agg.StatusCounts[row.Status] = row.Count
		agg.TotalCount += row.Count
		latencySum += row.AvgLatency * float64(row.Count)
		if row.Status == StatusOK {
			agg.SuccessCount += row.Count
		}
	}
	if agg.TotalCount > 0 {
		agg.AverageLatencyMs = latencySum / float64(agg.TotalCount)
	}
	return agg, nil
}

// StatusOK is the status value written for successful recognitions.
const StatusOK = "ok"

func (r *RecognitionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}

package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/cardscan/internal/card"
	"github.com/example/cardscan/internal/imageloader"
	"github.com/example/cardscan/internal/inference"
	"github.com/example/cardscan/internal/logging"
	"github.com/example/cardscan/internal/metrics"
	"github.com/example/cardscan/internal/prompt"
	"github.com/example/cardscan/internal/repository"
)

// ImageLoader resolves an image reference into bytes.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (imageloader.Image, error)
}

// RecognitionRepository defines the persistence operations needed by the use case.
type RecognitionRepository interface {
	SaveLog(ctx context.Context, log *repository.RecognitionLog) error
	FindByRequestIDAndSubject(ctx context.Context, requestID, subject string) (*repository.RecognitionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Options tune a RecognitionUseCase.
type Options struct {
	// Concurrency bounds in-flight items per batch.
	Concurrency int
	CacheTTL    time.Duration
}

// RecognitionUseCase runs the card pipeline: load, prompt, infer, normalize, coalesce.
// Cache and repository are optional; pass nil to disable them.
type RecognitionUseCase struct {
	loader         ImageLoader
	engine         inference.Client
	cache          Cache
	repo           RecognitionRepository
	logger         *zap.Logger
	concurrency    int
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRecognitionUseCase constructs a new use case instance.
func NewRecognitionUseCase(loader ImageLoader, engine inference.Client, cache Cache, repo RecognitionRepository, logger *zap.Logger, opts Options) *RecognitionUseCase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &RecognitionUseCase{
		loader:         loader,
		engine:         engine,
		cache:          cache,
		repo:           repo,
		logger:         logger.Named("recognition_usecase"),
		concurrency:    opts.Concurrency,
		cacheTTL:       opts.CacheTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Recognize resolves ref and extracts a card record from it. subject is the
// authenticated caller recorded in the audit log; it may be empty.
func (uc *RecognitionUseCase) Recognize(ctx context.Context, subject, ref string) (card.Record, error) {
	return uc.recognizeRef(ctx, uuid.NewString(), subject, ref)
}

func (uc *RecognitionUseCase) recognizeRef(ctx context.Context, requestID, subject, ref string) (card.Record, error) {
	started := time.Now()

	img, err := uc.loader.Load(ctx, ref)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.load_image", requestID, err)
		logging.WithOperation(uc.logger, "usecase.recognize", requestID).Warn("image unavailable", zap.Error(wrapped))
		uc.finish(ctx, requestID, subject, "", false, started, wrapped)
		return card.Record{}, wrapped
	}
	return uc.recognizeImage(ctx, requestID, subject, img, started)
}

// RecognizeImage extracts a card record from an already decoded image.
func (uc *RecognitionUseCase) RecognizeImage(ctx context.Context, subject string, img imageloader.Image) (card.Record, error) {
	return uc.recognizeImage(ctx, uuid.NewString(), subject, img, time.Now())
}

func (uc *RecognitionUseCase) recognizeImage(ctx context.Context, requestID, subject string, img imageloader.Image, started time.Time) (card.Record, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.recognize", requestID)
	sum := sha1.Sum(img.Bytes())
	imageHash := hex.EncodeToString(sum[:])
	cacheKey := cardCacheKey(uc.engine.Model(), imageHash)

	if rec, ok := uc.cachedRecord(ctx, requestID, cacheKey); ok {
		opLogger.Debug("card served from cache", zap.String("image_hash", imageHash))
		uc.finish(ctx, requestID, subject, imageHash, true, started, nil)
		return rec, nil
	}

	inferStarted := time.Now()
	reply, err := uc.engine.Complete(ctx, prompt.Build(img))
	metrics.InferenceDuration.WithLabelValues(uc.engine.Model()).Observe(time.Since(inferStarted).Seconds())
	if err != nil {
		wrapped := logging.NewOperationError("usecase.inference", requestID, err)
		opLogger.Error("inference failed", zap.Error(wrapped), zap.String("image_hash", imageHash))
		uc.finish(ctx, requestID, subject, imageHash, false, started, wrapped)
		return card.Record{}, wrapped
	}

	rec, err := card.Normalize(reply)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.normalize_reply", requestID, err)
		opLogger.Warn("model reply is not a JSON object",
			zap.Error(wrapped),
			zap.String("reply", logging.Truncate(reply, 1024)),
		)
		uc.finish(ctx, requestID, subject, imageHash, false, started, wrapped)
		return card.Record{}, wrapped
	}

	uc.storeRecord(ctx, requestID, cacheKey, rec)
	uc.finish(ctx, requestID, subject, imageHash, false, started, nil)
	return rec, nil
}

// RecognizeBatch recognizes every reference concurrently. Results keep input
// order; a failing item never affects the others.
func (uc *RecognitionUseCase) RecognizeBatch(ctx context.Context, subject string, refs []string) []ItemResult {
	return uc.runBatch(ctx, len(refs), func(ctx context.Context, i int, requestID string) (card.Record, error) {
		return uc.recognizeRef(ctx, requestID, subject, refs[i])
	})
}

// RecognizeImages is RecognizeBatch for decoded images, e.g. multipart uploads.
func (uc *RecognitionUseCase) RecognizeImages(ctx context.Context, subject string, imgs []imageloader.Image) []ItemResult {
	return uc.runBatch(ctx, len(imgs), func(ctx context.Context, i int, requestID string) (card.Record, error) {
		return uc.recognizeImage(ctx, requestID, subject, imgs[i], time.Now())
	})
}

func (uc *RecognitionUseCase) runBatch(ctx context.Context, n int, recognize func(ctx context.Context, i int, requestID string) (card.Record, error)) []ItemResult {
	results := make([]ItemResult, n)
	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			requestID := uuid.NewString()
			rec, err := recognize(ctx, i, requestID)
			results[i] = newItemResult(i, requestID, rec, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func newItemResult(index int, requestID string, rec card.Record, err error) ItemResult {
	if err != nil {
		return ItemResult{Index: index, RequestID: requestID, Status: StatusOf(err), Error: err.Error()}
	}
	view := card.Coalesce(rec)
	return ItemResult{Index: index, RequestID: requestID, Status: StatusOK, Record: &rec, Card: &view}
}

func (uc *RecognitionUseCase) cachedRecord(ctx context.Context, requestID, key string) (card.Record, bool) {
	if uc.cache == nil {
		return card.Record{}, false
	}
	var raw []byte
	err := uc.withRedisRetry(ctx, requestID, "cache.get.card", func() error {
		value, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			logging.WithOperation(uc.logger, "cache.get.card", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return card.Record{}, false
	}

	var rec card.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		logging.WithOperation(uc.logger, "cache.get.card", requestID).Warn("failed to decode cached card", zap.Error(err))
		return card.Record{}, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return rec, true
}

func (uc *RecognitionUseCase) storeRecord(ctx context.Context, requestID, key string, rec card.Record) {
	if uc.cache == nil {
		return
	}
	serialized, err := json.Marshal(rec)
	if err != nil {
		logging.WithOperation(uc.logger, "cache.set.card", requestID).Error("failed to serialize card", zap.Error(err))
		return
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.card", func() error {
		return uc.cache.Set(ctx, key, serialized, uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.card", requestID).Warn("failed to cache card", zap.Error(err))
	}
}

// finish records metrics and the audit log for one item. Audit failures are only logged.
func (uc *RecognitionUseCase) finish(ctx context.Context, requestID, subject, imageHash string, cacheHit bool, started time.Time, err error) {
	status := StatusOf(err)
	elapsed := time.Since(started)
	metrics.RecognitionsTotal.WithLabelValues(string(status)).Inc()
	metrics.RecognitionDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())

	if uc.repo == nil {
		return
	}
	entry := &repository.RecognitionLog{
		RequestID: requestID,
		Subject:   subject,
		ImageHash: imageHash,
		Model:     uc.engine.Model(),
		Status:    string(status),
		LatencyMs: elapsed.Milliseconds(),
		CacheHit:  cacheHit,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Details = logging.Truncate(err.Error(), 2048)
	}
	if saveErr := uc.repo.SaveLog(ctx, entry); saveErr != nil {
		logging.WithOperation(uc.logger, "usecase.save_log", requestID).Warn("failed to persist recognition log", zap.Error(saveErr))
	}
}

func (uc *RecognitionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
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
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

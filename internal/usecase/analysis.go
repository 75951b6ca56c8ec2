package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/activity-check/internal/classifier"
	"github.com/example/activity-check/internal/labels"
	"github.com/example/activity-check/internal/logging"
	"github.com/example/activity-check/internal/metrics"
)

// MissingImageURLMessage is reported when a request carries no image URL.
const MissingImageURLMessage = "You must provide an image URL"

// ErrMissingImageURL is returned by Analyze for an empty image URL.
var ErrMissingImageURL = errors.New(MissingImageURLMessage)

// Fetcher downloads the image behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Analysis is the outcome of one analyze request.
type Analysis struct {
	RequestID string
	Labels    []labels.Label
	classifier.Result
}

// Option customises an AnalysisUseCase.
type Option func(*AnalysisUseCase)

// WithCache enables the label cache. Entries expire after ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(uc *AnalysisUseCase) {
		uc.cache = cache
		uc.cacheTTL = ttl
	}
}

// WithMetrics records analysis metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *AnalysisUseCase) {
		uc.metrics = m
	}
}

// AnalysisUseCase drives download, label detection and classification.
type AnalysisUseCase struct {
	fetcher        Fetcher
	detector       labels.Detector
	cache          Cache
	cacheTTL       time.Duration
	metrics        *metrics.Metrics
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAnalysisUseCase constructs a new use case instance.
func NewAnalysisUseCase(fetcher Fetcher, detector labels.Detector, logger *zap.Logger, opts ...Option) *AnalysisUseCase {
	uc := &AnalysisUseCase{
		fetcher:        fetcher,
		detector:       detector,
		logger:         logger.Named("analysis_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Analyze downloads imageURL, detects its labels and classifies the activity.
// An empty requestID is replaced by a fresh UUID.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, requestID, imageURL string) (*Analysis, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze", requestID)

	analysis, err := uc.analyze(ctx, requestID, imageURL, opLogger)
	if err != nil {
		kind := logging.KindOf(err)
		uc.metrics.ObserveError(kind.String())
		if kind == logging.KindValidation || kind == logging.KindDownload {
			opLogger.Info("analysis rejected", zap.Error(err), zap.String("kind", kind.String()))
		} else {
			opLogger.Error("analysis failed", zap.Error(err), zap.String("kind", kind.String()))
		}
		return nil, err
	}

	uc.metrics.ObserveAnalysis(analysis.Activity)
	opLogger.Info("analysis complete",
		zap.Int("labels", len(analysis.Labels)),
		zap.String("activity", analysis.Activity),
		zap.Int("risk_level", analysis.Risk))
	return analysis, nil
}

func (uc *AnalysisUseCase) analyze(ctx context.Context, requestID, imageURL string, opLogger *zap.Logger) (*Analysis, error) {
	if imageURL == "" {
		return nil, logging.NewKindError(logging.KindValidation, "usecase.validate", requestID, ErrMissingImageURL)
	}

	started := time.Now()
	image, err := uc.fetcher.Fetch(ctx, imageURL)
	uc.metrics.ObserveDownload(time.Since(started))
	if err != nil {
		return nil, logging.NewOperationError("usecase.fetch_image", requestID, err)
	}
	opLogger.Debug("image downloaded", zap.Int("bytes", len(image)))

	detected, err := uc.detectLabels(ctx, requestID, image)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		RequestID: requestID,
		Labels:    detected,
		Result:    classifier.Classify(detected),
	}, nil
}

func (uc *AnalysisUseCase) detectLabels(ctx context.Context, requestID string, image []byte) ([]labels.Label, error) {
	cacheKey := labelCacheKey(image)
	if cached, ok := uc.lookupLabels(ctx, requestID, cacheKey); ok {
		return cached, nil
	}

	started := time.Now()
	detected, err := uc.detector.DetectLabels(ctx, image)
	uc.metrics.ObserveDetection(time.Since(started))
	if err != nil {
		return nil, logging.NewKindError(logging.KindExternalService, "usecase.detect_labels", requestID, err)
	}
	if detected == nil {
		detected = []labels.Label{}
	}

	uc.storeLabels(ctx, requestID, cacheKey, detected)
	return detected, nil
}

func (uc *AnalysisUseCase) lookupLabels(ctx context.Context, requestID, cacheKey string) ([]labels.Label, bool) {
	if uc.cache == nil {
		return nil, false
	}
	opLogger := logging.WithOperation(uc.logger, "cache.get.labels", requestID)

	var raw string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.labels", func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			uc.metrics.ObserveCacheLookup("miss")
		} else {
			uc.metrics.ObserveCacheLookup("error")
			opLogger.Warn("failed to read label cache", zap.Error(err))
		}
		return nil, false
	}

	var cached []labels.Label
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		uc.metrics.ObserveCacheLookup("error")
		opLogger.Warn("failed to decode cached labels", zap.Error(err))
		return nil, false
	}
	if cached == nil {
		cached = []labels.Label{}
	}
	uc.metrics.ObserveCacheLookup("hit")
	return cached, true
}

func (uc *AnalysisUseCase) storeLabels(ctx context.Context, requestID, cacheKey string, detected []labels.Label) {
	if uc.cache == nil {
		return
	}
	serialized, err := json.Marshal(detected)
	if err != nil {
		logging.WithOperation(uc.logger, "cache.set.labels", requestID).Warn("failed to serialize labels", zap.Error(err))
		return
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.labels", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.labels", requestID).Warn("failed to cache labels", zap.Error(err))
	}
}

// withCacheRetry retries transient cache failures with exponential backoff.
// Permanent failures, including redis.Nil, are returned on first occurrence.
func (uc *AnalysisUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = uc.initialBackoff
	expBackoff.MaxInterval = uc.maxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(uc.retryAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !isTransientError(err) {
			return backoff.Permanent(err)
		}
		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt))
		return err
	}, policy)
	return logging.NewOperationError(operation, requestID, err)
}

func labelCacheKey(image []byte) string {
	sum := sha1.Sum(image)
	return "labels:" + hex.EncodeToString(sum[:])
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

// Package visionclient adapts Google Cloud Vision label detection to labels.Detector.
package visionclient

import (
	"context"
	"errors"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/activity-check/internal/credentials"
	"github.com/example/activity-check/internal/labels"
	"github.com/example/activity-check/internal/logging"
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	breakerName             = "vision-label-detection"
)

// Options tunes the label detection calls.
type Options struct {
	// MaxResults caps the number of labels returned; 0 uses the service default.
	MaxResults int
	// Timeout bounds each call; 0 leaves the caller's context untouched.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive service failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// OnStateChange is notified when the breaker changes state.
	OnStateChange func(from, to gobreaker.State)
}

// annotateFunc sends one batch request to the service.
type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// errNoResponse is returned when the service answers a one-image batch with no result.
var errNoResponse = errors.New("vision returned no annotation response")

// Client calls the Vision API through a circuit breaker. Safe for concurrent use.
type Client struct {
	annotate   annotateFunc
	closeFn    func() error
	breaker    *gobreaker.CircuitBreaker
	maxResults int
	timeout    time.Duration
	logger     *zap.Logger
}

// Dial constructs the Vision client with the resolved credentials. Invalid or
// missing credentials are reported here.
func Dial(ctx context.Context, src *credentials.Source, opts Options, logger *zap.Logger) (*Client, error) {
	client, err := dial(ctx, src.ClientOptions(), opts, logger)
	if err != nil {
		logger.Error("failed to create vision client", zap.Error(err), zap.String("credentials", src.Describe()))
		return nil, err
	}
	return client, nil
}

func dial(ctx context.Context, clientOpts []option.ClientOption, opts Options, logger *zap.Logger) (*Client, error) {
	annotator, err := vision.NewImageAnnotatorClient(ctx, clientOpts...)
	if err != nil {
		return nil, logging.NewKindError(logging.KindExternalService, "visionclient.dial", "", err)
	}

	annotate := func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return annotator.BatchAnnotateImages(ctx, req)
	}
	return newClient(annotate, annotator.Close, opts, logger), nil
}

func newClient(annotate annotateFunc, closeFn func() error, opts Options, logger *zap.Logger) *Client {
	logger = logger.Named("visionclient")

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}
	openTimeout := opts.OpenTimeout
	if openTimeout == 0 {
		openTimeout = defaultOpenTimeout
	}

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if opts.OnStateChange != nil {
				opts.OnStateChange(from, to)
			}
		},
	}

	return &Client{
		annotate:   annotate,
		closeFn:    closeFn,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxResults: opts.MaxResults,
		timeout:    opts.Timeout,
		logger:     logger,
	}
}

// DetectLabels submits the raw image bytes and returns the labels in service order.
func (c *Client) DetectLabels(ctx context.Context, image []byte) ([]labels.Label, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{
				Type:       visionpb.Feature_LABEL_DETECTION,
				MaxResults: int32(c.maxResults),
			}},
		}},
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.annotate(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.GetResponses()) == 0 {
			return nil, errNoResponse
		}
		// Per-image failures (undecodable content and the like) arrive in-band.
		first := resp.GetResponses()[0]
		if first.GetError() != nil {
			return nil, status.ErrorProto(first.GetError())
		}
		return first.GetLabelAnnotations(), nil
	})
	if err != nil {
		c.logger.Debug("label detection failed",
			zap.Error(err),
			zap.String("code", status.Code(err).String()),
			zap.String("breaker_state", c.breaker.State().String()))
		return nil, logging.NewKindError(logging.KindExternalService, "visionclient.detect_labels", "", err)
	}

	annotations, _ := result.([]*visionpb.EntityAnnotation)
	out := make([]labels.Label, 0, len(annotations))
	for _, a := range annotations {
		out = append(out, labels.Label{
			Description: a.GetDescription(),
			Score:       a.GetScore(),
		})
	}
	return out, nil
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// isBreakerSuccess keeps problems with the submitted image, and callers giving up,
// from counting as service failures.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Canceled:
		return true
	default:
		return false
	}
}

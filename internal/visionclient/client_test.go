package visionclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/activity-check/internal/labels"
	"github.com/example/activity-check/internal/logging"
)

type stubAnnotator struct {
	annotations []*visionpb.EntityAnnotation
	imageErr    *status.Status
	empty       bool
	err         error
	calls       int
	lastRequest *visionpb.BatchAnnotateImagesRequest
	hadDeadline bool
}

func (s *stubAnnotator) annotate(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	s.calls++
	s.lastRequest = req
	_, s.hadDeadline = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	if s.empty {
		return &visionpb.BatchAnnotateImagesResponse{}, nil
	}
	resp := &visionpb.AnnotateImageResponse{LabelAnnotations: s.annotations}
	if s.imageErr != nil {
		resp = &visionpb.AnnotateImageResponse{Error: s.imageErr.Proto()}
	}
	return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{resp}}, nil
}

func TestDetectLabelsMapsAnnotations(t *testing.T) {
	stub := &stubAnnotator{annotations: []*visionpb.EntityAnnotation{
		{Description: "Surfing", Score: 0.95},
		{Description: "Wave", Score: 0.9},
	}}
	client := newClient(stub.annotate, nil, Options{MaxResults: 7, Timeout: time.Second}, zap.NewNop())

	got, err := client.DetectLabels(context.Background(), []byte("image"))
	require.NoError(t, err)

	assert.Equal(t, []labels.Label{
		{Description: "Surfing", Score: 0.95},
		{Description: "Wave", Score: 0.9},
	}, got)

	require.Len(t, stub.lastRequest.GetRequests(), 1)
	sent := stub.lastRequest.GetRequests()[0]
	assert.Equal(t, []byte("image"), sent.GetImage().GetContent())
	require.Len(t, sent.GetFeatures(), 1)
	assert.Equal(t, visionpb.Feature_LABEL_DETECTION, sent.GetFeatures()[0].GetType())
	assert.Equal(t, int32(7), sent.GetFeatures()[0].GetMaxResults())
	assert.True(t, stub.hadDeadline)
}

func TestDetectLabelsEmptyResult(t *testing.T) {
	client := newClient((&stubAnnotator{}).annotate, nil, Options{}, zap.NewNop())

	got, err := client.DetectLabels(context.Background(), []byte("image"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDetectLabelsWithoutResponseIsError(t *testing.T) {
	client := newClient((&stubAnnotator{empty: true}).annotate, nil, Options{}, zap.NewNop())

	_, err := client.DetectLabels(context.Background(), []byte("image"))
	assert.ErrorIs(t, err, errNoResponse)
	assert.Equal(t, logging.KindExternalService, logging.KindOf(err))
}

func TestDetectLabelsImageErrorIsReturned(t *testing.T) {
	stub := &stubAnnotator{imageErr: status.New(codes.InvalidArgument, "Bad image data.")}
	client := newClient(stub.annotate, nil, Options{}, zap.NewNop())

	got, err := client.DetectLabels(context.Background(), []byte("not an image"))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, logging.KindExternalService, logging.KindOf(err))
	assert.Equal(t, codes.InvalidArgument, status.Code(logging.Cause(err)))
	assert.Contains(t, err.Error(), "Bad image data.")
}

func TestDetectLabelsWrapsServiceErrors(t *testing.T) {
	stub := &stubAnnotator{err: status.Error(codes.ResourceExhausted, "quota exceeded")}
	client := newClient(stub.annotate, nil, Options{}, zap.NewNop())

	_, err := client.DetectLabels(context.Background(), []byte("image"))
	require.Error(t, err)
	assert.Equal(t, logging.KindExternalService, logging.KindOf(err))
	assert.Contains(t, logging.Cause(err).Error(), "quota exceeded")
	assert.Equal(t, codes.ResourceExhausted, status.Code(logging.Cause(err)))
}

func TestDetectLabelsFailureLoggedAtDebugOnly(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	stub := &stubAnnotator{err: status.Error(codes.PermissionDenied, "billing disabled")}
	client := newClient(stub.annotate, nil, Options{}, zap.New(core))

	_, err := client.DetectLabels(context.Background(), []byte("image"))
	require.Error(t, err)

	entries := logs.FilterMessage("label detection failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "PermissionDenied", entries[0].ContextMap()["code"])
	assert.Equal(t, "closed", entries[0].ContextMap()["breaker_state"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	stub := &stubAnnotator{err: status.Error(codes.Unavailable, "backend down")}
	client := newClient(stub.annotate, nil, Options{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		OnStateChange: func(_, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.DetectLabels(context.Background(), []byte("image"))
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err := client.DetectLabels(context.Background(), []byte("image"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, logging.KindExternalService, logging.KindOf(err))
	assert.Equal(t, 2, stub.calls, "open breaker must not reach the service")
}

func TestBadImagesDoNotTripBreaker(t *testing.T) {
	stub := &stubAnnotator{imageErr: status.New(codes.InvalidArgument, "Bad image data")}
	client := newClient(stub.annotate, nil, Options{FailureThreshold: 1}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := client.DetectLabels(context.Background(), []byte("not an image"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Bad image data")
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
	assert.Equal(t, 3, stub.calls)
}

func TestIsBreakerSuccess(t *testing.T) {
	assert.True(t, isBreakerSuccess(nil))
	assert.True(t, isBreakerSuccess(context.Canceled))
	assert.True(t, isBreakerSuccess(status.Error(codes.InvalidArgument, "bad")))
	assert.False(t, isBreakerSuccess(status.Error(codes.PermissionDenied, "auth")))
	assert.False(t, isBreakerSuccess(errors.New("network")))
}

func TestCloseWithoutConnection(t *testing.T) {
	client := newClient((&stubAnnotator{}).annotate, nil, Options{}, zap.NewNop())
	assert.NoError(t, client.Close())

	closed := false
	client = newClient((&stubAnnotator{}).annotate, func() error { closed = true; return nil }, Options{}, zap.NewNop())
	require.NoError(t, client.Close())
	assert.True(t, closed)
}

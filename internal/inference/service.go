// Package inference serves cognitive load predictions over websocket,
// HTTP and a JSON-codec gRPC service.
package inference

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/loadmodel"
	"github.com/dyra-12/cogniviz/internal/protocol"
)

// Model classifies a validated feature vector.
type Model func(vec []float64, now time.Time) protocol.Prediction

// #region service

// Option configures a Service.
type Option func(*Service)

// WithModel replaces the rule-based model. version is reported by Health.
func WithModel(m Model, version string) Option {
	return func(s *Service) {
		s.model = m
		s.version = version
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// Service validates payloads and runs the model.
type Service struct {
	model   Model
	version string
	now     func() time.Time
	logger  *zap.Logger
	codec   *protocol.Codec
	served  metric.Int64Counter
}

// NewService returns a service backed by the rule-based model.
func NewService(opts ...Option) *Service {
	s := &Service{
		model:   loadmodel.Predict,
		version: loadmodel.ModelVersion,
		now:     time.Now,
		logger:  zap.NewNop(),
		codec:   protocol.MustCodec(),
	}
	for _, o := range opts {
		o(s)
	}
	served, err := otel.Meter("github.com/dyra-12/cogniviz/internal/inference").Int64Counter(
		"cogniviz.inference.predictions",
		metric.WithDescription("Predictions returned by the inference service"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		s.logger.Warn("inference metrics disabled", zap.Error(err))
	}
	s.served = served
	return s
}

// Check reports why p cannot be classified, or nil.
func (s *Service) Check(p protocol.FeaturePayload) error {
	if !features.CompatibleVersion(p.SchemaVersion) {
		return fmt.Errorf("unsupported schema version %q", p.SchemaVersion)
	}
	if !features.Validate(p.Features) {
		return fmt.Errorf("expected %d finite features, got %d", features.Len, len(p.Features))
	}
	return nil
}

// Classify checks p and runs the model.
func (s *Service) Classify(ctx context.Context, p protocol.FeaturePayload) (protocol.Prediction, error) {
	if err := s.Check(p); err != nil {
		return protocol.Prediction{}, err
	}
	pred := s.model(p.Features, s.now())
	if pred.ModelVersion == "" {
		pred.ModelVersion = s.version
	}
	if s.served != nil {
		s.served.Add(ctx, 1, metric.WithAttributes(attribute.String("load_class", pred.LoadClass)))
	}
	s.logger.Debug("prediction",
		zap.String("load_class", pred.LoadClass),
		zap.String("source", p.Source))
	return pred, nil
}

// #endregion service

// #region grpc-methods

// Predict implements InferenceServer.
func (s *Service) Predict(ctx context.Context, in *protocol.FeaturePayload) (*protocol.Prediction, error) {
	pred, err := s.Classify(ctx, *in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &pred, nil
}

// Health implements InferenceServer.
func (s *Service) Health(context.Context, *Empty) (*HealthStatus, error) {
	h := s.health()
	return &h, nil
}

func (s *Service) health() HealthStatus {
	return HealthStatus{
		Status:        "ok",
		ModelLoaded:   s.model != nil,
		MockMode:      s.version == loadmodel.ModelVersion,
		ModelVersion:  s.version,
		SchemaVersion: features.SchemaVersion,
	}
}

// #endregion grpc-methods

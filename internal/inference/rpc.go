package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/dyra-12/cogniviz/internal/protocol"
)

const (
	serviceName   = "cogniviz.inference.v1.Inference"
	jsonCodecName = "json"
	methodPredict = "/" + serviceName + "/Predict"
	methodHealth  = "/" + serviceName + "/Health"
)

// #region codec

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion codec

// #region messages

// Empty is the request of Health.
type Empty struct{}

// HealthStatus mirrors the HTTP /health body.
type HealthStatus struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"modelLoaded"`
	MockMode      bool   `json:"mockMode"`
	ModelVersion  string `json:"modelVersion"`
	SchemaVersion string `json:"schemaVersion"`
}

// InferenceServer is implemented by Service.
type InferenceServer interface {
	Predict(ctx context.Context, in *protocol.FeaturePayload) (*protocol.Prediction, error)
	Health(ctx context.Context, in *Empty) (*HealthStatus, error)
}

// #endregion messages

// #region register

// RegisterInferenceServer exposes impl on server using the JSON codec.
func RegisterInferenceServer(server grpc.ServiceRegistrar, impl InferenceServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*InferenceServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Predict",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &protocol.FeaturePayload{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Predict(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPredict}
					handler := func(ctx context.Context, req any) (any, error) {
						p, ok := req.(*protocol.FeaturePayload)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Predict(ctx, p)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Health",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Health(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHealth}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Health(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams: []grpc.StreamDesc{},
	}, impl)
}

// #endregion register

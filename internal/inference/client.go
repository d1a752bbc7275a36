package inference

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dyra-12/cogniviz/internal/protocol"
)

// #region client-struct
// Client calls the inference service over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// #endregion constructor

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #region predict
// Predict classifies one feature payload.
func (c *Client) Predict(ctx context.Context, p protocol.FeaturePayload) (protocol.Prediction, error) {
	out := &protocol.Prediction{}
	if err := c.conn.Invoke(ctx, methodPredict, &p, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return protocol.Prediction{}, fmt.Errorf("predict rpc: %w", err)
	}
	return *out, nil
}

// #endregion predict

// #region health
// Health reports the service status.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	out := &HealthStatus{}
	if err := c.conn.Invoke(ctx, methodHealth, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return HealthStatus{}, fmt.Errorf("health rpc: %w", err)
	}
	return *out, nil
}

// #endregion health

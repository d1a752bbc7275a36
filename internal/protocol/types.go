package protocol

import "encoding/json"

// ProtocolVersion is stamped on every outbound metrics packet.
const ProtocolVersion = 1

// Message type tags.
const (
	TypeMetrics    = "metrics"
	TypePing       = "ping"
	TypePrediction = "prediction"
	TypeError      = "error"
)

// Load classes.
const (
	LoadLow     = "Low"
	LoadMedium  = "Medium"
	LoadHigh    = "High"
	LoadUnknown = "Unknown"
)

// #region client-messages

// ClientMessage is a frame sent from the telemetry client to the service.
type ClientMessage interface{ clientMessage() }

// FeaturePayload is one worker emission as carried on the wire.
type FeaturePayload struct {
	SchemaVersion string    `json:"schemaVersion"`
	Features      []float64 `json:"features"`
	Source        string    `json:"source,omitempty"`
	EmittedAt     int64     `json:"emittedAt,omitempty"`
	IntervalMs    int64     `json:"intervalMs,omitempty"`
}

// MetricsPacket wraps a FeaturePayload for transmission.
type MetricsPacket struct {
	ID              int64          `json:"id"`
	Type            string         `json:"type"`
	ProtocolVersion int            `json:"protocolVersion"`
	SentAt          int64          `json:"sentAt"`
	Features        FeaturePayload `json:"features"`
}

// Ping is the liveness frame.
type Ping struct {
	Type string `json:"type"`
	At   int64  `json:"at"`
}

func (*MetricsPacket) clientMessage() {}
func (*Ping) clientMessage()          {}

// #endregion client-messages

// #region server-messages

// ServerMessage is a frame sent from the service to the telemetry client.
type ServerMessage interface{ serverMessage() }

// Probabilities per load class. They sum to roughly 1.
type Probabilities struct {
	Low    float64 `json:"Low"`
	Medium float64 `json:"Medium"`
	High   float64 `json:"High"`
}

// Contribution is one SHAP-like feature attribution.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Prediction is a classification result.
type Prediction struct {
	LoadClass     string         `json:"loadClass"`
	Probabilities Probabilities  `json:"probabilities"`
	Shap          []Contribution `json:"shap"`
	Explanation   string         `json:"explanation"`
	ModelVersion  string         `json:"modelVersion"`
	ReceivedAt    int64          `json:"receivedAt"`
}

// PredictionMessage carries a Prediction.
type PredictionMessage struct {
	Type    string     `json:"type"`
	Payload Prediction `json:"payload"`
}

// ErrorMessage reports a rejected frame.
type ErrorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func (*PredictionMessage) serverMessage() {}
func (*ErrorMessage) serverMessage()      {}

// #endregion server-messages

// #region encode

// Encode marshals any protocol frame, filling in its type tag.
func Encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case *MetricsPacket:
		m.Type = TypeMetrics
	case *Ping:
		m.Type = TypePing
	case *PredictionMessage:
		m.Type = TypePrediction
	case *ErrorMessage:
		m.Type = TypeError
	}
	return json.Marshal(msg)
}

// #endregion encode

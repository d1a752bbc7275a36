package inference

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/protocol"
)

// #region handler

// Handler routes /ws/metrics, /predict and /health.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/metrics", s.serveWS)
	mux.HandleFunc("/predict", s.servePredict)
	mux.HandleFunc("/health", s.serveHealth)
	return mux
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// #endregion handler

// #region websocket

func (s *Service) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("websocket closed", zap.Error(err))
			}
			return
		}
		reply := s.Reply(r, data)
		if reply == nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			s.logger.Info("websocket write", zap.Error(err))
			return
		}
	}
}

// Reply computes the frame answering one client frame. Pings get no reply.
func (s *Service) Reply(r *http.Request, data []byte) []byte {
	msg, err := s.codec.DecodeClient(data)
	if err != nil {
		return s.errorFrame(err.Error())
	}
	pkt, ok := msg.(*protocol.MetricsPacket)
	if !ok {
		return nil
	}
	pred, err := s.Classify(r.Context(), pkt.Features)
	if err != nil {
		return s.errorFrame(err.Error())
	}
	out, err := protocol.Encode(&protocol.PredictionMessage{Payload: pred})
	if err != nil {
		return s.errorFrame(err.Error())
	}
	return out
}

func (s *Service) errorFrame(detail string) []byte {
	out, err := protocol.Encode(&protocol.ErrorMessage{Detail: detail})
	if err != nil {
		s.logger.Error("encode error frame", zap.Error(err))
		return nil
	}
	return out
}

// #endregion websocket

// #region http

func (s *Service) servePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorMessage{Type: protocol.TypeError, Detail: "method not allowed"})
		return
	}
	var p protocol.FeaturePayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorMessage{Type: protocol.TypeError, Detail: err.Error()})
		return
	}
	pred, err := s.Classify(r.Context(), p)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorMessage{Type: protocol.TypeError, Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Service) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// #endregion http

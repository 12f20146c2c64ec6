package ingress

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/heardlabs/heard/internal/session"
)

// AudioSink receives raw audio chunks addressed to a session.
type AudioSink interface {
	SendAudio(id string, chunk []byte) error
}

const closeWriteWait = time.Second

// Handler upgrades HTTP requests to WebSocket audio streams and relays
// binary frames into the sink. One connection carries one session,
// picked by the ?session query parameter.
type Handler struct {
	sink     AudioSink
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(sink AudioSink, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Handler{
		sink:   sink,
		logger: logger.WithPrefix("ingress"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()

	h.logger.Info("audio stream opened", "session", id, "remote", r.RemoteAddr)
	defer h.logger.Info("audio stream closed", "session", id)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("audio stream read error", "session", id, "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			h.logger.Warn("ignoring non-binary frame", "session", id, "type", msgType)
			continue
		}

		if err := h.sink.SendAudio(id, payload); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionAlreadyStopped) {
				h.closeFor(conn, id, err)
				return
			}
			// Transport hiccups are the stream's problem to repair;
			// keep the ingress side open.
			h.logger.Warn("audio forward failed", "session", id, "error", err)
		}
	}
}

func (h *Handler) closeFor(conn *websocket.Conn, id string, cause error) {
	h.logger.Warn("closing audio stream", "session", id, "error", cause)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, cause.Error())
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); err != nil {
		h.logger.Debug("close frame write failed", "session", id, "error", err)
	}
}

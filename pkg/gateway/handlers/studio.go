package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-duet/pkg/core/dispatch"
	"github.com/vango-go/vai-duet/pkg/core/display"
	"github.com/vango-go/vai-duet/pkg/gateway/config"
	"github.com/vango-go/vai-duet/pkg/gateway/journal"
	"github.com/vango-go/vai-duet/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-duet/pkg/gateway/live/protocol"
	"github.com/vango-go/vai-duet/pkg/gateway/live/session"
	"github.com/vango-go/vai-duet/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-duet/pkg/gateway/mw"
)

// StudioHandler upgrades /v1/studio and runs one studio session per socket.
type StudioHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Lifecycle    *lifecycle.State
	Sessions     *sessions.Registry
	NewTransport session.TransportFactory
	Media        dispatch.MediaClient
	Materializer display.Materializer
	Journal      journal.Recorder
}

func (h StudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "invalid_request", "method not allowed", "")
		return
	}
	if h.Lifecycle.Draining() {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "server is draining", "")
		return
	}
	if !h.originAllowed(r) {
		writeError(w, r, http.StatusForbidden, "permission_denied", "origin is not allowed", "Origin")
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.WSHandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	sessionID := "st_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger.With("request_id", reqID),
		SessionID: sessionID,
		Config: session.Config{
			SpeakingModel:     h.Config.SpeakingModel,
			SpeakingVoice:     h.Config.SpeakingVoice,
			FunctionModel:     h.Config.FunctionModel,
			NotifyQueueSize:   h.Config.NotifyQueueSize,
			OutboundQueueSize: h.Config.OutboundQueueSize,
			PingInterval:      h.Config.WSPingInterval,
			WriteTimeout:      h.Config.WSWriteTimeout,
		},
		NewTransport: h.NewTransport,
		Media:        h.Media,
		Materializer: h.Materializer,
		Journal:      h.Journal,
	})
	if err != nil {
		logger.Error("studio session init failed", "request_id", reqID, "error", err)
		_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: "internal", Message: "failed to initialize studio session", Close: true})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""), time.Now().Add(2*time.Second))
		return
	}

	unregister := h.Sessions.Register(sessionID, sessions.Handle{Cancel: s.Cancel, Notice: s.Notice})
	defer unregister()

	if err := s.Run(); err != nil {
		logger.Warn("studio session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}
}

func (h StudioHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// Package session runs one studio WebSocket: it owns the duet coordinator,
// dispatcher, notifier and display state for a single page and bridges them
// to the JSON protocol.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"google.golang.org/genai"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/dispatch"
	"github.com/vango-go/vai-duet/pkg/core/display"
	"github.com/vango-go/vai-duet/pkg/core/duet"
	"github.com/vango-go/vai-duet/pkg/core/live"
	"github.com/vango-go/vai-duet/pkg/core/requests"
	"github.com/vango-go/vai-duet/pkg/gateway/journal"
	"github.com/vango-go/vai-duet/pkg/gateway/live/protocol"
)

const (
	connectTimeout  = 15 * time.Second
	teardownTimeout = 5 * time.Second
)

var errBackpressure = errors.New("outbound queue full")

type Config struct {
	SpeakingModel     string
	SpeakingVoice     string
	FunctionModel     string
	NotifyQueueSize   int
	OutboundQueueSize int
	PingInterval      time.Duration
	WriteTimeout      time.Duration
}

// TransportFactory builds the live transport for role. audio receives model
// output audio; it is nil for the function session.
type TransportFactory func(role duet.Role, audio func(live.Chunk)) live.Transport

// GenAITransports returns a factory that opens Gemini Live sessions on client.
func GenAITransports(client *genai.Client, logger *slog.Logger) TransportFactory {
	return func(role duet.Role, audio func(live.Chunk)) live.Transport {
		opts := []live.GenAIOption{live.WithTransportLogger(logger.With("live_session", role.String()))}
		if audio != nil {
			opts = append(opts, live.WithAudioSink(audio))
		}
		return live.NewGenAITransport(client, role.String(), opts...)
	}
}

type Dependencies struct {
	Conn         *websocket.Conn
	Logger       *slog.Logger
	SessionID    string
	Config       Config
	NewTransport TransportFactory
	Media        dispatch.MediaClient
	Materializer display.Materializer
	Journal      journal.Recorder
}

type Session struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	sessionID string
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan []byte
	outboundNormal   chan []byte

	coord      *duet.Coordinator
	notifier   *duet.Notifier
	dispatcher *dispatch.Dispatcher
	display    *display.State
	frames     *frameBuffer
	journal    *journal.Writer
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// shutdowner is implemented by transports that hold resources beyond a
// single connection.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.NewTransport == nil {
		return nil, fmt.Errorf("transport factory is required")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", deps.SessionID)

	cfg := deps.Config
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 256
	}
	if cfg.SpeakingModel == "" {
		cfg.SpeakingModel = duet.DefaultSpeakingModel
	}
	if cfg.FunctionModel == "" {
		cfg.FunctionModel = duet.DefaultFunctionModel
	}
	if cfg.SpeakingVoice == "" {
		cfg.SpeakingVoice = duet.DefaultSpeakingVoice
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:             deps.Conn,
		logger:           logger,
		sessionID:        deps.SessionID,
		cfg:              cfg,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan []byte, 32),
		outboundNormal:   make(chan []byte, cfg.OutboundQueueSize),
		frames:           &frameBuffer{},
		display:          display.New(deps.Materializer),
	}
	if deps.Journal != nil {
		s.journal = journal.NewWriter(deps.Journal, 0, logger)
	}

	speaking := deps.NewTransport(duet.RoleSpeaking, s.forwardAudio)
	function := deps.NewTransport(duet.RoleFunction, nil)
	s.coord = duet.NewCoordinator(
		speaking,
		function,
		duet.SpeakingConfig(cfg.SpeakingModel, cfg.SpeakingVoice),
		duet.FunctionConfig(cfg.FunctionModel),
		logger,
	)
	s.notifier = duet.NewNotifier(speaking, cfg.NotifyQueueSize, logger)
	s.dispatcher = dispatch.New(dispatch.Deps{
		Responder: function,
		Media:     deps.Media,
		Frames:    s.frames,
		Tracker:   requests.NewTracker(nil, nil),
		Display:   s.display,
		Notifier:  s.notifier,
		Observer:  studioEvents{s: s},
		Logger:    logger,
	})
	return s, nil
}

func (s *Session) Run() error {
	defer s.cancel()

	writer := &outboundWriter{
		ws:           s.conn,
		ctx:          s.ctx,
		pingInterval: s.cfg.PingInterval,
		writeTimeout: s.cfg.WriteTimeout,
		priority:     s.outboundPriority,
		normal:       s.outboundNormal,
	}
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run() }()

	var bg conc.WaitGroup
	bg.Go(func() { s.notifier.Run(s.ctx) })
	bg.Go(func() { s.journal.Run(s.ctx) })
	bg.Go(func() { s.coord.RunFrameLoop(s.ctx, s.frames) })
	bg.Go(func() {
		s.coord.Watch(s.ctx, func(role duet.Role, cause error) {
			_ = s.sendStatus(core.NewTransportError(role.String()+" session dropped", cause))
		})
	})
	bg.Go(func() {
		if err := s.dispatcher.Run(s.ctx, s.coord.Function().ToolCalls()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("dispatcher stopped", "error", err)
		}
	})

	s.logger.Info("studio session started")
	_ = s.sendStatus(nil)

	inbound := make(chan inboundFrame, 16)
	go s.readLoop(inbound)

	var runErr error
	writerFinished := false
loop:
	for {
		select {
		case <-s.ctx.Done():
			break loop
		case err := <-writerDone:
			writerFinished = true
			runErr = err
			break loop
		case in, ok := <-inbound:
			if !ok {
				break loop
			}
			if in.err != nil {
				if !websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					runErr = in.err
				}
				break loop
			}
			if in.messageType != websocket.TextMessage {
				_ = s.sendError("unsupported", "binary frames are not supported", "", false)
				continue
			}
			s.handleMessage(in.data)
		}
	}

	s.cancel()
	s.teardown()
	bg.Wait()
	if writerFinished {
		_ = s.conn.Close()
	} else {
		<-writerDone
	}
	s.logger.Info("studio session ended", "error", runErr)
	return runErr
}

// Cancel ends the session. Run returns once teardown finishes.
func (s *Session) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// Notice sends a non-fatal error frame, e.g. a drain warning.
func (s *Session) Notice(code, message string) error {
	if s == nil {
		return nil
	}
	return s.sendError(code, message, "", false)
}

func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := s.coord.Disconnect(ctx); err != nil {
		s.logger.Warn("disconnect on teardown failed", "error", err)
	}
	for _, t := range []live.Transport{s.coord.Speaking(), s.coord.Function()} {
		if sd, ok := t.(shutdowner); ok {
			_ = sd.Shutdown(ctx)
		}
	}
	s.display.Close()
}

func (s *Session) handleMessage(data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			_ = s.sendError(de.Code, de.Message, de.Param, false)
			return
		}
		_ = s.sendError("bad_request", err.Error(), "", false)
		return
	}

	switch m := msg.(type) {
	case protocol.ClientConnect:
		ctx, cancel := context.WithTimeout(s.ctx, connectTimeout)
		err := s.coord.Connect(ctx)
		cancel()
		_ = s.sendStatus(err)
	case protocol.ClientDisconnect:
		ctx, cancel := context.WithTimeout(s.ctx, teardownTimeout)
		err := s.coord.Disconnect(ctx)
		cancel()
		_ = s.sendStatus(err)
	case protocol.ClientMute:
		s.coord.SetMuted(m.Muted)
		_ = s.sendStatus(nil)
	case protocol.ClientAudio:
		chunk, ok := s.decodeChunk(m.MIMEType, m.DataB64)
		if !ok {
			return
		}
		if err := s.coord.SendAudio(chunk); err != nil {
			s.logger.Debug("audio forward failed", "error", err)
		}
	case protocol.ClientFrame:
		chunk, ok := s.decodeChunk(m.MIMEType, m.DataB64)
		if !ok {
			return
		}
		s.frames.Put(chunk)
	}
}

func (s *Session) decodeChunk(mimeType, dataB64 string) (live.Chunk, bool) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(dataB64))
	if err != nil || len(data) == 0 {
		_ = s.sendError("bad_request", "data_b64 is not valid base64", "data_b64", false)
		return live.Chunk{}, false
	}
	return live.Chunk{MIMEType: strings.TrimSpace(mimeType), Data: data}, true
}

func (s *Session) forwardAudio(chunk live.Chunk) {
	err := s.sendJSON(protocol.ServerAudio{
		Type:     "audio",
		MIMEType: chunk.MIMEType,
		DataB64:  base64.StdEncoding.EncodeToString(chunk.Data),
	})
	if err != nil {
		s.logger.Debug("model audio dropped", "error", err)
	}
}

func (s *Session) sendStatus(cause error) error {
	msg := protocol.ServerStatus{
		Type:      "status",
		SessionID: s.sessionID,
		Connected: s.coord.Connected(),
		Muted:     s.coord.Muted(),
	}
	if cause != nil {
		msg.Error = core.MessageOf(cause)
	}
	return s.sendJSONPriority(msg)
}

func (s *Session) sendError(code, message, param string, close bool) error {
	return s.sendJSONPriority(protocol.ServerError{Type: "error", Code: code, Message: message, Param: param, Close: close})
}

func (s *Session) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.outboundNormal <- payload:
		return nil
	default:
		return errBackpressure
	}
}

// sendJSONPriority evicts the oldest priority frames when the queue is full.
func (s *Session) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- payload:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	return errBackpressure
}

func (s *Session) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

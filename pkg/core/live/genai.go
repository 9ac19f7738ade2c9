package live

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/tools"
)

const toolCallQueueSize = 16

// liveSession is the subset of *genai.Session the transport uses.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendClientContent(input genai.LiveClientContentInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type dialFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)

// GenAITransport implements Transport on a Gemini Live session.
type GenAITransport struct {
	name    string
	logger  *slog.Logger
	dial    dialFunc
	onAudio func(Chunk)

	calls chan ToolCallBatch
	drops chan error
	stop  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	cfg     Config
	session liveSession
	done    chan struct{}
	// closing is closed when Disconnect starts so a blocked delivery gives up.
	closing chan struct{}

	// genai sessions write to a single websocket; writes must not overlap.
	sendMu sync.Mutex
}

// GenAIOption configures a GenAITransport.
type GenAIOption func(*GenAITransport)

// WithAudioSink receives inline audio emitted by the model.
func WithAudioSink(fn func(Chunk)) GenAIOption {
	return func(t *GenAITransport) { t.onAudio = fn }
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(logger *slog.Logger) GenAIOption {
	return func(t *GenAITransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewGenAITransport creates a transport that dials through client.Live. name
// labels log lines ("speaking", "function").
func NewGenAITransport(client *genai.Client, name string, opts ...GenAIOption) *GenAITransport {
	return newGenAITransport(name, func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
		s, err := client.Live.Connect(ctx, model, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, opts...)
}

func newGenAITransport(name string, dial dialFunc, opts ...GenAIOption) *GenAITransport {
	t := &GenAITransport{
		name:   name,
		logger: slog.Default(),
		dial:   dial,
		calls:  make(chan ToolCallBatch, toolCallQueueSize),
		drops:  make(chan error, 1),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("session", name)
	return t
}

func (t *GenAITransport) Configure(cfg Config) {
	t.mu.Lock()
	t.cfg = cfg.Clone()
	t.mu.Unlock()
}

func (t *GenAITransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		return nil
	}
	if strings.TrimSpace(t.cfg.Model) == "" {
		return core.NewTransportError(t.name+" session has no model configured", nil)
	}

	sess, err := t.dial(ctx, t.cfg.Model, connectConfig(t.cfg))
	if err != nil {
		return core.NewTransportError("connect "+t.name+" session", err)
	}
	done := make(chan struct{})
	closing := make(chan struct{})
	t.session = sess
	t.done = done
	t.closing = closing
	go t.receiveLoop(sess, done, closing)

	t.logger.Info("live session connected", "model", t.cfg.Model)
	return nil
}

func (t *GenAITransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	sess, done, closing := t.session, t.done, t.closing
	t.session, t.done, t.closing = nil, nil, nil
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	close(closing)

	t.sendMu.Lock()
	err := sess.Close()
	t.sendMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil {
		return core.NewTransportError("close "+t.name+" session", err)
	}
	t.logger.Info("live session disconnected")
	return nil
}

// Shutdown disconnects and stops delivering tool calls.
func (t *GenAITransport) Shutdown(ctx context.Context) error {
	err := t.Disconnect(ctx)
	t.once.Do(func() { close(t.stop) })
	return err
}

func (t *GenAITransport) ToolCalls() <-chan ToolCallBatch {
	return t.calls
}

func (t *GenAITransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil
}

func (t *GenAITransport) Drops() <-chan error {
	return t.drops
}

func (t *GenAITransport) SendRealtimeInput(chunk Chunk) error {
	return t.send("send realtime input", func(s liveSession) error {
		return s.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{Data: chunk.Data, MIMEType: chunk.MIMEType},
		})
	})
}

func (t *GenAITransport) SendText(text string) error {
	return t.send("send text", func(s liveSession) error {
		return s.SendClientContent(genai.LiveClientContentInput{
			Turns: []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}},
		})
	})
}

func (t *GenAITransport) SendToolResponse(batch ToolResponseBatch) error {
	resps := make([]*genai.FunctionResponse, 0, len(batch.Responses))
	for _, r := range batch.Responses {
		resps = append(resps, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return t.send("send tool response", func(s liveSession) error {
		return s.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: resps})
	})
}

func (t *GenAITransport) send(op string, fn func(liveSession) error) error {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	if sess == nil {
		return core.NewTransportError(t.name+" session not connected", nil)
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if err := fn(sess); err != nil {
		return core.NewTransportError(op+" on "+t.name+" session", err)
	}
	return nil
}

func (t *GenAITransport) receiveLoop(sess liveSession, done, closing chan struct{}) {
	defer close(done)
	for {
		msg, err := sess.Receive()
		if err != nil {
			t.mu.Lock()
			dropped := t.session == sess
			if dropped {
				t.session, t.done, t.closing = nil, nil, nil
			}
			t.mu.Unlock()
			if dropped {
				_ = sess.Close()
				t.logger.Warn("live session receive failed", "error", err)
				select {
				case t.drops <- core.NewTransportError(t.name+" session dropped", err):
				default:
				}
			}
			return
		}
		if msg == nil {
			continue
		}
		if msg.ToolCall != nil {
			t.deliver(toolCallBatch(msg.ToolCall), closing)
		}
		if msg.ServerContent != nil && msg.ServerContent.ModelTurn != nil && t.onAudio != nil {
			for _, part := range msg.ServerContent.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				t.onAudio(Chunk{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data})
			}
		}
	}
}

func (t *GenAITransport) deliver(batch ToolCallBatch, closing <-chan struct{}) {
	if len(batch.Calls) == 0 {
		return
	}
	select {
	case t.calls <- batch:
	case <-t.stop:
	case <-closing:
		t.logger.Warn("tool call batch dropped on disconnect", "calls", len(batch.Calls))
	}
}

func toolCallBatch(tc *genai.LiveServerToolCall) ToolCallBatch {
	batch := ToolCallBatch{Calls: make([]ToolCall, 0, len(tc.FunctionCalls))}
	for _, fc := range tc.FunctionCalls {
		if fc == nil {
			continue
		}
		batch.Calls = append(batch.Calls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	return batch
}

func connectConfig(cfg Config) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{}
	for _, m := range cfg.Modalities {
		out.ResponseModalities = append(out.ResponseModalities, genai.Modality(m))
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, d := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schemaToGenAI(d.Parameters),
			})
		}
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if strings.TrimSpace(cfg.Voice) != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	return out
}

func schemaToGenAI(s *tools.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    append([]string(nil), s.Required...),
		Enum:        append([]string(nil), s.Enum...),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			prop := prop
			out.Properties[name] = schemaToGenAI(&prop)
		}
	}
	return out
}

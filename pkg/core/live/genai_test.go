package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/tools"
)

type fakeSession struct {
	mu       sync.Mutex
	realtime []genai.LiveRealtimeInput
	content  []genai.LiveClientContentInput
	toolResp []genai.LiveToolResponseInput
	closed   bool

	inbox chan *genai.LiveServerMessage
	quit  chan struct{}
	once  sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{inbox: make(chan *genai.LiveServerMessage, 8), quit: make(chan struct{})}
}

func (s *fakeSession) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realtime = append(s.realtime, in)
	return nil
}

func (s *fakeSession) SendClientContent(in genai.LiveClientContentInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = append(s.content, in)
	return nil
}

func (s *fakeSession) SendToolResponse(in genai.LiveToolResponseInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolResp = append(s.toolResp, in)
	return nil
}

func (s *fakeSession) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-s.quit:
		return nil, io.EOF
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
	})
	return nil
}

func newTestTransport(t *testing.T, sess *fakeSession, opts ...GenAIOption) (*GenAITransport, *[]*genai.LiveConnectConfig) {
	t.Helper()
	var dialed []*genai.LiveConnectConfig
	tr := newGenAITransport("function", func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
		if model != "test-model" {
			t.Fatalf("model = %q", model)
		}
		dialed = append(dialed, cfg)
		return sess, nil
	}, opts...)
	tr.Configure(Config{Model: "test-model", Modalities: []Modality{ModalityText}})
	return tr, &dialed
}

func TestGenAITransportConnectIsIdempotent(t *testing.T) {
	sess := newFakeSession()
	tr, dialed := newTestTransport(t, sess)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if len(*dialed) != 1 {
		t.Fatalf("dialed %d times, want 1", len(*dialed))
	}
	if err := tr.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !sess.closed {
		t.Fatalf("session not closed")
	}
	if err := tr.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

func TestGenAITransportRequiresModel(t *testing.T) {
	tr := newGenAITransport("speaking", func(context.Context, string, *genai.LiveConnectConfig) (liveSession, error) {
		t.Fatalf("dial should not be called")
		return nil, nil
	})
	err := tr.Connect(context.Background())
	if !core.IsType(err, core.ErrTransportFailed) {
		t.Fatalf("err = %v, want transport_failed", err)
	}
}

func TestGenAITransportDialFailure(t *testing.T) {
	tr := newGenAITransport("speaking", func(context.Context, string, *genai.LiveConnectConfig) (liveSession, error) {
		return nil, errors.New("handshake refused")
	})
	tr.Configure(Config{Model: "m"})
	err := tr.Connect(context.Background())
	if !core.IsType(err, core.ErrTransportFailed) {
		t.Fatalf("err = %v, want transport_failed", err)
	}
	if err := tr.SendText("hi"); !core.IsType(err, core.ErrTransportFailed) {
		t.Fatalf("SendText err = %v", err)
	}
}

func TestGenAITransportSendsBeforeConnectFail(t *testing.T) {
	tr, _ := newTestTransport(t, newFakeSession())
	if err := tr.SendRealtimeInput(Chunk{MIMEType: "audio/pcm", Data: []byte{1}}); err == nil {
		t.Fatalf("expected error before connect")
	}
}

func TestGenAITransportSendShapes(t *testing.T) {
	sess := newFakeSession()
	tr, _ := newTestTransport(t, sess)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Shutdown(context.Background())

	if err := tr.SendRealtimeInput(Chunk{MIMEType: "image/jpeg", Data: []byte("jpg")}); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}
	if err := tr.SendText("[SYSTEM NOTIFICATION] done"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	err := tr.SendToolResponse(ToolResponseBatch{Responses: []ToolResponse{
		{ID: "c1", Name: "show_media", Response: map[string]any{"success": true}},
		{ID: "c2", Name: "hide_media", Response: map[string]any{"success": true}},
	}})
	if err != nil {
		t.Fatalf("SendToolResponse: %v", err)
	}

	if got := sess.realtime[0].Media; got == nil || got.MIMEType != "image/jpeg" || string(got.Data) != "jpg" {
		t.Fatalf("realtime media = %+v", got)
	}
	turn := sess.content[0].Turns[0]
	if turn.Role != "user" || turn.Parts[0].Text != "[SYSTEM NOTIFICATION] done" {
		t.Fatalf("content turn = %+v", turn)
	}
	if len(sess.toolResp) != 1 {
		t.Fatalf("tool response sends = %d, want 1", len(sess.toolResp))
	}
	resps := sess.toolResp[0].FunctionResponses
	if len(resps) != 2 || resps[0].ID != "c1" || resps[1].Name != "hide_media" {
		t.Fatalf("function responses = %+v", resps)
	}
}

func TestGenAITransportDeliversToolCallsAndAudio(t *testing.T) {
	sess := newFakeSession()
	var mu sync.Mutex
	var audio []Chunk
	tr, _ := newTestTransport(t, sess, WithAudioSink(func(c Chunk) {
		mu.Lock()
		audio = append(audio, c)
		mu.Unlock()
	}))
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Shutdown(context.Background())

	sess.inbox <- &genai.LiveServerMessage{ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
		{ID: "a", Name: "render_chart", Args: map[string]any{"spec": "{}"}},
		nil,
		{ID: "b", Name: "hide_media"},
	}}}
	sess.inbox <- &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{ModelTurn: &genai.Content{Parts: []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
		{Text: "ignored"},
	}}}}

	select {
	case batch := <-tr.ToolCalls():
		if len(batch.Calls) != 2 || batch.Calls[0].ID != "a" || batch.Calls[1].Name != "hide_media" {
			t.Fatalf("batch = %+v", batch)
		}
		if batch.Calls[0].Args["spec"] != "{}" {
			t.Fatalf("args = %+v", batch.Calls[0].Args)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for tool calls")
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(audio)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audio chunks = %d, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if audio[0].MIMEType != "audio/pcm;rate=24000" {
		t.Fatalf("audio mime = %q", audio[0].MIMEType)
	}
}

func TestGenAITransportReceiveErrorDropsSession(t *testing.T) {
	sess := newFakeSession()
	tr, dialed := newTestTransport(t, sess)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess.Close()

	deadline := time.Now().Add(time.Second)
	for tr.SendText("x") == nil {
		if time.Now().After(deadline) {
			t.Fatalf("session still usable after receive failure")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if tr.Connected() {
		t.Fatalf("Connected() = true after receive failure")
	}
	select {
	case err := <-tr.Drops():
		if !core.IsType(err, core.ErrTransportFailed) {
			t.Fatalf("drop err = %v, want transport_failed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("drop not reported")
	}

	next := newFakeSession()
	tr.dial = func(context.Context, string, *genai.LiveConnectConfig) (liveSession, error) { return next, nil }
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer tr.Shutdown(context.Background())
	if len(*dialed) != 1 {
		t.Fatalf("dialed = %d", len(*dialed))
	}
}

func TestGenAITransportDisconnectDoesNotReportDrop(t *testing.T) {
	tr, _ := newTestTransport(t, newFakeSession())
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !tr.Connected() {
		t.Fatalf("Connected() = false after Connect")
	}
	if err := tr.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	select {
	case err := <-tr.Drops():
		t.Fatalf("unexpected drop: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGenAITransportDisconnectUnblocksFullToolCallQueue(t *testing.T) {
	sess := newFakeSession()
	tr, _ := newTestTransport(t, sess)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < toolCallQueueSize+1; i++ {
		sess.inbox <- &genai.LiveServerMessage{ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "c", Name: "hide_media"},
		}}}
	}
	deadline := time.Now().Add(time.Second)
	for len(tr.ToolCalls()) < toolCallQueueSize || len(sess.inbox) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue = %d, inbox = %d", len(tr.ToolCalls()), len(sess.inbox))
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect with a full queue: %v", err)
	}
}

func TestConnectConfig(t *testing.T) {
	cfg := connectConfig(Config{
		Model:             "m",
		Modalities:        []Modality{ModalityAudio},
		SystemInstruction: "narrate",
		Voice:             "Puck",
		Tools:             tools.Declarations(),
	})

	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Fatalf("modalities = %v", cfg.ResponseModalities)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "narrate" {
		t.Fatalf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Fatalf("voice not set")
	}
	decls := cfg.Tools[0].FunctionDeclarations
	if len(decls) != len(tools.Declarations()) {
		t.Fatalf("declarations = %d", len(decls))
	}
	var show *genai.FunctionDeclaration
	for _, d := range decls {
		if d.Name == tools.NameShowMedia {
			show = d
		}
	}
	if show == nil {
		t.Fatalf("show_media not declared")
	}
	if show.Parameters.Type != genai.TypeObject {
		t.Fatalf("type = %q", show.Parameters.Type)
	}
	kind := show.Parameters.Properties["kind"]
	if kind == nil || kind.Type != genai.TypeString || len(kind.Enum) != 2 {
		t.Fatalf("kind schema = %+v", kind)
	}
}

func TestConnectConfigMinimal(t *testing.T) {
	cfg := connectConfig(Config{Model: "m"})
	if cfg.SystemInstruction != nil || cfg.Tools != nil || cfg.SpeechConfig != nil {
		t.Fatalf("unexpected fields: %+v", cfg)
	}
}

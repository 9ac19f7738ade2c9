package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-duet/internal/testutil"
	"github.com/vango-go/vai-duet/pkg/core/duet"
	"github.com/vango-go/vai-duet/pkg/core/live"
	"github.com/vango-go/vai-duet/pkg/core/media"
	"github.com/vango-go/vai-duet/pkg/core/requests"
)

type stubMedia struct{}

func (stubMedia) GenerateVideo(context.Context, string, *media.Image) (media.VideoResult, error) {
	return media.VideoResult{SourceURI: "https://example.test/v.mp4"}, nil
}

func (stubMedia) GenerateImage(context.Context, string, *media.Image) (media.ImageArtifact, bool, error) {
	return media.ImageArtifact{DataURI: "data:image/png;base64,iVBO", MIMEType: "image/png", Size: 3}, true, nil
}

func (stubMedia) GenerateSpeech(context.Context, string) (media.Speech, error) {
	return media.Speech{}, errors.New("speech unavailable")
}

type memJournal struct {
	recs chan requests.Record
}

func (j *memJournal) Record(_ context.Context, _ string, rec requests.Record) error {
	j.recs <- rec
	return nil
}

type studioHarness struct {
	t        *testing.T
	speaking *testutil.FakeTransport
	function *testutil.FakeTransport
	journal  *memJournal
	conn     *websocket.Conn
	done     chan error
	audio    chan func(live.Chunk)
}

func newStudioHarness(t *testing.T, setup ...func(*studioHarness)) *studioHarness {
	t.Helper()
	h := &studioHarness{
		t:        t,
		speaking: testutil.NewFakeTransport(),
		function: testutil.NewFakeTransport(),
		journal:  &memJournal{recs: make(chan requests.Record, 16)},
		done:     make(chan error, 1),
		audio:    make(chan func(live.Chunk), 1),
	}
	for _, fn := range setup {
		fn(h)
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s, err := New(Dependencies{
			Conn:      conn,
			Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			SessionID: "sess_test",
			Config:    Config{PingInterval: time.Hour, WriteTimeout: time.Second},
			NewTransport: func(role duet.Role, audio func(live.Chunk)) live.Transport {
				if role == duet.RoleSpeaking {
					h.audio <- audio
					return h.speaking
				}
				return h.function
			},
			Media:   stubMedia{},
			Journal: h.journal,
		})
		if err != nil {
			t.Errorf("New() error: %v", err)
			return
		}
		h.done <- s.Run()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	h.conn = conn
	t.Cleanup(func() { _ = conn.Close() })
	return h
}

func (h *studioHarness) send(v any) {
	h.t.Helper()
	if err := h.conn.WriteJSON(v); err != nil {
		h.t.Fatalf("write: %v", err)
	}
}

// next reads frames until one of the given type arrives.
func (h *studioHarness) next(typ string) map[string]any {
	h.t.Helper()
	_ = h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			h.t.Fatalf("read waiting for %q: %v", typ, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			h.t.Fatalf("decode %s: %v", data, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestStudioConnectAudioAndMute(t *testing.T) {
	h := newStudioHarness(t)

	st := h.next("status")
	if st["connected"] != false || st["session_id"] != "sess_test" {
		t.Fatalf("initial status=%v", st)
	}

	h.send(map[string]any{"type": "connect"})
	st = h.next("status")
	if st["connected"] != true {
		t.Fatalf("status after connect=%v", st)
	}
	if !h.speaking.Connected() || !h.function.Connected() {
		t.Fatalf("both transports should be connected")
	}
	cfgs := h.speaking.ConfigsSnapshot()
	if len(cfgs) == 0 || cfgs[0].Modalities[0] != live.ModalityAudio {
		t.Fatalf("speaking config=%+v", cfgs)
	}

	h.send(map[string]any{"type": "audio", "mime_type": "audio/pcm;rate=16000", "data_b64": b64("pcm")})
	h.send(map[string]any{"type": "mute", "muted": true})
	st = h.next("status")
	if st["muted"] != true {
		t.Fatalf("status after mute=%v", st)
	}
	h.send(map[string]any{"type": "audio", "mime_type": "audio/pcm;rate=16000", "data_b64": b64("dropped")})
	h.send(map[string]any{"type": "mute", "muted": false})
	h.next("status")

	for _, ft := range []*testutil.FakeTransport{h.speaking, h.function} {
		got := ft.RealtimeSnapshot()
		if len(got) != 1 || string(got[0].Data) != "pcm" {
			t.Fatalf("realtime=%+v, want only the unmuted chunk", got)
		}
	}

	h.send(map[string]any{"type": "disconnect"})
	st = h.next("status")
	if st["connected"] != false {
		t.Fatalf("status after disconnect=%v", st)
	}
}

func TestStudioDroppedSessionReportsDisconnected(t *testing.T) {
	h := newStudioHarness(t)
	h.next("status")
	h.send(map[string]any{"type": "connect"})
	if st := h.next("status"); st["connected"] != true {
		t.Fatalf("status after connect=%v", st)
	}

	h.function.Drop(errors.New("socket reset"))
	st := h.next("status")
	if st["connected"] != false {
		t.Fatalf("status after drop=%v", st)
	}
	if msg, _ := st["error"].(string); !strings.Contains(msg, "function session dropped") {
		t.Fatalf("status error=%q", msg)
	}
	if h.speaking.Connected() {
		t.Fatalf("speaking session left open after function drop")
	}

	h.send(map[string]any{"type": "connect"})
	if st := h.next("status"); st["connected"] != true {
		t.Fatalf("status after reconnect=%v", st)
	}
}

func TestStudioConnectFailureReportsError(t *testing.T) {
	h := newStudioHarness(t, func(h *studioHarness) {
		h.function.ConnectErr = errors.New("quota exceeded")
	})
	h.next("status")

	h.send(map[string]any{"type": "connect"})
	st := h.next("status")
	if st["connected"] != false {
		t.Fatalf("status=%v, want disconnected", st)
	}
	if msg, _ := st["error"].(string); msg == "" {
		t.Fatalf("status=%v, want error text", st)
	}
	if h.speaking.Connected() {
		t.Fatalf("speaking session should be rolled back")
	}
}

func TestStudioRejectsBadFrames(t *testing.T) {
	h := newStudioHarness(t)
	h.next("status")

	h.send(map[string]any{"type": "dance"})
	e := h.next("error")
	if e["code"] != "bad_request" || e["param"] != "type" {
		t.Fatalf("error=%v", e)
	}

	h.send(map[string]any{"type": "frame", "mime_type": "image/jpeg", "data_b64": "!!"})
	e = h.next("error")
	if e["param"] != "data_b64" {
		t.Fatalf("error=%v", e)
	}

	if err := h.conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	e = h.next("error")
	if e["code"] != "unsupported" {
		t.Fatalf("error=%v", e)
	}
}

func TestStudioToolCallFlow(t *testing.T) {
	h := newStudioHarness(t)
	h.next("status")
	h.send(map[string]any{"type": "connect"})
	h.next("status")

	h.function.Calls <- live.ToolCallBatch{Calls: []live.ToolCall{
		{ID: "c1", Name: "generate_image", Args: map[string]any{"prompt": "a lighthouse"}},
	}}

	pending := h.next("request")
	if pending["status"] != "pending" || pending["tool"] != "generate_image" {
		t.Fatalf("first request frame=%v", pending)
	}
	ready := h.next("request")
	if ready["status"] != "ready" || ready["request_id"] != pending["request_id"] {
		t.Fatalf("second request frame=%v", ready)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(h.function.ToolResponsesSnapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no tool response sent")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp := h.function.ToolResponsesSnapshot()[0].Responses
	if len(resp) != 1 || resp[0].ID != "c1" || resp[0].Response["status"] != "ready" {
		t.Fatalf("tool response=%+v", resp)
	}

	var journaled []requests.Status
	for len(journaled) < 2 {
		select {
		case rec := <-h.journal.recs:
			journaled = append(journaled, rec.Status)
		case <-time.After(3 * time.Second):
			t.Fatalf("journal=%v, want pending and ready", journaled)
		}
	}

	h.function.Calls <- live.ToolCallBatch{Calls: []live.ToolCall{
		{ID: "c2", Name: "show_media", Args: map[string]any{"kind": "image"}},
	}}
	disp := h.next("display")
	if disp["kind"] != "image" || disp["visible"] != true || disp["url"] != "data:image/png;base64,iVBO" {
		t.Fatalf("display frame=%v", disp)
	}

	for time.Now().Before(deadline) {
		texts := h.speaking.TextsSnapshot()
		if len(texts) >= 3 {
			for _, text := range texts {
				if !strings.HasPrefix(text, duet.NotificationPrefix) {
					t.Fatalf("notification %q missing prefix", text)
				}
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notifications=%v, want started, ready and shown", h.speaking.TextsSnapshot())
}

func TestStudioForwardsModelAudio(t *testing.T) {
	h := newStudioHarness(t)
	h.next("status")
	sink := <-h.audio
	sink(live.Chunk{MIMEType: "audio/pcm;rate=24000", Data: []byte("pcm")})
	a := h.next("audio")
	if a["mime_type"] != "audio/pcm;rate=24000" || a["data_b64"] != b64("pcm") {
		t.Fatalf("audio frame=%v", a)
	}
}

func TestStudioCloseTearsDown(t *testing.T) {
	h := newStudioHarness(t)
	h.next("status")
	h.send(map[string]any{"type": "connect"})
	h.next("status")

	_ = h.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not end")
	}
	if h.speaking.Connected() || h.function.Connected() {
		t.Fatalf("transports still connected after close")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Dependencies{}); err == nil {
		t.Fatalf("New() without conn should fail")
	}
}

package session

import (
	"encoding/base64"

	"github.com/vango-go/vai-duet/pkg/core/display"
	"github.com/vango-go/vai-duet/pkg/core/media"
	"github.com/vango-go/vai-duet/pkg/core/requests"
	"github.com/vango-go/vai-duet/pkg/gateway/live/protocol"
)

// studioEvents turns dispatcher callbacks into page frames.
type studioEvents struct {
	s *Session
}

func (e studioEvents) ChartRendered(spec any) {
	e.send("chart", protocol.ServerChart{Type: "chart", Spec: spec})
}

func (e studioEvents) DisplayChanged(v display.View) {
	e.send("display", protocol.ServerDisplay{Type: "display", Kind: string(v.Kind), URL: v.URL, Visible: v.Visible})
}

func (e studioEvents) RequestUpdated(rec requests.Record) {
	e.s.journal.Enqueue(e.s.sessionID, rec)
	e.send("request", protocol.ServerRequest{
		Type:      "request",
		RequestID: rec.ID,
		Tool:      rec.Tool,
		Status:    string(rec.Status),
		Error:     rec.Error,
	})
}

func (e studioEvents) SpeechReady(requestID string, sp media.Speech) {
	e.send("speech", protocol.ServerSpeech{
		Type:      "speech",
		RequestID: requestID,
		MIMEType:  sp.MIMEType,
		DataB64:   base64.StdEncoding.EncodeToString(sp.Data),
	})
}

func (e studioEvents) send(kind string, v any) {
	if err := e.s.sendJSON(v); err != nil {
		e.s.logger.Warn("studio event dropped", "event", kind, "error", err)
	}
}

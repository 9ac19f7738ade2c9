package session

import (
	"sync"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/live"
	"github.com/vango-go/vai-duet/pkg/core/media"
)

// frameBuffer holds the most recent webcam frame the page sent. It feeds the
// periodic frame loop and webcam-seeded generation.
type frameBuffer struct {
	mu     sync.Mutex
	latest live.Chunk
	ok     bool
}

func (b *frameBuffer) Put(chunk live.Chunk) {
	b.mu.Lock()
	b.latest = live.Chunk{MIMEType: chunk.MIMEType, Data: append([]byte(nil), chunk.Data...)}
	b.ok = true
	b.mu.Unlock()
}

func (b *frameBuffer) LatestFrame() (live.Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.ok
}

func (b *frameBuffer) CaptureFrame() (media.Image, error) {
	frame, ok := b.LatestFrame()
	if !ok || len(frame.Data) == 0 {
		return media.Image{}, core.NewCaptureFailedError("no webcam frame captured yet")
	}
	return media.Image{Bytes: append([]byte(nil), frame.Data...), MIMEType: frame.MIMEType}, nil
}

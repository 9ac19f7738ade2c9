// Package dispatch resolves tool-call batches from the function session.
//
// Every call in a batch runs concurrently. The batch is answered with exactly
// one tool response once every call has settled, whether it succeeded, failed
// or panicked. Batches are handled one at a time.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/vango-go/vai-duet/pkg/core/display"
	"github.com/vango-go/vai-duet/pkg/core/live"
	"github.com/vango-go/vai-duet/pkg/core/media"
	"github.com/vango-go/vai-duet/pkg/core/requests"
)

// ResponseSender delivers the combined answer to a batch.
type ResponseSender interface {
	SendToolResponse(batch live.ToolResponseBatch) error
}

// MediaClient runs generation operations.
type MediaClient interface {
	GenerateVideo(ctx context.Context, prompt string, image *media.Image) (media.VideoResult, error)
	GenerateImage(ctx context.Context, prompt string, image *media.Image) (media.ImageArtifact, bool, error)
	GenerateSpeech(ctx context.Context, text string) (media.Speech, error)
}

// FrameCapturer grabs the current webcam frame.
type FrameCapturer interface {
	CaptureFrame() (media.Image, error)
}

// Notifier forwards status text to the speaking session.
type Notifier interface {
	Notify(msg string)
}

// Observer receives UI-facing events. Calls may arrive from any goroutine.
type Observer interface {
	ChartRendered(spec any)
	DisplayChanged(view display.View)
	RequestUpdated(rec requests.Record)
	SpeechReady(requestID string, speech media.Speech)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ChartRendered(any)                {}
func (NopObserver) DisplayChanged(display.View)      {}
func (NopObserver) RequestUpdated(requests.Record)   {}
func (NopObserver) SpeechReady(string, media.Speech) {}

// Deps are the collaborators a Dispatcher drives.
type Deps struct {
	Responder ResponseSender
	Media     MediaClient
	Frames    FrameCapturer
	Tracker   *requests.Tracker
	Display   *display.State
	Notifier  Notifier
	Observer  Observer
	Logger    *slog.Logger
}

type Dispatcher struct {
	responder ResponseSender
	media     MediaClient
	frames    FrameCapturer
	tracker   *requests.Tracker
	display   *display.State
	notifier  Notifier
	observer  Observer
	logger    *slog.Logger

	// batchMu serializes batches.
	batchMu sync.Mutex

	chartMu sync.Mutex
	chart   any
}

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		responder: deps.Responder,
		media:     deps.Media,
		frames:    deps.Frames,
		tracker:   deps.Tracker,
		display:   deps.Display,
		notifier:  deps.Notifier,
		observer:  deps.Observer,
		logger:    deps.Logger,
	}
	if d.tracker == nil {
		d.tracker = requests.NewTracker(nil, nil)
	}
	if d.display == nil {
		d.display = display.New(nil)
	}
	if d.observer == nil {
		d.observer = NopObserver{}
	}
	if d.notifier == nil {
		d.notifier = nopNotifier{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Chart returns the most recently rendered chart spec.
func (d *Dispatcher) Chart() (any, bool) {
	d.chartMu.Lock()
	defer d.chartMu.Unlock()
	return d.chart, d.chart != nil
}

// Run handles batches from ch until it closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan live.ToolCallBatch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-ch:
			if !ok {
				return nil
			}
			if err := d.HandleBatch(ctx, batch); err != nil {
				d.logger.Error("tool response failed", "error", err)
			}
		}
	}
}

// HandleBatch resolves every call in batch and sends one combined response.
// Calls without an id cannot be answered and are dropped.
func (d *Dispatcher) HandleBatch(ctx context.Context, batch live.ToolCallBatch) error {
	d.batchMu.Lock()
	defer d.batchMu.Unlock()

	calls := make([]live.ToolCall, 0, len(batch.Calls))
	for _, call := range batch.Calls {
		if call.ID == "" {
			d.logger.Warn("dropping tool call without id", "tool", call.Name)
			continue
		}
		calls = append(calls, call)
	}
	if len(calls) == 0 {
		return nil
	}

	responses := make([]live.ToolResponse, len(calls))
	var wg conc.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Go(func() {
			responses[i] = d.resolve(ctx, call)
		})
	}
	wg.Wait()

	if err := d.responder.SendToolResponse(live.ToolResponseBatch{Responses: responses}); err != nil {
		return fmt.Errorf("send tool response: %w", err)
	}
	d.logger.Debug("tool batch answered", "calls", len(responses))
	return nil
}

// resolve never panics; a panicking handler becomes an error response.
func (d *Dispatcher) resolve(ctx context.Context, call live.ToolCall) live.ToolResponse {
	var out map[string]any
	var pc panics.Catcher
	pc.Try(func() {
		out = d.handle(ctx, call)
	})
	if r := pc.Recovered(); r != nil {
		d.logger.Error("tool handler panicked", "tool", call.Name, "call_id", call.ID, "panic", r.Value)
		out = map[string]any{"status": "error", "error": fmt.Sprintf("internal error: %v", r.Value)}
	}
	return live.ToolResponse{ID: call.ID, Name: call.Name, Response: out}
}

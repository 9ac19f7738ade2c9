package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/panics"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/display"
	"github.com/vango-go/vai-duet/pkg/core/live"
	"github.com/vango-go/vai-duet/pkg/core/media"
	"github.com/vango-go/vai-duet/pkg/core/requests"
	"github.com/vango-go/vai-duet/pkg/core/tools"
)

func (d *Dispatcher) handle(ctx context.Context, call live.ToolCall) map[string]any {
	kind := tools.Lookup(call.Name)
	switch kind {
	case tools.KindRenderChart:
		return d.renderChart(call)
	case tools.KindShowMedia:
		return d.showMedia(ctx, call)
	case tools.KindHideMedia:
		return d.hideMedia()
	case tools.KindGenerateVideo:
		return d.generate(ctx, call, "Video", func(ctx context.Context, id string) (any, error) {
			image, err := optionalImage(call.Args)
			if err != nil {
				return nil, err
			}
			return d.generateVideo(ctx, stringArg(call.Args, "prompt"), image)
		})
	case tools.KindGenerateVideoFromWebcam:
		return d.generateFromWebcam(ctx, call)
	case tools.KindGenerateImage:
		return d.generate(ctx, call, "Image", func(ctx context.Context, id string) (any, error) {
			image, err := optionalImage(call.Args)
			if err != nil {
				return nil, err
			}
			return d.generateImage(ctx, stringArg(call.Args, "prompt"), image)
		})
	case tools.KindGenerateSpeech:
		return d.generate(ctx, call, "Speech", func(ctx context.Context, id string) (any, error) {
			return d.generateSpeech(ctx, id, stringArg(call.Args, "text"))
		})
	case tools.KindUnknown:
		err := core.NewUnknownToolError(call.Name)
		d.logger.Warn("unknown tool", "tool", call.Name, "call_id", call.ID)
		return map[string]any{"status": "error", "error": err.Message}
	default:
		panic(fmt.Sprintf("unhandled tool kind %v", kind))
	}
}

func (d *Dispatcher) renderChart(call live.ToolCall) map[string]any {
	spec, ok := call.Args["spec"]
	if !ok || spec == nil {
		return failure(core.NewInvalidArgumentError("spec is required", "spec"))
	}
	d.chartMu.Lock()
	d.chart = spec
	d.chartMu.Unlock()
	d.observer.ChartRendered(spec)
	return map[string]any{"success": true}
}

func (d *Dispatcher) showMedia(ctx context.Context, call live.ToolCall) map[string]any {
	kind, err := display.ParseKind(stringArg(call.Args, "kind"))
	if err != nil {
		return failure(err)
	}
	view, err := d.display.Show(ctx, kind)
	if err != nil {
		d.logger.Info("show media failed", "kind", kind, "error", err)
		return failure(err)
	}
	d.observer.DisplayChanged(view)
	d.notifier.Notify(fmt.Sprintf("The %s is now on screen.", kind))
	return map[string]any{"success": true}
}

func (d *Dispatcher) hideMedia() map[string]any {
	d.display.Hide()
	d.observer.DisplayChanged(d.display.Current())
	d.notifier.Notify("The media display was hidden.")
	return map[string]any{"success": true}
}

func (d *Dispatcher) generateFromWebcam(ctx context.Context, call live.ToolCall) map[string]any {
	return d.generate(ctx, call, "Video", func(ctx context.Context, id string) (any, error) {
		if d.frames == nil {
			return nil, core.NewCaptureFailedError("no camera frame source")
		}
		frame, err := d.frames.CaptureFrame()
		if err != nil {
			return nil, err
		}
		if len(frame.Bytes) == 0 {
			return nil, core.NewCaptureFailedError("captured frame is empty")
		}
		return d.generateVideo(ctx, stringArg(call.Args, "prompt"), &frame)
	})
}

// generate runs an asynchronous generation under a pending request record.
// The record settles exactly once, even when run panics.
func (d *Dispatcher) generate(ctx context.Context, call live.ToolCall, label string, run func(ctx context.Context, requestID string) (any, error)) map[string]any {
	rec := d.tracker.Begin(call.Name, call.ID)
	d.observer.RequestUpdated(rec)
	d.notifier.Notify(label + " generation started.")
	log := d.logger.With("tool", call.Name, "call_id", call.ID, "request_id", rec.ID)

	var result any
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		result, err = run(ctx, rec.ID)
	})
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("internal error: %v", r.Value)
	}

	if err != nil {
		msg := core.MessageOf(err)
		if settled, serr := d.tracker.Fail(rec.ID, errors.New(msg)); serr == nil {
			d.observer.RequestUpdated(settled)
		}
		log.Warn("generation failed", "error", err)
		d.notifier.Notify(fmt.Sprintf("%s generation failed: %s", label, msg))
		return map[string]any{"request_id": rec.ID, "status": string(requests.StatusError), "error": msg}
	}

	if settled, serr := d.tracker.Resolve(rec.ID, result); serr == nil {
		d.observer.RequestUpdated(settled)
	}
	log.Info("generation ready")
	d.notifier.Notify(label + " is ready.")
	return map[string]any{"request_id": rec.ID, "status": string(requests.StatusReady), "result": result}
}

func (d *Dispatcher) generateVideo(ctx context.Context, prompt string, image *media.Image) (any, error) {
	res, err := d.media.GenerateVideo(ctx, prompt, image)
	if err != nil {
		return nil, err
	}
	d.display.RecordVideo(res.SourceURI)
	return map[string]any{"kind": tools.MediaVideo, "uri": res.SourceURI}, nil
}

func (d *Dispatcher) generateImage(ctx context.Context, prompt string, image *media.Image) (any, error) {
	artifact, ok, err := d.media.GenerateImage(ctx, prompt, image)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewGenerationFailedError("no image was produced")
	}
	d.display.RecordImage(artifact.DataURI)
	return map[string]any{"kind": tools.MediaImage, "mime_type": artifact.MIMEType, "bytes": artifact.Size}, nil
}

func (d *Dispatcher) generateSpeech(ctx context.Context, requestID, text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidArgumentError("text is required", "text")
	}
	speech, err := d.media.GenerateSpeech(ctx, text)
	if err != nil {
		return nil, err
	}
	d.observer.SpeechReady(requestID, speech)
	return map[string]any{"kind": "speech", "mime_type": speech.MIMEType, "bytes": len(speech.Data)}, nil
}

func failure(err error) map[string]any {
	return map[string]any{"success": false, "error": core.MessageOf(err)}
}

func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return v
}

func optionalImage(args map[string]any) (*media.Image, error) {
	raw := strings.TrimSpace(stringArg(args, "image"))
	if raw == "" {
		return nil, nil
	}
	return media.DecodeImageArg(raw)
}

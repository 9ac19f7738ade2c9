// Package media wraps the three asynchronous generation operations (video,
// image, speech) the dispatcher drives against the generation backend.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/vai-duet/pkg/core"
)

// DefaultPollInterval is the fixed wait between video operation polls.
const DefaultPollInterval = 10 * time.Second

// Image is a raw image payload handed to a generation request.
type Image struct {
	Bytes    []byte
	MIMEType string
}

// Blob is a downloaded binary payload.
type Blob struct {
	Data     []byte
	MIMEType string
}

// VideoOperation is the backend-neutral view of a long-running video
// generation. Handle carries whatever the backend needs to poll it again.
type VideoOperation struct {
	Name      string
	Done      bool
	VideoURIs []string
	Error     string
	Handle    any
}

// VideoResult is the outcome of a completed video generation.
type VideoResult struct {
	SourceURI string
}

// ImageArtifact is a generated image ready to be displayed.
type ImageArtifact struct {
	DataURI  string
	MIMEType string
	Size     int
}

// Speech is synthesized audio.
type Speech struct {
	MIMEType string
	Data     []byte
}

// Backend is the generation service the client drives. Image and speech
// responses are returned undecoded; the client tolerates malformed ones.
type Backend interface {
	SubmitVideo(ctx context.Context, prompt string, image *Image) (VideoOperation, error)
	PollVideo(ctx context.Context, op VideoOperation) (VideoOperation, error)
	GenerateImage(ctx context.Context, prompt string, image *Image) (json.RawMessage, error)
	GenerateSpeech(ctx context.Context, text string) (json.RawMessage, error)
	FetchVideo(ctx context.Context, uri string) (Blob, error)
}

// Client runs generation operations against a Backend. It keeps no state
// between calls.
type Client struct {
	backend      Backend
	logger       *slog.Logger
	pollInterval time.Duration
	wait         func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval overrides the video poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a media client over backend.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:      backend,
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		wait:         sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateVideo submits a video generation and polls until the operation
// completes or ctx is canceled. Canceling only abandons the wait; the remote
// operation keeps running.
func (c *Client) GenerateVideo(ctx context.Context, prompt string, image *Image) (VideoResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return VideoResult{}, core.NewInvalidArgumentError("prompt is required", "prompt")
	}
	op, err := c.backend.SubmitVideo(ctx, prompt, image)
	if err != nil {
		return VideoResult{}, fmt.Errorf("submit video: %w", err)
	}
	c.logger.Info("video operation submitted", "operation", op.Name)

	for !op.Done {
		if err := c.wait(ctx, c.pollInterval); err != nil {
			return VideoResult{}, err
		}
		op, err = c.backend.PollVideo(ctx, op)
		if err != nil {
			return VideoResult{}, fmt.Errorf("poll video %q: %w", op.Name, err)
		}
	}

	if op.Error != "" {
		return VideoResult{}, core.NewGenerationFailedError("video operation failed: " + op.Error)
	}
	if len(op.VideoURIs) == 0 {
		return VideoResult{}, core.NewGenerationFailedError("video operation returned no videos")
	}
	uri := strings.TrimSpace(op.VideoURIs[0])
	if uri == "" {
		return VideoResult{}, core.NewGenerationFailedError("generated video has no retrievable uri")
	}
	return VideoResult{SourceURI: uri}, nil
}

// GenerateImage runs one image generation round trip. A response that cannot
// be parsed into an image yields ok=false and no error.
func (c *Client) GenerateImage(ctx context.Context, prompt string, image *Image) (artifact ImageArtifact, ok bool, err error) {
	if strings.TrimSpace(prompt) == "" {
		return ImageArtifact{}, false, core.NewInvalidArgumentError("prompt is required", "prompt")
	}
	raw, err := c.backend.GenerateImage(ctx, prompt, image)
	if err != nil {
		return ImageArtifact{}, false, fmt.Errorf("generate image: %w", err)
	}
	artifact, perr := ExtractImage(raw)
	if perr != nil {
		c.logger.Warn("image response not usable", "error", perr)
		return ImageArtifact{}, false, nil
	}
	return artifact, true, nil
}

// GenerateSpeech synthesizes text into audio.
func (c *Client) GenerateSpeech(ctx context.Context, text string) (Speech, error) {
	if strings.TrimSpace(text) == "" {
		return Speech{}, core.NewInvalidArgumentError("text is required", "text")
	}
	raw, err := c.backend.GenerateSpeech(ctx, text)
	if err != nil {
		return Speech{}, fmt.Errorf("generate speech: %w", err)
	}
	speech, err := ExtractSpeech(raw)
	if err != nil {
		return Speech{}, core.NewGenerationFailedError("speech response contained no audio")
	}
	return speech, nil
}

// FetchVideo downloads the bytes behind a generated video URI.
func (c *Client) FetchVideo(ctx context.Context, uri string) (Blob, error) {
	blob, err := c.backend.FetchVideo(ctx, uri)
	if err != nil {
		return Blob{}, fmt.Errorf("fetch video: %w", err)
	}
	return blob, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

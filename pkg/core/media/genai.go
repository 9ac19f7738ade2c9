package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultVideoModel  = "veo-2.0-generate-001"
	DefaultImageModel  = "gemini-2.5-flash-image-preview"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultSpeechVoice = "Kore"

	defaultMaxVideoBytes = 128 << 20
)

// GenAIConfig configures the genai-backed backend.
type GenAIConfig struct {
	APIKey        string
	VideoModel    string
	ImageModel    string
	SpeechModel   string
	SpeechVoice   string
	MaxVideoBytes int64
	HTTPClient    *http.Client
}

// GenAIBackend implements Backend with the Gemini API SDK. Video bytes are
// fetched over plain HTTPS with the API key since generated video URIs are
// download links rather than SDK resources.
type GenAIBackend struct {
	client     *genai.Client
	cfg        GenAIConfig
	httpClient *http.Client
}

// NewGenAIBackend wraps an existing genai client.
func NewGenAIBackend(client *genai.Client, cfg GenAIConfig) *GenAIBackend {
	if cfg.VideoModel == "" {
		cfg.VideoModel = DefaultVideoModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}
	if cfg.SpeechVoice == "" {
		cfg.SpeechVoice = DefaultSpeechVoice
	}
	if cfg.MaxVideoBytes <= 0 {
		cfg.MaxVideoBytes = defaultMaxVideoBytes
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &GenAIBackend{client: client, cfg: cfg, httpClient: hc}
}

func (b *GenAIBackend) SubmitVideo(ctx context.Context, prompt string, image *Image) (VideoOperation, error) {
	var img *genai.Image
	if image != nil {
		img = &genai.Image{ImageBytes: image.Bytes, MIMEType: image.MIMEType}
	}
	op, err := b.client.Models.GenerateVideos(ctx, b.cfg.VideoModel, prompt, img, nil)
	if err != nil {
		return VideoOperation{}, err
	}
	return videoOperationFromGenAI(op), nil
}

func (b *GenAIBackend) PollVideo(ctx context.Context, op VideoOperation) (VideoOperation, error) {
	raw, ok := op.Handle.(*genai.GenerateVideosOperation)
	if !ok || raw == nil {
		return op, fmt.Errorf("operation %q has no genai handle", op.Name)
	}
	next, err := b.client.Operations.GetVideosOperation(ctx, raw, nil)
	if err != nil {
		return op, err
	}
	return videoOperationFromGenAI(next), nil
}

func videoOperationFromGenAI(op *genai.GenerateVideosOperation) VideoOperation {
	if op == nil {
		return VideoOperation{Done: true, Error: "empty operation"}
	}
	out := VideoOperation{Name: op.Name, Done: op.Done, Handle: op}
	if op.Error != nil {
		out.Error = fmt.Sprintf("%v", op.Error)
	}
	if op.Response != nil {
		for _, gv := range op.Response.GeneratedVideos {
			if gv == nil || gv.Video == nil {
				out.VideoURIs = append(out.VideoURIs, "")
				continue
			}
			out.VideoURIs = append(out.VideoURIs, gv.Video.URI)
		}
	}
	return out
}

func (b *GenAIBackend) GenerateImage(ctx context.Context, prompt string, image *Image) (json.RawMessage, error) {
	parts := []*genai.Part{{Text: prompt}}
	if image != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: image.Bytes, MIMEType: image.MIMEType}})
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.cfg.ImageModel,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (b *GenAIBackend) GenerateSpeech(ctx context.Context, text string) (json.RawMessage, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.cfg.SpeechModel,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: b.cfg.SpeechVoice},
				},
			},
		},
	)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (b *GenAIBackend) FetchVideo(ctx context.Context, uri string) (Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return Blob{}, err
	}
	if b.cfg.APIKey != "" {
		req.Header.Set("x-goog-api-key", b.cfg.APIKey)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Blob{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Blob{}, parseAPIError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.cfg.MaxVideoBytes+1))
	if err != nil {
		return Blob{}, err
	}
	if int64(len(data)) > b.cfg.MaxVideoBytes {
		return Blob{}, fmt.Errorf("video exceeds %d bytes", b.cfg.MaxVideoBytes)
	}
	mt := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if mt == "" || mt == "application/octet-stream" {
		mt = "video/mp4"
	}
	return Blob{Data: data, MIMEType: mt}, nil
}

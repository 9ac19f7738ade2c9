package media

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vango-go/vai-duet/pkg/core"
)

type inlinePart struct {
	mimeType string
	data     string
}

// firstInlinePart walks candidates[*].content.parts[*] looking for the first
// inline payload whose mime type has the given prefix. Both camelCase and
// snake_case field spellings are accepted.
func firstInlinePart(raw json.RawMessage, mimePrefix string) (inlinePart, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return inlinePart{}, false
	}
	var found inlinePart
	ok := false
	gjson.GetBytes(raw, "candidates").ForEach(func(_, cand gjson.Result) bool {
		cand.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
			inline := part.Get("inlineData")
			if !inline.Exists() {
				inline = part.Get("inline_data")
			}
			if !inline.IsObject() {
				return true
			}
			data := strings.TrimSpace(inline.Get("data").String())
			if data == "" {
				return true
			}
			mt := inline.Get("mimeType").String()
			if mt == "" {
				mt = inline.Get("mime_type").String()
			}
			if mimePrefix != "" && mt != "" && !strings.HasPrefix(mt, mimePrefix) {
				return true
			}
			found = inlinePart{mimeType: mt, data: data}
			ok = true
			return false
		})
		return !ok
	})
	return found, ok
}

// ExtractImage pulls the first inline image out of an image generation
// response.
func ExtractImage(raw json.RawMessage) (ImageArtifact, error) {
	part, ok := firstInlinePart(raw, "image/")
	if !ok {
		return ImageArtifact{}, core.NewParseFailedError("response has no inline image payload")
	}
	mt := part.mimeType
	if mt == "" {
		mt = "image/png"
	}
	decoded, err := base64.StdEncoding.DecodeString(part.data)
	if err != nil {
		return ImageArtifact{}, core.NewParseFailedError("inline image payload is not valid base64")
	}
	return ImageArtifact{
		DataURI:  DataURI(mt, part.data),
		MIMEType: mt,
		Size:     len(decoded),
	}, nil
}

// ExtractSpeech pulls the first inline audio payload out of a speech response.
func ExtractSpeech(raw json.RawMessage) (Speech, error) {
	part, ok := firstInlinePart(raw, "audio/")
	if !ok {
		return Speech{}, core.NewParseFailedError("response has no inline audio payload")
	}
	data, err := base64.StdEncoding.DecodeString(part.data)
	if err != nil {
		return Speech{}, core.NewParseFailedError("inline audio payload is not valid base64")
	}
	mt := part.mimeType
	if mt == "" {
		mt = "audio/pcm"
	}
	return Speech{MIMEType: mt, Data: data}, nil
}

package media

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/vango-go/vai-duet/pkg/core"
)

// DefaultImageMIMEType is assumed when an image argument carries no mime token.
const DefaultImageMIMEType = "image/jpeg"

var dataURIPattern = regexp.MustCompile(`(?s)^data:([^;,]+);base64,(.*)$`)

// ParseDataURI splits an image argument into its payload and mime type.
//
// The canonical "data:<mime>;base64,<payload>" form is matched first. Anything
// else is split at the first comma, keeping whatever mime token precedes it.
// Input without a comma is returned unchanged as payload with
// DefaultImageMIMEType.
func ParseDataURI(s string) (payload, mimeType string) {
	if m := dataURIPattern.FindStringSubmatch(s); m != nil {
		return m[2], m[1]
	}

	idx := strings.IndexByte(s, ',')
	if idx < 0 {
		return s, DefaultImageMIMEType
	}

	header := strings.TrimPrefix(s[:idx], "data:")
	if semi := strings.IndexByte(header, ';'); semi >= 0 {
		header = header[:semi]
	}
	mimeType = strings.TrimSpace(header)
	if mimeType == "" {
		mimeType = DefaultImageMIMEType
	}
	return s[idx+1:], mimeType
}

// DecodeImageArg turns a data-URI or bare base64 tool argument into raw image
// bytes.
func DecodeImageArg(s string) (*Image, error) {
	payload, mimeType := ParseDataURI(strings.TrimSpace(s))
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, core.NewInvalidArgumentError("image payload is empty", "image")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, core.NewInvalidArgumentError("image payload is not valid base64", "image")
		}
	}
	return &Image{Bytes: data, MIMEType: mimeType}, nil
}

// DataURI formats a base64 payload as a canonical data URI.
func DataURI(mimeType, payloadB64 string) string {
	return "data:" + mimeType + ";base64," + payloadB64
}

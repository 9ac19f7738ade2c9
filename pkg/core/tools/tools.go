// Package tools declares the function-calling surface exposed to the model and
// the closed set of tool kinds the dispatcher resolves.
//
// Adding a tool means adding a Kind, a Declaration, and a dispatcher case; the
// dispatcher switches exhaustively over Kind.
package tools

import "strings"

// Kind is the closed set of tool variants the dispatcher knows how to resolve.
type Kind int

const (
	KindUnknown Kind = iota
	KindRenderChart
	KindGenerateVideo
	KindGenerateVideoFromWebcam
	KindGenerateImage
	KindGenerateSpeech
	KindShowMedia
	KindHideMedia
)

// Tool names as declared to the model.
const (
	NameRenderChart             = "render_chart"
	NameGenerateVideo           = "generate_video"
	NameGenerateVideoFromWebcam = "generate_video_from_webcam"
	NameGenerateImage           = "generate_image"
	NameNanoBanana              = "nano_banana"
	NameGenerateSpeech          = "generate_speech"
	NameShowMedia               = "show_media"
	NameHideMedia               = "hide_media"
)

// Media kinds accepted by show_media.
const (
	MediaVideo = "video"
	MediaImage = "image"
)

var kindsByName = map[string]Kind{
	NameRenderChart:             KindRenderChart,
	NameGenerateVideo:           KindGenerateVideo,
	NameGenerateVideoFromWebcam: KindGenerateVideoFromWebcam,
	NameGenerateImage:           KindGenerateImage,
	NameNanoBanana:              KindGenerateImage,
	NameGenerateSpeech:          KindGenerateSpeech,
	NameShowMedia:               KindShowMedia,
	NameHideMedia:               KindHideMedia,
}

// Lookup resolves a declared tool name to its Kind. Unrecognized names return
// KindUnknown.
func Lookup(name string) Kind {
	k, ok := kindsByName[strings.TrimSpace(name)]
	if !ok {
		return KindUnknown
	}
	return k
}

func (k Kind) String() string {
	switch k {
	case KindRenderChart:
		return NameRenderChart
	case KindGenerateVideo:
		return NameGenerateVideo
	case KindGenerateVideoFromWebcam:
		return NameGenerateVideoFromWebcam
	case KindGenerateImage:
		return NameGenerateImage
	case KindGenerateSpeech:
		return NameGenerateSpeech
	case KindShowMedia:
		return NameShowMedia
	case KindHideMedia:
		return NameHideMedia
	default:
		return "unknown"
	}
}

// IsAsync reports whether resolving the kind involves a backend generation
// round trip tracked by a request record.
func (k Kind) IsAsync() bool {
	switch k {
	case KindGenerateVideo, KindGenerateVideoFromWebcam, KindGenerateImage, KindGenerateSpeech:
		return true
	default:
		return false
	}
}

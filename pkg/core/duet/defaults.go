package duet

import (
	"github.com/vango-go/vai-duet/pkg/core/live"
	"github.com/vango-go/vai-duet/pkg/core/tools"
)

const (
	DefaultSpeakingModel = "gemini-2.0-flash-live-001"
	DefaultFunctionModel = "gemini-2.0-flash-live-001"
	DefaultSpeakingVoice = "Puck"
)

const speakingInstruction = `You are the voice of a live creative studio. You can see the user through their camera and hear them.
A separate assistant performs actions such as rendering charts, generating videos, images and speech, and showing or hiding media.
Messages that start with "[SYSTEM NOTIFICATION]" are status updates about that work, not user speech.
When you receive one, tell the user about it in one short sentence. Never claim to run tools yourself.`

const functionInstruction = `You operate the studio's tools. Watch and listen to the user.
When they ask for a chart, a video, an image, generated speech, or to show or hide media, call the matching tool.
Do not chat and do not describe what you are doing. Only call tools.`

// SpeakingConfig is the narrator session: audio out, no tools.
func SpeakingConfig(model, voice string) live.Config {
	if model == "" {
		model = DefaultSpeakingModel
	}
	if voice == "" {
		voice = DefaultSpeakingVoice
	}
	return live.Config{
		Model:             model,
		Modalities:        []live.Modality{live.ModalityAudio},
		SystemInstruction: speakingInstruction,
		Voice:             voice,
	}
}

// FunctionConfig is the operator session: text out, every studio tool.
func FunctionConfig(model string) live.Config {
	if model == "" {
		model = DefaultFunctionModel
	}
	return live.Config{
		Model:             model,
		Modalities:        []live.Modality{live.ModalityText},
		SystemInstruction: functionInstruction,
		Tools:             tools.Declarations(),
	}
}

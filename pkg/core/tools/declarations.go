package tools

// Schema is the JSON-schema-like parameter description sent to the model.
type Schema struct {
	Type        string            `json:"type" yaml:"type"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string          `json:"required,omitempty" yaml:"required,omitempty"`
	Enum        []string          `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Declaration describes one callable tool.
type Declaration struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Parameters  *Schema `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

func object(required []string, props map[string]Schema) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

func str(desc string) Schema {
	return Schema{Type: "string", Description: desc}
}

// Declarations returns the tool set for the function-calling session, in the
// order it is declared to the model.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        NameRenderChart,
			Description: "Render a chart in the page from a Vega-Lite JSON specification.",
			Parameters: object([]string{"spec"}, map[string]Schema{
				"spec": str("Vega-Lite chart specification as a JSON string."),
			}),
		},
		{
			Name:        NameGenerateVideo,
			Description: "Start generating a short video from a text prompt, optionally seeded with an image. Takes minutes; the user is told when it is ready.",
			Parameters: object([]string{"prompt"}, map[string]Schema{
				"prompt": str("Description of the video to generate."),
				"image":  str("Optional seed image as a data URI or base64 payload."),
			}),
		},
		{
			Name:        NameGenerateVideoFromWebcam,
			Description: "Capture the current webcam frame and generate a video that starts from it.",
			Parameters: object([]string{"prompt"}, map[string]Schema{
				"prompt": str("Description of what should happen in the video."),
			}),
		},
		{
			Name:        NameGenerateImage,
			Description: "Generate an image from a text prompt.",
			Parameters: object([]string{"prompt"}, map[string]Schema{
				"prompt": str("Description of the image to generate."),
			}),
		},
		{
			Name:        NameNanoBanana,
			Description: "Generate or edit an image from a prompt and an optional input image.",
			Parameters: object([]string{"prompt"}, map[string]Schema{
				"prompt": str("Description of the image, or of the edit to apply."),
				"image":  str("Optional input image as a data URI or base64 payload."),
			}),
		},
		{
			Name:        NameGenerateSpeech,
			Description: "Synthesize speech audio for the given text and play it in the page.",
			Parameters: object([]string{"text"}, map[string]Schema{
				"text": str("Text to speak."),
			}),
		},
		{
			Name:        NameShowMedia,
			Description: "Show the most recently generated video or image.",
			Parameters: object([]string{"kind"}, map[string]Schema{
				"kind": {Type: "string", Description: "Which media to show.", Enum: []string{MediaVideo, MediaImage}},
			}),
		},
		{
			Name:        NameHideMedia,
			Description: "Hide whatever video or image is currently shown.",
			Parameters:  object(nil, map[string]Schema{}),
		},
	}
}

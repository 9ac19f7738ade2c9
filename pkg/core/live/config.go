package live

import "github.com/vango-go/vai-duet/pkg/core/tools"

// Modality is a response modality requested from the model.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityAudio Modality = "AUDIO"
)

// Config is pushed to a transport before it connects. Re-pushing replaces the
// configuration used by the next Connect.
type Config struct {
	Model             string
	Modalities        []Modality
	SystemInstruction string
	Tools             []tools.Declaration
	Voice             string
}

// Clone returns a deep copy so callers cannot mutate a pushed config.
func (c Config) Clone() Config {
	out := c
	out.Modalities = append([]Modality(nil), c.Modalities...)
	out.Tools = append([]tools.Declaration(nil), c.Tools...)
	return out
}

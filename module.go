package modmix

import (
	"github.com/quasilyte/modmix/gpu"
	"github.com/quasilyte/modmix/modfile"
)

// module is a decoded module prepared for the mixer.
type module struct {
	src *modfile.Module

	// patterns are packed pattern buffers, indexed by the pattern id.
	patterns [][]float32

	config moduleConfig
}

type moduleConfig struct {
	sampleRate int
	maxFrames  int
}

// patternIndex returns the pattern id of p or -1 if p
// doesn't belong to the module.
func (m *module) patternIndex(p *modfile.Pattern) int {
	for i := range m.src.Patterns {
		if &m.src.Patterns[i] == p {
			return i
		}
	}
	return -1
}

func (m *module) numChannels() int { return m.src.NumChannels }

// moduleResources are the device buffers owned by the mixer
// for the currently initialized module.
type moduleResources struct {
	atlas   gpu.Buffer
	pattern gpu.Buffer
	target  gpu.Buffer
	state   *stateArena

	// readback receives the render target contents after every tick.
	readback []float32
}

func (r *moduleResources) release() {
	for _, b := range []gpu.Buffer{r.atlas, r.pattern, r.target} {
		if b != nil {
			b.Release()
		}
	}
	if r.state != nil {
		r.state.release()
	}
	*r = moduleResources{}
}

package modmix

import (
	"github.com/quasilyte/modmix/modfile"
)

const (
	// AtlasSlots is the number of instrument slots in the sample atlas.
	// Slot i holds the sample i+1; the last slot is always silent.
	AtlasSlots = 32

	// AtlasSlotSize is the number of samples each slot can hold.
	// Longer samples are truncated.
	AtlasSlotSize = 65536

	// AtlasWidth and AtlasHeight are the atlas buffer dimensions, in texels.
	// Every slot occupies AtlasSlotSize/AtlasWidth consecutive rows.
	AtlasWidth  = 2048
	AtlasHeight = AtlasSlots * AtlasSlotSize / AtlasWidth

	// StateWidth is the number of texels per channel state.
	StateWidth = 8

	texelSize = 4
)

// PackSampleAtlas converts the module sample waveforms into
// the sample atlas texel data (RGBA, row-major).
//
// Every sample value is stored in the red component of its own texel,
// normalized to [-1, 1]. The result size doesn't depend on the
// samples: it's always AtlasSlots*AtlasSlotSize texels.
func PackSampleAtlas(samples []modfile.SampleInfo) []float32 {
	atlas := make([]float32, AtlasSlots*AtlasSlotSize*texelSize)
	for i := range samples {
		if i >= AtlasSlots-1 {
			break
		}
		data := samples[i].Data
		if len(data) > AtlasSlotSize {
			data = data[:AtlasSlotSize]
		}
		slot := atlas[i*AtlasSlotSize*texelSize:]
		for j, v := range data {
			slot[j*texelSize] = float32(v) / 128
		}
	}
	return atlas
}

// packPattern converts the pattern into the pattern buffer texel data.
//
// Every note uses two texels:
//
//	(ch*2, row):   instrument, period, command, data
//	(ch*2+1, row): volume+256*finetune, length, loop start, loop length
//
// The second texel describes the note instrument and
// it's all zeros for notes without a valid instrument.
func packPattern(dst []float32, m *modfile.Module, p *modfile.Pattern) []float32 {
	width := m.NumChannels * 2
	dst = resizeFloats(dst, width*modfile.NumDivisions*texelSize)

	for row := range p.Divisions {
		d := &p.Divisions[row]
		for ch := 0; ch < m.NumChannels; ch++ {
			var n modfile.Note
			if ch < len(d.Notes) {
				n = d.Notes[ch]
			}
			i := (row*width + ch*2) * texelSize
			dst[i+0] = float32(n.Instrument)
			dst[i+1] = float32(n.Period)
			dst[i+2] = float32(n.Effect.Command)
			dst[i+3] = float32(n.Effect.Data)

			i += texelSize
			if n.Instrument == 0 || int(n.Instrument) > modfile.NumSamples {
				clear(dst[i : i+texelSize])
				continue
			}
			s := &m.Samples[n.Instrument-1]
			dst[i+0] = float32(int(s.Volume) + 256*int(s.FineTune&0x0F))
			dst[i+1] = float32(min(s.Length, len(s.Data)))
			dst[i+2] = float32(s.LoopStart)
			dst[i+3] = float32(s.LoopLength)
		}
	}

	return dst
}

func compileModule(m *modfile.Module, config moduleConfig) *module {
	compiled := &module{
		src:      m,
		patterns: make([][]float32, len(m.Patterns)),
		config:   config,
	}
	for i := range m.Patterns {
		compiled.patterns[i] = packPattern(nil, m, &m.Patterns[i])
	}
	return compiled
}

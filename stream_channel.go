package modmix

import (
	"github.com/quasilyte/modmix/modfile"
)

// ChannelState is a decoded channel state snapshot.
//
// The channel state lives on the device; this is a read-only copy.
type ChannelState struct {
	// Position is a playback offset inside the sample, in samples.
	Position float64

	// Period is the current note period.
	Period float64

	// Volume is in [0, 64].
	Volume float64

	// Instrument is a 1-based sample index, 0 means "no instrument".
	Instrument int

	// Sample geometry of the current instrument.
	Length     int
	LoopStart  int
	LoopLength int
	FineTune   int

	Effect modfile.Effect

	PortamentoTarget float64
	PortamentoSpeed  float64

	VibratoPos   int
	VibratoSpeed int
	VibratoDepth int

	TremoloPos   int
	TremoloSpeed int
	TremoloDepth int

	// SampleOffset is the last 9xx offset, in samples.
	SampleOffset int

	// OutputPeriod and OutputVolume are the values used during the last tick,
	// after arpeggio, vibrato and tremolo were applied.
	OutputPeriod float64
	OutputVolume float64

	Active bool
}

func decodeChannelStates(data []float32) []ChannelState {
	const channelSize = StateWidth * texelSize
	states := make([]ChannelState, len(data)/channelSize)
	for i := range states {
		states[i] = decodeChannelState(data[i*channelSize : (i+1)*channelSize])
	}
	return states
}

func decodeChannelState(v []float32) ChannelState {
	return ChannelState{
		Position:   float64(v[0]),
		Period:     float64(v[1]),
		Volume:     float64(v[2]),
		Instrument: int(v[3]),

		Length:     int(v[4]),
		LoopStart:  int(v[5]),
		LoopLength: int(v[6]),
		FineTune:   int(v[7]),

		Effect: modfile.Effect{
			Command: uint8(v[8]),
			Data:    uint8(v[9]),
		},
		PortamentoTarget: float64(v[10]),
		PortamentoSpeed:  float64(v[11]),

		VibratoPos:   int(v[12]),
		VibratoSpeed: int(v[13]),
		VibratoDepth: int(v[14]),
		TremoloPos:   int(v[15]),

		TremoloSpeed: int(v[16]),
		TremoloDepth: int(v[17]),
		SampleOffset: int(v[18]),

		OutputPeriod: float64(v[20]),
		OutputVolume: float64(v[21]),
		Active:       v[22] != 0,
	}
}

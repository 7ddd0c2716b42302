package moddb

import (
	"github.com/quasilyte/modmix/modfile"
)

type Effect struct {
	Op  EffectOp
	Arg uint8
}

type EffectOp int

const (
	EffectNone EffectOp = iota

	// Encoding: effect=0x0 (with a non-zero arg)
	// Arg: two semitone offsets
	EffectArpeggio

	// Encoding: effect=0x1
	// Arg: period decrease per tick
	EffectPortamentoUp

	// Encoding: effect=0x2
	// Arg: period increase per tick
	EffectPortamentoDown

	// Encoding: effect=0x3
	// Arg: slide speed (0 reuses the previous one)
	EffectTonePortamento

	// Encoding: effect=0x4
	// Arg: speed (x) and depth (y)
	EffectVibrato

	// Encoding: effect=0x5
	// Arg: volume slide, see EffectVolumeSlide
	EffectTonePortamentoVolumeSlide

	// Encoding: effect=0x6
	// Arg: volume slide, see EffectVolumeSlide
	EffectVibratoVolumeSlide

	// Encoding: effect=0x7
	// Arg: speed (x) and depth (y)
	EffectTremolo

	// Encoding: effect=0x8
	// Not used by the Amiga-style 4 channel mixer.
	EffectSetPanning

	// Encoding: effect=0x9
	// Arg: offset in 256-byte units
	EffectSampleOffset

	// Encoding: effect=0xA
	// Arg: slide up (x) or down (y) speed
	EffectVolumeSlide

	// Encoding: effect=0xB
	// Arg: order position
	EffectPositionJump

	// Encoding: effect=0xC
	// Arg: volume level
	EffectSetVolume

	// Encoding: effect=0xD
	// Arg: row in the next pattern (decimal, x*10+y)
	EffectPatternBreak

	// Encoding: effect=0xF with arg<0x20
	// Arg: ticks per row
	EffectSetSpeed

	// Encoding: effect=0xF with arg>=0x20
	// Arg: BPM
	EffectSetTempo

	// Encoding: effect=0xE1
	EffectFinePortamentoUp

	// Encoding: effect=0xE2
	EffectFinePortamentoDown

	// Encoding: effect=0xE6
	// Arg: 0 marks the loop start, otherwise a repeat count
	EffectPatternLoop

	// Encoding: effect=0xE9
	// Arg: retrigger interval in ticks
	EffectRetrigger

	// Encoding: effect=0xEA
	EffectFineVolumeSlideUp

	// Encoding: effect=0xEB
	EffectFineVolumeSlideDown

	// Encoding: effect=0xEC
	// Arg: tick number
	EffectNoteCut

	// Encoding: effect=0xED
	// Arg: tick number
	EffectNoteDelay

	// Encoding: effect=0xEE
	// Arg: number of rows to delay
	EffectPatternDelay

	// Everything else (E0x filter, E3x glissando, E4x/E7x waveforms, ...).
	EffectUnsupported
)

var effectNames = [...]string{
	EffectNone:                      "none",
	EffectArpeggio:                  "arpeggio",
	EffectPortamentoUp:              "portamento up",
	EffectPortamentoDown:            "portamento down",
	EffectTonePortamento:            "tone portamento",
	EffectVibrato:                   "vibrato",
	EffectTonePortamentoVolumeSlide: "tone portamento + volume slide",
	EffectVibratoVolumeSlide:        "vibrato + volume slide",
	EffectTremolo:                   "tremolo",
	EffectSetPanning:                "set panning",
	EffectSampleOffset:              "sample offset",
	EffectVolumeSlide:               "volume slide",
	EffectPositionJump:              "position jump",
	EffectSetVolume:                 "set volume",
	EffectPatternBreak:              "pattern break",
	EffectSetSpeed:                  "set speed",
	EffectSetTempo:                  "set tempo",
	EffectFinePortamentoUp:          "fine portamento up",
	EffectFinePortamentoDown:        "fine portamento down",
	EffectPatternLoop:               "pattern loop",
	EffectRetrigger:                 "retrigger",
	EffectFineVolumeSlideUp:         "fine volume slide up",
	EffectFineVolumeSlideDown:       "fine volume slide down",
	EffectNoteCut:                   "note cut",
	EffectNoteDelay:                 "note delay",
	EffectPatternDelay:              "pattern delay",
	EffectUnsupported:               "unsupported",
}

func (op EffectOp) String() string {
	if op < 0 || int(op) >= len(effectNames) {
		return "unknown"
	}
	return effectNames[op]
}

var extendedOps = [16]EffectOp{
	0x1: EffectFinePortamentoUp,
	0x2: EffectFinePortamentoDown,
	0x6: EffectPatternLoop,
	0x9: EffectRetrigger,
	0xA: EffectFineVolumeSlideUp,
	0xB: EffectFineVolumeSlideDown,
	0xC: EffectNoteCut,
	0xD: EffectNoteDelay,
	0xE: EffectPatternDelay,
}

// ConvertEffect classifies a raw effect.
// For the extended (Exy) commands, Arg holds only the y nibble.
func ConvertEffect(raw modfile.Effect) Effect {
	e := Effect{Arg: raw.Data}

	switch raw.Command {
	case 0x0:
		if raw.Data != 0 {
			e.Op = EffectArpeggio
		}
	case 0x1:
		e.Op = EffectPortamentoUp
	case 0x2:
		e.Op = EffectPortamentoDown
	case 0x3:
		e.Op = EffectTonePortamento
	case 0x4:
		e.Op = EffectVibrato
	case 0x5:
		e.Op = EffectTonePortamentoVolumeSlide
	case 0x6:
		e.Op = EffectVibratoVolumeSlide
	case 0x7:
		e.Op = EffectTremolo
	case 0x8:
		e.Op = EffectSetPanning
	case 0x9:
		e.Op = EffectSampleOffset
	case 0xA:
		e.Op = EffectVolumeSlide
	case 0xB:
		e.Op = EffectPositionJump
	case 0xC:
		e.Op = EffectSetVolume
	case 0xD:
		e.Op = EffectPatternBreak
	case 0xE:
		e.Op = extendedOps[raw.Data>>4]
		if e.Op == EffectNone {
			e.Op = EffectUnsupported
		}
		e.Arg = raw.Data & 0x0F
	case 0xF:
		if raw.Data < 0x20 {
			e.Op = EffectSetSpeed
		} else {
			e.Op = EffectSetTempo
		}
	default:
		e.Op = EffectUnsupported
	}

	return e
}

// PatternBreakRow decodes the Dxx argument.
// It's stored as two decimal digits; invalid rows are mapped to 0.
func PatternBreakRow(arg uint8) int {
	row := int(arg>>4)*10 + int(arg&0x0F)
	if row >= modfile.NumDivisions {
		return 0
	}
	return row
}

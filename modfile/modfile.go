package modfile

import (
	"fmt"
	"io"
)

const (
	// NumSamples is the fixed size of the instrument table.
	NumSamples = 31

	// NumDivisions is the number of rows in every pattern.
	NumDivisions = 64

	// OrderTableSize is the physical size of the pattern sequence table.
	// Only the first SongLength entries are played.
	OrderTableSize = 128

	// DefaultChannels is the channel count of the supported format.
	DefaultChannels = 4

	// HeaderSize is the offset of the first pattern.
	// Title, sample headers, song length, restart point,
	// the order table and the format tag.
	HeaderSize = 1084

	// NoteSize is the number of bytes used to encode one pattern note.
	NoteSize = 4
)

// Module is a decoded tracker module.
//
// A module is immutable after it was returned by the parser.
// Mixers and streams only read it.
type Module struct {
	Name string

	// Tag is the 4-byte format identifier (usually "M.K.").
	// It's reported as is and is not used to decode anything.
	Tag string

	Samples [NumSamples]SampleInfo

	// SongLength is the number of valid PatternOrder entries.
	SongLength int

	// RestartPoint is a PatternOrder index used for looping.
	RestartPoint int

	PatternOrder [OrderTableSize]uint8

	// NumChannels is always DefaultChannels for this format.
	NumChannels int

	// Patterns are indexed by the pattern id.
	// There are max(PatternOrder)+1 patterns, even if
	// some of them are not reachable within SongLength.
	Patterns []Pattern
}

// OrderPattern returns a pattern that is played at the order position i.
// It returns nil for positions outside of [0, SongLength)
// and outside of the order table.
func (m *Module) OrderPattern(i int) *Pattern {
	if i < 0 || i >= m.SongLength || i >= OrderTableSize {
		return nil
	}
	id := int(m.PatternOrder[i])
	if id >= len(m.Patterns) {
		return nil
	}
	return &m.Patterns[id]
}

type SampleInfo struct {
	Name string

	// Length is a waveform length in bytes (and in samples).
	Length int

	// FineTune is a raw 4-bit value; see SignedFineTune.
	FineTune uint8

	// Volume is a raw byte; 0-64 is the nominal range.
	Volume uint8

	// LoopStart and LoopLength are byte offsets into Data.
	// LoopStart+LoopLength<=Length is not guaranteed.
	LoopStart  int
	LoopLength int

	Data []int8
}

// SignedFineTune converts the raw nibble into [-8, 7] eighths of a semitone.
func (s *SampleInfo) SignedFineTune() int {
	ft := int(s.FineTune & 0x0F)
	if ft >= 8 {
		ft -= 16
	}
	return ft
}

// HasLoop reports whether the sample repeats its loop section.
// Trackers write a 1-word loop for one-shot samples.
func (s *SampleInfo) HasLoop() bool {
	return s.LoopLength > 2
}

type Pattern struct {
	Divisions [NumDivisions]Division
}

// NewPattern returns a pattern filled with empty notes.
func NewPattern(numChannels int) Pattern {
	var pat Pattern
	notes := make([]Note, NumDivisions*numChannels)
	for i := range pat.Divisions {
		pat.Divisions[i].Notes = notes[i*numChannels : (i+1)*numChannels : (i+1)*numChannels]
	}
	return pat
}

// Division is a single pattern row: one note per channel.
type Division struct {
	Notes []Note
}

type Note struct {
	// Instrument is a 1-based sample index.
	// 0 means "no instrument change".
	Instrument uint8

	// Period is a 12-bit Amiga period, 0 means "no pitch".
	Period uint16

	Effect Effect
}

type Effect struct {
	Command uint8
	Data    uint8
}

// IsEmpty reports whether the note carries no data at all.
func (n Note) IsEmpty() bool {
	return n == Note{}
}

// DecodeNote unpacks a 4-byte pattern cell.
//
// The instrument number is split: its high nibble lives in the
// top bits of the period word, the low nibble in the top bits of the third byte.
func DecodeNote(b [NoteSize]byte) Note {
	word := uint16(b[0])<<8 | uint16(b[1])
	return Note{
		Instrument: uint8((word&0xF000)>>8) | ((b[2] & 0xF0) >> 4),
		Period:     word & 0x0FFF,
		Effect: Effect{
			Command: b[2] & 0x0F,
			Data:    b[3],
		},
	}
}

// Encode packs the note back into a 4-byte pattern cell.
// Encode(DecodeNote(b)) == b for any b.
func (n Note) Encode() [NoteSize]byte {
	return [NoteSize]byte{
		(n.Instrument & 0xF0) | uint8(n.Period>>8)&0x0F,
		uint8(n.Period),
		(n.Instrument&0x0F)<<4 | n.Effect.Command&0x0F,
		n.Effect.Data,
	}
}

// Parse reads a module data and decodes it.
//
// A non-nil error is usually a *ParseError object.
// Use errors.Is with ErrTruncatedInput or ErrCorruptHeader to classify it.
func Parse(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return NewParser(ParserConfig{}).ParseFromBytes(data)
}

package modmix

import (
	"errors"

	"github.com/quasilyte/modmix/modfile"
)

// Synthesizer can be used to play individual notes
// using the module instruments.
//
// It is more efficient and convenient to use for this
// use case than a stream with a constant module re-loading.
type Synthesizer struct {
	stream *Stream
	module *modfile.Module
}

// NewSynthesizer creates a synthesizer that renders notes with the mixer.
// The mixer should not be shared with a Stream.
func NewSynthesizer(m *Mixer) *Synthesizer {
	stream := NewStream(m)
	stream.settings.rowLimit = 1
	return &Synthesizer{stream: stream}
}

// SetVolume adjusts the global volume scaling for the underlying stream.
func (s *Synthesizer) SetVolume(v float64) {
	s.stream.SetVolume(v)
}

// LoadInstruments prepares the instruments from the module
// for further use.
//
// Loading instruments involves the sample atlas upload,
// so it should not be called on a hot path repeatedly.
//
// The patterns don't really matter as this method
// is only interested in samples.
func (s *Synthesizer) LoadInstruments(m *modfile.Module) error {
	instOnly := &modfile.Module{
		Name:        m.Name,
		Tag:         m.Tag,
		Samples:     m.Samples,
		SongLength:  1,
		NumChannels: m.NumChannels,
		Patterns:    []modfile.Pattern{modfile.NewPattern(m.NumChannels)},
	}
	if err := s.stream.LoadModule(instOnly, LoadModuleConfig{}); err != nil {
		return err
	}
	s.module = instOnly
	return nil
}

// PlayNote plays one or more notes up to the specified duration (in seconds).
// Using 0 for the duration will play it for several seconds.
//
// Notes are assigned to the channels in order; extra notes are ignored.
// Note effects are applied as usual.
func (s *Synthesizer) PlayNote(duration float64, notes ...modfile.Note) error {
	if s.module == nil {
		return errors.New("no instruments loaded")
	}

	row := s.module.Patterns[0].Divisions[0].Notes
	clear(row)
	copy(row, notes)
	s.stream.mixer.repackPattern(0)

	if duration == 0 {
		s.stream.settings.speedOverride = 240
	} else {
		s.stream.settings.speedOverride = 1 + int(ticksPerSecond(int(s.stream.config.BPM))*duration)
	}

	return s.stream.rewind()
}

func (s *Synthesizer) Read(b []byte) (int, error) {
	return s.stream.Read(b)
}

func (s *Synthesizer) ReadSamples(dst []float32) (int, error) {
	return s.stream.ReadSamples(dst)
}

func (s *Synthesizer) Rewind() error {
	return s.stream.Rewind()
}

func (s *Synthesizer) Seek(offset int64, whence int) (int64, error) {
	return s.stream.Seek(offset, whence)
}

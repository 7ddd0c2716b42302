package modmix

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/ik5/audpbx/audio"

	"github.com/quasilyte/modmix/modfile"
)

// Stream plays a module through the mixer, making it possible to Read() its PCM bytes.
//
// The Read() method produces 16-bit little endian stereo PCM bytes; this is what ebiten/audio
// package expects. Use Stream as an io.Reader argument for audio.NewPlayer().
//
// ReadSamples() produces interleaved float32 samples instead,
// so a Stream can be used as an audpbx audio.Source.
type Stream struct {
	mixer  *Mixer
	module *modfile.Module
	config LoadModuleConfig

	seq      sequencer
	settings streamSettings

	// tickBuf holds the samples of the last rendered tick,
	// tickPos is the first sample that was not consumed yet.
	tickBuf []float32
	tickPos int

	scratch []float32

	bytePos int // Used to report the current pos via Seek()
	t       float64
	closed  bool
}

var _ audio.Source = (*Stream)(nil)

type streamSettings struct {
	volumeScaling float64
	loop          bool
	eventHandler  func(e StreamEvent)

	// These are set by the Synthesizer.
	speedOverride int
	rowLimit      int
}

// StreamInfo contains a stream information like bytes per tick, etc.
type StreamInfo struct {
	// BytesPerTick tells how much bytes a single tick produces with the current BPM.
	BytesPerTick uint

	// MaxBytesPerTick is the BytesPerTick for the slowest possible BPM.
	MaxBytesPerTick uint

	// MemoryUsage approximates the module size in bytes, including
	// its device resources.
	MemoryUsage uint
}

// LoadModuleConfig configures the module playback.
//
// These settings can't be changed after a module is loaded.
//
// Some extra configurations are available via Stream methods:
//   - Stream.SetVolume()
//   - Stream.SetLooping()
//
// These extra configuration methods can be used even after a module is loaded.
type LoadModuleConfig struct {
	// BPM sets the initial playback speed.
	// Higher BPM will make the music play faster.
	// Fxx effects can change it during the playback.
	//
	// A zero value means 125, the Amiga default.
	// Other values are clamped to [32, 255].
	BPM uint

	// Speed specifies the initial number of ticks per pattern row.
	// Higher values make the song play slower.
	//
	// A zero value means 6.
	Speed uint

	// Context is used for every tick rendered by Read() and ReadSamples().
	// Use it to put a deadline policy on the device submissions.
	//
	// A nil value means context.Background().
	Context context.Context
}

// NewStream allocates a stream that plays modules through the mixer.
// Use LoadModule method to finish stream initialization.
//
// The mixer should not be shared between the streams.
func NewStream(m *Mixer) *Stream {
	return &Stream{
		mixer: m,
		settings: streamSettings{
			volumeScaling: 0.8,
		},
	}
}

// SetEventHandler installs an event listener to the stream.
//
// f is called on every stream event.
//
// Events are produced when the module is being played.
// Therefore, calling Read() may produce multiple events.
func (s *Stream) SetEventHandler(f func(e StreamEvent)) {
	s.settings.eventHandler = f
}

// SetVolume adjusts the global volume scaling for the stream.
// The default value is 0.8; a value of 0 disables the sound.
// The value is clamped in [0, 1].
func (s *Stream) SetVolume(v float64) {
	s.settings.volumeScaling = clamp(v, 0, 1)
}

// SetLooping makes the stream restart from the module restart point
// when the song is over. When looping is enabled, Read will never return EOF.
//
// A position jump to an earlier part of the song is followed only
// when looping is enabled; otherwise it ends the song.
func (s *Stream) SetLooping(loop bool) {
	s.settings.loop = loop
	s.seq.loop = loop
}

// LoadModule assigns a new module to this stream.
//
// The module is initialized by the mixer; if the mixer kernel
// is not linked yet, the initialization is deferred and
// Read will report ErrNotReady until it's done.
func (s *Stream) LoadModule(m *modfile.Module, config LoadModuleConfig) error {
	applyConfigDefaults(&config)

	if err := s.mixer.InitializeModule(m); err != nil {
		return err
	}
	s.module = m
	s.config = config
	s.closed = false

	// Call a rewind() that won't trigger a Sync event.
	return s.rewind()
}

func applyConfigDefaults(config *LoadModuleConfig) {
	if config.BPM == 0 {
		config.BPM = defaultBPM
	}
	config.BPM = uint(clamp(int(config.BPM), minBPM, maxBPM))
	if config.Speed == 0 {
		config.Speed = defaultSpeed
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
}

// Seek partially implements io.Seeker.
//
// You can use it for two things:
//  1. (0, SeekStart) for rewind
//  2. (0, SeekCurrent) to get the byte pos inside the stream
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		if offset == 0 {
			if err := s.Rewind(); err != nil {
				return 0, err
			}
			return 0, nil
		}

	case io.SeekCurrent:
		if offset == 0 {
			return int64(s.bytePos), nil
		}
	}

	return 0, errors.New("unsupported Seek call")
}

// Read puts next PCM bytes into provided slice.
//
// Every frame takes 4 bytes: two 16-bit LE samples, left and right.
// A tail of b that can't fit a whole frame is left untouched.
//
// When stream has no bytes to produce, io.EOF error is returned.
func (s *Stream) Read(b []byte) (int, error) {
	const bytesPerFrame = 4

	s.scratch = resizeFloats(s.scratch, (len(b)/bytesPerFrame)*2)
	n, err := s.ReadSamples(s.scratch)
	for i := 0; i < n; i += 2 {
		putPCM(b[i*2:], s.scratch[i], s.scratch[i+1])
	}
	written := n * 2
	s.bytePos += written
	return written, err
}

// ReadSamples fills dst with interleaved stereo float32 samples.
// It returns the number of values written, always a multiple of 2.
//
// When stream has no samples to produce, io.EOF error is returned.
func (s *Stream) ReadSamples(dst []float32) (int, error) {
	if s.closed || s.module == nil {
		return 0, io.EOF
	}

	written := 0
	dst = dst[:len(dst)&^1]
	for written < len(dst) {
		if s.tickPos >= len(s.tickBuf) {
			ok, err := s.renderTick()
			if err != nil {
				return written, err
			}
			if !ok {
				if written == 0 {
					return 0, io.EOF
				}
				break
			}
		}
		n := copy(dst[written:], s.tickBuf[s.tickPos:])
		volume := float32(s.settings.volumeScaling)
		for i := written; i < written+n; i++ {
			dst[i] *= volume
		}
		s.tickPos += n
		written += n
	}

	return written, nil
}

func (s *Stream) renderTick() (bool, error) {
	// Don't advance the song if the tick can't be rendered.
	if err := s.mixer.Ready(); err != nil {
		return false, err
	}

	pos, ok := s.seq.nextTick()
	if !ok {
		return false, nil
	}

	if pos.tick == 0 && s.settings.eventHandler != nil {
		s.emitNoteEvents(pos)
	}

	if err := s.mixer.UploadPattern(pos.pattern); err != nil {
		return false, err
	}
	out, err := s.mixer.AdvanceTick(s.config.Context, TickParams{
		Row:    pos.row,
		Tick:   pos.tick,
		Frames: calcSamplesPerTick(s.mixer.SampleRate(), s.seq.bpm),
	})
	if err != nil {
		return false, err
	}

	s.tickBuf = append(s.tickBuf[:0], out.Mixed...)
	s.tickPos = 0
	s.t += calcSecondsPerTick(s.seq.bpm)
	return true, nil
}

func (s *Stream) emitNoteEvents(pos songPosition) {
	for ch, n := range pos.pattern.Divisions[pos.row].Notes {
		if n.Period == 0 {
			continue
		}
		instID := noInstrument
		vol := float32(-1)
		if n.Instrument != 0 && int(n.Instrument) <= modfile.NumSamples {
			instID = int(n.Instrument) - 1
			vol = float32(min(s.module.Samples[instID].Volume, 64)) / 64
		}
		if n.Effect.Command == 0xC {
			vol = float32(min(n.Effect.Data, 64)) / 64
		}
		value := uint64(n.Period) | uint64(instID)<<16 | uint64(math.Float32bits(vol))<<24
		s.settings.eventHandler(StreamEvent{
			Kind:    EventNote,
			Channel: ch,
			Time:    s.t,
			value:   value,
		})
	}
}

// Rewind prepares the stream to play the module right from the start.
// Doing rewind is relatively cheap.
func (s *Stream) Rewind() error {
	if s.settings.eventHandler != nil {
		s.settings.eventHandler(StreamEvent{
			Kind:  EventSync,
			Time:  s.t,
			value: math.Float64bits(0),
		})
	}
	return s.rewind()
}

func (s *Stream) rewind() error {
	speed := int(s.config.Speed)
	if s.settings.speedOverride != 0 {
		speed = s.settings.speedOverride
	}
	s.seq.loop = s.settings.loop
	s.seq.rowLimit = s.settings.rowLimit
	s.seq.reset(s.module, speed, int(s.config.BPM))

	s.tickBuf = s.tickBuf[:0]
	s.tickPos = 0
	s.bytePos = 0
	s.t = 0

	// The module initialization may still be pending:
	// the channel state will be all zeros once it's done anyway.
	if err := s.mixer.resetChannels(); err != nil && !errors.Is(err, ErrNotReady) {
		return err
	}
	return nil
}

// GetInfo returns stream-related info.
// See StreamInfo for more details.
func (s *Stream) GetInfo() StreamInfo {
	const bytesPerFrame = 4
	bpm := s.seq.bpm
	if bpm == 0 {
		bpm = defaultBPM
	}
	info := StreamInfo{
		BytesPerTick:    uint(calcSamplesPerTick(s.mixer.SampleRate(), bpm) * bytesPerFrame),
		MaxBytesPerTick: uint(s.mixer.MaxFrames() * bytesPerFrame),
	}
	if s.module != nil {
		info.MemoryUsage = moduleSize(s.module)
	}
	return info
}

func (s *Stream) SampleRate() int { return s.mixer.SampleRate() }

// Channels reports the number of output channels; it's always stereo.
func (s *Stream) Channels() int { return 2 }

// BufSize is the number of samples produced by the longest tick.
func (s *Stream) BufSize() int { return s.mixer.MaxFrames() * 2 }

// Close makes the stream report EOF.
// The mixer is not destroyed: it's owned by the caller.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}

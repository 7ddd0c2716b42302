package modmix

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/quasilyte/modmix/gpu"
	"github.com/quasilyte/modmix/modfile"
)

var (
	// ErrNotReady is returned by the operations that require an initialized module.
	ErrNotReady = errors.New("mixer is not ready")

	// ErrDestroyed is returned by any operation after Destroy.
	ErrDestroyed = errors.New("mixer is destroyed")
)

// MixerState is the mixer lifecycle state.
//
//	Uninitialized -> Compiling -> Linked -> Ready -> Destroyed
//
// A module passed to InitializeModule before the link is initialized
// in the Linked state, right before the mixer becomes Ready.
// Ready is kept after every tick. Failed is a terminal state
// entered on kernel compile/link failures and invariant violations.
type MixerState int

const (
	StateUninitialized MixerState = iota
	StateCompiling
	StateLinked
	StateReady
	StateFailed
	StateDestroyed
)

func (s MixerState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCompiling:
		return "compiling"
	case StateLinked:
		return "linked"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("MixerState(%d)", int(s))
	}
}

// Interpolation selects the sample interpolation method.
type Interpolation int

const (
	InterpolationNone Interpolation = iota
	InterpolationLinear

	// InterpolationOptimal is a 6-point, 5th-order polynomial interpolation.
	InterpolationOptimal
)

// MixerConfig configures the mixer.
//
// These settings can't be changed after the mixer is created.
type MixerConfig struct {
	// The output sample rate.
	//
	// A zero value will assume a sample rate of 44100.
	SampleRate int

	// A zero value means "no interpolation",
	// which is closer to how the original hardware sounded.
	Interpolation Interpolation

	// StereoSeparation controls the Amiga LRRL channel panning.
	// 1 is a full hard panning.
	//
	// A zero value means 0.5.
	// Use a negative value to get a mono mix.
	StereoSeparation float64

	// Gain is applied to the stereo mix.
	// Four channels at full volume can reach 4.0 without it.
	//
	// A zero value means 0.5.
	Gain float64
}

// TickParams describe a single tick to render.
type TickParams struct {
	// Row is a division index inside the uploaded pattern.
	Row int

	// Tick is a tick index inside the row.
	// Row notes are triggered on the tick 0.
	Tick int

	// Frames is the number of audio frames to render.
	// It must be in [1, MaxFrames()].
	Frames int
}

// TickOutput is the result of a single tick.
//
// The slices are owned by the mixer: they're only valid until the next AdvanceTick call.
type TickOutput struct {
	Frames int

	// Mixed holds the interleaved stereo samples (left, right).
	Mixed []float32

	// Channels hold the per-channel audio.
	Channels [][]float32

	// State is the channel state that will be used by the next tick.
	State []float32
}

// Mixer runs the mixing kernel on a gpu.Device.
//
// The kernel sources arrive via OnVertexKernelLoaded and OnFragmentKernelLoaded,
// in any order and possibly from other goroutines.
// A module passed to InitializeModule before the kernel is linked
// is kept pending and gets initialized as soon as the mixer becomes ready.
//
// All Mixer methods are safe for concurrent use, but ticks are
// always executed one after another.
type Mixer struct {
	mu sync.Mutex

	dev       gpu.Device
	config    MixerConfig
	maxFrames int

	state MixerState
	err   error

	// pending is the deferred module initialization payload.
	pending *modfile.Module

	vertex   gpu.Stage
	fragment gpu.Stage
	program  gpu.Program

	module *module
	res    moduleResources
	serial int

	out        TickOutput
	patternBuf []float32
	stateBuf   []float32
}

func NewMixer(dev gpu.Device, config MixerConfig) *Mixer {
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	switch {
	case config.StereoSeparation == 0:
		config.StereoSeparation = 0.5
	case config.StereoSeparation < 0:
		config.StereoSeparation = 0
	}
	config.StereoSeparation = clamp(config.StereoSeparation, 0, 1)
	if config.Gain == 0 {
		config.Gain = 0.5
	}
	return &Mixer{
		dev:       dev,
		config:    config,
		maxFrames: maxFramesPerTick(config.SampleRate),
	}
}

// State reports the current lifecycle state.
func (m *Mixer) State() MixerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error that moved the mixer into the failed state.
func (m *Mixer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Ready returns nil if the mixer can execute ticks.
// Otherwise it returns the reason why it can't.
func (m *Mixer) Ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkReady()
}

func (m *Mixer) SampleRate() int { return m.config.SampleRate }

// MaxFrames is the upper bound for TickParams.Frames.
func (m *Mixer) MaxFrames() int { return m.maxFrames }

func (m *Mixer) OnVertexKernelLoaded(src string) error {
	return m.onKernelLoaded(gpu.VertexStage, src)
}

func (m *Mixer) OnFragmentKernelLoaded(src string) error {
	return m.onKernelLoaded(gpu.FragmentStage, src)
}

func (m *Mixer) onKernelLoaded(kind gpu.StageKind, src string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAlive(); err != nil {
		return err
	}
	if m.state != StateUninitialized && m.state != StateCompiling {
		return fmt.Errorf("%s kernel is loaded in the %s state", kind, m.state)
	}

	m.state = StateCompiling
	stage, err := m.dev.CompileStage(kind, src)
	if err != nil {
		return m.fail(fmt.Errorf("compile %s kernel: %w", kind, err))
	}
	if kind == gpu.VertexStage {
		m.vertex = stage
	} else {
		m.fragment = stage
	}
	if m.vertex == nil || m.fragment == nil {
		return nil
	}

	program, err := m.dev.LinkProgram(m.vertex, m.fragment)
	if err != nil {
		return m.fail(fmt.Errorf("link kernel: %w", err))
	}
	m.program = program
	m.state = StateLinked

	// The deferred module is applied before the mixer becomes ready,
	// a failed initialization never reaches Ready.
	if m.pending != nil {
		pending := m.pending
		m.pending = nil
		if err := m.initializeModule(pending); err != nil {
			return err
		}
	}
	m.state = StateReady
	return nil
}

// InitializeModule allocates the device resources for the module.
// The resources of a previously initialized module are released.
//
// If the kernel is not linked yet, the module is remembered
// and initialized once the mixer becomes ready.
// Only the most recent pending module is kept.
func (m *Mixer) InitializeModule(mod *modfile.Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAlive(); err != nil {
		return err
	}
	if mod == nil || mod.NumChannels <= 0 {
		return errors.New("initialize module: a module with at least 1 channel is expected")
	}
	if m.state != StateReady {
		m.pending = mod
		return nil
	}
	return m.initializeModule(mod)
}

func (m *Mixer) initializeModule(mod *modfile.Module) error {
	m.res.release()
	m.module = nil

	compiled := compileModule(mod, moduleConfig{
		sampleRate: m.config.SampleRate,
		maxFrames:  m.maxFrames,
	})
	n := compiled.numChannels()

	var err error
	res := &m.res
	if res.atlas, err = m.dev.NewBuffer(AtlasWidth, AtlasHeight); err != nil {
		return m.fail(fmt.Errorf("allocate sample atlas: %w", err))
	}
	if err := m.dev.Upload(res.atlas, PackSampleAtlas(mod.Samples[:])); err != nil {
		return m.fail(fmt.Errorf("upload sample atlas: %w", err))
	}
	if res.pattern, err = m.dev.NewBuffer(n*2, modfile.NumDivisions); err != nil {
		return m.fail(fmt.Errorf("allocate pattern buffer: %w", err))
	}
	if res.target, err = m.dev.NewBuffer(StateWidth+m.maxFrames, n+1); err != nil {
		return m.fail(fmt.Errorf("allocate render target: %w", err))
	}
	if res.state, err = newStateArena(m.dev, n); err != nil {
		return m.fail(err)
	}
	res.readback = resizeFloats(res.readback, gpu.TexelCount(res.target)*texelSize)

	m.module = compiled
	return nil
}

// UploadPattern replaces the pattern buffer contents.
// A nil pattern is uploaded as an empty one.
func (m *Mixer) UploadPattern(p *modfile.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return err
	}

	var data []float32
	if i := m.module.patternIndex(p); i != -1 {
		data = m.module.patterns[i]
	} else {
		if p == nil {
			empty := modfile.NewPattern(m.module.numChannels())
			p = &empty
		}
		m.patternBuf = packPattern(m.patternBuf, m.module.src, p)
		data = m.patternBuf
	}

	if err := m.dev.Upload(m.res.pattern, data); err != nil {
		return m.fail(fmt.Errorf("upload pattern: %w", err))
	}
	return nil
}

// repackPattern updates the packed form of the module pattern i
// after its notes were modified.
func (m *Mixer) repackPattern(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.module == nil || i >= len(m.module.patterns) {
		return
	}
	m.module.patterns[i] = packPattern(m.module.patterns[i], m.module.src, &m.module.src.Patterns[i])
}

// AdvanceTick executes one kernel pass and waits for its results.
//
// The pass reads the current channel state, the uploaded pattern and
// the sample atlas; the next channel state becomes current afterwards.
//
// Any pass failure, including ctx cancellation, aborts the session:
// the resources are released and the mixer enters the failed state.
func (m *Mixer) AdvanceTick(ctx context.Context, params TickParams) (*TickOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return nil, err
	}
	if params.Frames <= 0 || params.Frames > m.maxFrames {
		return nil, m.fail(gpu.Invariantf("advance tick: frames=%d is out of [1, %d]", params.Frames, m.maxFrames))
	}
	if params.Row < 0 || params.Row >= modfile.NumDivisions || params.Tick < 0 {
		return nil, m.fail(gpu.Invariantf("advance tick: bad position row=%d tick=%d", params.Row, params.Tick))
	}

	m.serial++
	n := m.module.numChannels()
	pass := &gpu.Pass{
		Program: m.program,
		Target:  m.res.target,
		Scissor: image.Rect(0, 0, StateWidth+params.Frames, n+1),
		Samplers: map[string]gpu.Buffer{
			"state":   m.res.state.front(),
			"pattern": m.res.pattern,
			"samples": m.res.atlas,
		},
		Uniforms: map[string]float64{
			"row":        float64(params.Row),
			"tick":       float64(params.Tick),
			"frames":     float64(params.Frames),
			"sampleRate": float64(m.module.config.sampleRate),
			"gain":       m.config.Gain,
			"interp":     float64(m.config.Interpolation),
			"separation": m.config.StereoSeparation,
			"channels":   float64(n),
			"serial":     float64(m.serial),
		},
	}
	if err := m.dev.Run(ctx, pass); err != nil {
		return nil, m.fail(fmt.Errorf("advance tick: %w", err))
	}
	if err := m.dev.ReadPixels(m.res.target, m.res.readback); err != nil {
		return nil, m.fail(fmt.Errorf("advance tick: %w", err))
	}
	if err := m.res.state.commit(m.res.target); err != nil {
		return nil, m.fail(fmt.Errorf("advance tick: %w", err))
	}

	return m.collectOutput(params.Frames, n), nil
}

func (m *Mixer) collectOutput(frames, n int) *TickOutput {
	width := StateWidth + m.module.config.maxFrames
	data := m.res.readback
	out := &m.out

	out.Frames = frames
	out.Mixed = resizeFloats(out.Mixed, frames*2)
	mixRow := data[n*width*texelSize:]
	for k := 0; k < frames; k++ {
		i := (StateWidth + k) * texelSize
		out.Mixed[k*2+0] = mixRow[i+0]
		out.Mixed[k*2+1] = mixRow[i+1]
	}

	if len(out.Channels) != n {
		out.Channels = make([][]float32, n)
	}
	out.State = resizeFloats(out.State, n*StateWidth*texelSize)
	for ch := 0; ch < n; ch++ {
		row := data[ch*width*texelSize:]
		copy(out.State[ch*StateWidth*texelSize:], row[:StateWidth*texelSize])
		samples := resizeFloats(out.Channels[ch], frames)
		for k := range samples {
			samples[k] = row[(StateWidth+k)*texelSize]
		}
		out.Channels[ch] = samples
	}

	return out
}

// ChannelStates decodes the current channel state.
func (m *Mixer) ChannelStates() ([]ChannelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return nil, err
	}
	data, err := m.res.state.read(m.stateBuf)
	if err != nil {
		return nil, m.fail(err)
	}
	m.stateBuf = data
	return decodeChannelStates(data), nil
}

// resetChannels puts all channels into the initial silent state.
func (m *Mixer) resetChannels() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return err
	}
	if err := m.res.state.reset(); err != nil {
		return m.fail(err)
	}
	return nil
}

// Destroy releases all device resources.
// The mixer can't be used after that.
func (m *Mixer) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDestroyed {
		return
	}
	m.releaseAll()
	m.state = StateDestroyed
}

func (m *Mixer) releaseAll() {
	m.res.release()
	m.module = nil
	m.pending = nil
	if m.program != nil {
		m.program.Release()
		m.program = nil
	}
	m.vertex = nil
	m.fragment = nil
}

func (m *Mixer) fail(err error) error {
	m.releaseAll()
	m.state = StateFailed
	m.err = err
	return err
}

func (m *Mixer) checkAlive() error {
	switch m.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateFailed:
		return m.err
	}
	return nil
}

func (m *Mixer) checkReady() error {
	if err := m.checkAlive(); err != nil {
		return err
	}
	if m.state != StateReady || m.module == nil {
		return ErrNotReady
	}
	return nil
}

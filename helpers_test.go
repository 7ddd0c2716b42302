package modmix

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/quasilyte/modmix/gpu"
	"github.com/quasilyte/modmix/gpu/softgpu"
	"github.com/quasilyte/modmix/kernels"
	"github.com/quasilyte/modmix/modfile"
)

// The tests use a low sample rate to keep the kernel passes short.
const testSampleRate = 8000

// countingDevice tracks the buffer allocations of the wrapped device.
type countingDevice struct {
	gpu.Device
	buffers atomic.Int64
	passes  atomic.Int64
}

func (d *countingDevice) NewBuffer(w, h int) (gpu.Buffer, error) {
	d.buffers.Add(1)
	return d.Device.NewBuffer(w, h)
}

func (d *countingDevice) Run(ctx context.Context, pass *gpu.Pass) error {
	d.passes.Add(1)
	return d.Device.Run(ctx, pass)
}

func newTestDevice() *countingDevice {
	return &countingDevice{Device: softgpu.New(softgpu.Config{Workers: 2})}
}

func newTestMixer(t *testing.T, config MixerConfig) *Mixer {
	t.Helper()
	if config.SampleRate == 0 {
		config.SampleRate = testSampleRate
	}
	m := NewMixer(newTestDevice(), config)
	if err := kernels.Load(context.Background(), m, kernels.LoadConfig{}); err != nil {
		t.Fatalf("load kernels: %v", err)
	}
	t.Cleanup(m.Destroy)
	return m
}

func squareWave(n int) []int8 {
	data := make([]int8, n)
	for i := range data {
		if i < n/2 {
			data[i] = 64
		} else {
			data[i] = -64
		}
	}
	return data
}

// newTestModule creates a 4-channel module with a looped square wave
// instrument and the specified number of empty patterns.
// Every pattern is played once, in order.
func newTestModule(numPatterns int) *modfile.Module {
	m := &modfile.Module{
		Name:        "test",
		Tag:         "M.K.",
		NumChannels: modfile.DefaultChannels,
		SongLength:  numPatterns,
	}
	m.Samples[0] = modfile.SampleInfo{
		Name:       "square",
		Length:     32,
		Volume:     64,
		LoopStart:  0,
		LoopLength: 32,
		Data:       squareWave(32),
	}
	for i := 0; i < numPatterns; i++ {
		m.Patterns = append(m.Patterns, modfile.NewPattern(m.NumChannels))
		m.PatternOrder[i] = uint8(i)
	}
	return m
}

func setNote(m *modfile.Module, pattern, row, ch int, n modfile.Note) {
	m.Patterns[pattern].Divisions[row].Notes[ch] = n
}

func isSilent(samples []float32) bool {
	for _, v := range samples {
		if v != 0 {
			return false
		}
	}
	return true
}

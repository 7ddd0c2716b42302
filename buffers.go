package modmix

import (
	"fmt"
	"image"

	"github.com/quasilyte/modmix/gpu"
)

// stateArena is a double-buffered channel state storage.
//
// The front buffer is read by the current pass, the back buffer
// receives the next state. The buffers swap their roles after every tick,
// so the state being written is never bound as a pass input.
type stateArena struct {
	dev         gpu.Device
	bufs        [2]gpu.Buffer
	parity      int
	numChannels int
}

func newStateArena(dev gpu.Device, numChannels int) (*stateArena, error) {
	a := &stateArena{dev: dev, numChannels: numChannels}
	for i := range a.bufs {
		b, err := dev.NewBuffer(StateWidth, numChannels)
		if err != nil {
			a.release()
			return nil, fmt.Errorf("allocate channel state: %w", err)
		}
		a.bufs[i] = b
	}
	if err := a.reset(); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *stateArena) front() gpu.Buffer { return a.bufs[a.parity] }

func (a *stateArena) back() gpu.Buffer { return a.bufs[a.parity^1] }

// commit copies the state part of the render target into
// the back buffer and makes it the new front buffer.
func (a *stateArena) commit(target gpu.Buffer) error {
	r := image.Rect(0, 0, StateWidth, a.numChannels)
	if err := a.dev.Copy(a.back(), image.Point{}, target, r); err != nil {
		return fmt.Errorf("commit channel state: %w", err)
	}
	a.parity ^= 1
	return nil
}

// reset puts all channels into the silent initial state.
func (a *stateArena) reset() error {
	initial := zeros(StateWidth * a.numChannels * texelSize)
	for _, b := range a.bufs {
		if err := a.dev.Upload(b, initial); err != nil {
			return fmt.Errorf("reset channel state: %w", err)
		}
	}
	a.parity = 0
	return nil
}

func (a *stateArena) read(dst []float32) ([]float32, error) {
	dst = resizeFloats(dst, StateWidth*a.numChannels*texelSize)
	if err := a.dev.ReadPixels(a.front(), dst); err != nil {
		return nil, fmt.Errorf("read channel state: %w", err)
	}
	return dst, nil
}

func (a *stateArena) release() {
	for i, b := range a.bufs {
		if b != nil {
			b.Release()
			a.bufs[i] = nil
		}
	}
}

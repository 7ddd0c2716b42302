// Package softgpu is a reference gpu.Device implementation that runs on the CPU.
//
// Kernel stages are written in Lua 5.1. A vertex stage defines a global
// vertex(x, y, u, v) function that returns the transformed quad corner;
// a fragment stage defines fragment(x, y, u, v) that returns r, g, b, a
// of a single target texel. Pass samplers are exposed as globals
// readable with the texel(sampler, x, y) builtin; pass uniforms are numeric globals.
package softgpu

import (
	"fmt"
	"image"
	"runtime"

	"github.com/quasilyte/modmix/gpu"
)

// Config configures the device.
type Config struct {
	// Workers is the number of goroutines used to shade a pass.
	// Every worker owns its own interpreter state per linked program.
	//
	// A zero value means "use GOMAXPROCS".
	Workers int

	// MaxBufferSize limits the width and height of allocated buffers.
	//
	// A zero value means 16384.
	MaxBufferSize int
}

// Device is a CPU-backed compute device.
// Just like a real GPU context, it must not be used concurrently.
type Device struct {
	config Config
}

var _ gpu.Device = (*Device)(nil)

func New(config Config) *Device {
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = 16384
	}
	return &Device{config: config}
}

type buffer struct {
	dev    *Device
	width  int
	height int
	data   []float32 // nil after Release
}

func (b *buffer) Bounds() image.Rectangle { return image.Rect(0, 0, b.width, b.height) }

func (b *buffer) Release() { b.data = nil }

func (b *buffer) at(x, y int) []float32 {
	i := 4 * (y*b.width + x)
	return b.data[i : i+4 : i+4]
}

func (d *Device) NewBuffer(w, h int) (gpu.Buffer, error) {
	if w <= 0 || h <= 0 || w > d.config.MaxBufferSize || h > d.config.MaxBufferSize {
		return nil, gpu.Invariantf("bad buffer size %dx%d", w, h)
	}
	b := &buffer{
		dev:    d,
		width:  w,
		height: h,
		data:   make([]float32, 4*w*h),
	}
	return b, nil
}

func (d *Device) Upload(dst gpu.Buffer, data []float32) error {
	b, err := d.checkBuffer(dst)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if len(data) != len(b.data) {
		return gpu.Invariantf("upload: %d values for a %dx%d buffer", len(data), b.width, b.height)
	}
	copy(b.data, data)
	return nil
}

func (d *Device) ReadPixels(src gpu.Buffer, dst []float32) error {
	b, err := d.checkBuffer(src)
	if err != nil {
		return fmt.Errorf("read pixels: %w", err)
	}
	if len(dst) != len(b.data) {
		return gpu.Invariantf("read pixels: %d values for a %dx%d buffer", len(dst), b.width, b.height)
	}
	copy(dst, b.data)
	return nil
}

func (d *Device) Copy(dst gpu.Buffer, dp image.Point, src gpu.Buffer, r image.Rectangle) error {
	to, err := d.checkBuffer(dst)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	from, err := d.checkBuffer(src)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if to == from {
		return gpu.Invariantf("copy: src and dst are the same buffer")
	}
	if !r.In(from.Bounds()) {
		return gpu.Invariantf("copy: %v is outside of the src %v", r, from.Bounds())
	}
	if !r.Sub(r.Min).Add(dp).In(to.Bounds()) {
		return gpu.Invariantf("copy: %v at %v is outside of the dst %v", r, dp, to.Bounds())
	}
	for y := 0; y < r.Dy(); y++ {
		srcOffset := 4 * ((r.Min.Y+y)*from.width + r.Min.X)
		dstOffset := 4 * ((dp.Y+y)*to.width + dp.X)
		copy(to.data[dstOffset:dstOffset+4*r.Dx()], from.data[srcOffset:])
	}
	return nil
}

func (d *Device) checkBuffer(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil {
		return nil, gpu.Invariantf("foreign buffer %T", b)
	}
	if buf.dev != d {
		return nil, gpu.Invariantf("buffer belongs to another device")
	}
	if buf.data == nil {
		return nil, gpu.Invariantf("buffer is released")
	}
	return buf, nil
}

// Package gpu describes the compute device the mixer is running on.
//
// A device owns 2D buffers of RGBA float32 texels and can execute
// a full-screen pass of a linked kernel program into one of them.
// The mixer only talks to the device through the Device interface,
// so a hardware backend and the software reference device are interchangeable.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrCompileFailure is reported when a kernel stage source can't be compiled.
	ErrCompileFailure = errors.New("kernel compile failure")

	// ErrLinkFailure is reported when two compiled stages can't form a program.
	ErrLinkFailure = errors.New("kernel link failure")

	// ErrInvariantViolation is a programming error class:
	// buffer size mismatches, aliased pass bindings, kernel faults.
	ErrInvariantViolation = errors.New("invariant violation")
)

// StageKind selects a kernel stage.
type StageKind int

const (
	VertexStage StageKind = iota
	FragmentStage
)

func (k StageKind) String() string {
	switch k {
	case VertexStage:
		return "vertex"
	case FragmentStage:
		return "fragment"
	default:
		return fmt.Sprintf("stage(%d)", int(k))
	}
}

// Stage is a compiled kernel stage.
type Stage interface {
	Kind() StageKind
}

// Program is a linked vertex+fragment pair.
type Program interface {
	Release()
}

// Buffer is a device-resident 2D texel array.
//
// Its contents can only be accessed via the Device methods.
type Buffer interface {
	Bounds() image.Rectangle
	Release()
}

// Pass describes a single kernel invocation over Target.
type Pass struct {
	Program Program
	Target  Buffer

	// Scissor limits the shaded area.
	// An empty rectangle means "the whole target".
	Scissor image.Rectangle

	// Samplers are read-only buffer bindings, accessible by name.
	// Target can't be bound as a sampler in the same pass.
	Samplers map[string]Buffer

	// Uniforms are named scalar inputs.
	Uniforms map[string]float64
}

// Device is a compute device.
//
// Device methods are not required to be thread-safe;
// callers serialize access to a device.
type Device interface {
	// CompileStage compiles the kernel stage source.
	// The error wraps ErrCompileFailure on a bad source.
	CompileStage(kind StageKind, src string) (Stage, error)

	// LinkProgram creates a program out of two stages.
	// The error wraps ErrLinkFailure.
	LinkProgram(vs, fs Stage) (Program, error)

	// NewBuffer allocates a zero-filled w*h buffer.
	NewBuffer(w, h int) (Buffer, error)

	// Upload replaces the whole dst contents.
	// len(data) must be 4*w*h (RGBA, row-major).
	Upload(dst Buffer, data []float32) error

	// ReadPixels copies the whole src contents into dst.
	// len(dst) must be 4*w*h.
	ReadPixels(src Buffer, dst []float32) error

	// Copy copies the r area of src into dst at dp.
	// Both areas must be inside their buffers and
	// dst can't be the same buffer as src.
	Copy(dst Buffer, dp image.Point, src Buffer, r image.Rectangle) error

	// Run executes one pass and waits for its completion.
	Run(ctx context.Context, pass *Pass) error
}

// TexelCount returns the number of texels inside the buffer.
func TexelCount(b Buffer) int {
	r := b.Bounds()
	return r.Dx() * r.Dy()
}

// Invariantf creates an error that wraps ErrInvariantViolation.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

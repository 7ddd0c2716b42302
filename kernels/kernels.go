// Package kernels provides the mixing kernel sources and a loader for them.
package kernels

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"golang.org/x/sync/errgroup"
)

const (
	VertexPath   = "mix.vert.lua"
	FragmentPath = "mix.frag.lua"
)

// Files holds the default kernel sources.
//
//go:embed mix.vert.lua mix.frag.lua
var Files embed.FS

// Receiver accepts the loaded kernel stages.
// The stages can arrive in any order and from different goroutines.
type Receiver interface {
	OnVertexKernelLoaded(src string) error
	OnFragmentKernelLoaded(src string) error
}

// LoadConfig selects the kernel sources.
type LoadConfig struct {
	// FS is a kernel sources file system.
	// A nil value means "use Files".
	FS fs.FS

	// VertexPath and FragmentPath are file paths inside FS.
	// Empty values select the default kernels.
	VertexPath   string
	FragmentPath string
}

// Load reads both kernel stages concurrently and hands them over to r
// as soon as each one of them is ready.
//
// The first error stops the loading; a stage that was already
// delivered is not revoked.
func Load(ctx context.Context, r Receiver, config LoadConfig) error {
	if config.FS == nil {
		config.FS = Files
	}
	if config.VertexPath == "" {
		config.VertexPath = VertexPath
	}
	if config.FragmentPath == "" {
		config.FragmentPath = FragmentPath
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		src, err := readSource(ctx, config.FS, config.VertexPath)
		if err != nil {
			return err
		}
		return r.OnVertexKernelLoaded(src)
	})
	g.Go(func() error {
		src, err := readSource(ctx, config.FS, config.FragmentPath)
		if err != nil {
			return err
		}
		return r.OnFragmentKernelLoaded(src)
	})
	return g.Wait()
}

// MustSource returns an embedded kernel source by its path.
func MustSource(path string) string {
	data, err := Files.ReadFile(path)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func readSource(ctx context.Context, fsys fs.FS, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return "", fmt.Errorf("load %s kernel: %w", path, err)
	}
	return string(data), nil
}

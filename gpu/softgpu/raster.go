package softgpu

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/quasilyte/modmix/gpu"
)

type vertex struct {
	X, Y float64 // Target coordinates
	U, V float64
}

// fullScreenQuad is expressed in clip space.
// Y=-1 maps to the first target row.
var fullScreenQuad = [4]vertex{
	{X: -1, Y: -1, U: 0, V: 0},
	{X: 1, Y: -1, U: 1, V: 0},
	{X: 1, Y: 1, U: 1, V: 1},
	{X: -1, Y: 1, U: 0, V: 1},
}

var quadTriangles = [2][3]int{
	{0, 1, 2},
	{0, 2, 3},
}

type triangle [3]vertex

func (d *Device) Run(ctx context.Context, pass *gpu.Pass) error {
	p, ok := pass.Program.(*program)
	if !ok || p.dev != d || len(p.workers) == 0 {
		return gpu.Invariantf("run: bad program")
	}
	target, err := d.checkBuffer(pass.Target)
	if err != nil {
		return fmt.Errorf("run: target: %w", err)
	}
	for name, s := range pass.Samplers {
		b, err := d.checkBuffer(s)
		if err != nil {
			return fmt.Errorf("run: sampler %q: %w", name, err)
		}
		if b == target {
			return gpu.Invariantf("run: sampler %q is aliased with the render target", name)
		}
	}

	area := target.Bounds()
	if !pass.Scissor.Empty() {
		area = area.Intersect(pass.Scissor)
	}

	clear(target.data)
	if area.Empty() {
		return nil
	}

	for _, ks := range p.workers {
		ks.bind(pass)
	}
	tris, err := p.workers[0].setupTriangles(target.width, target.height)
	if err != nil {
		return err
	}

	numWorkers := min(len(p.workers), area.Dy())
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		ks := p.workers[i]
		g.Go(func() error {
			covered := make([]bool, target.width)
			for y := area.Min.Y + i; y < area.Max.Y; y += numWorkers {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := ks.shadeRow(target, tris, area, y, covered); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// setupTriangles runs the vertex stage over the quad corners.
func (ks *kernelState) setupTriangles(width, height int) ([2]triangle, error) {
	var corners [4]vertex
	for i, v := range fullScreenQuad {
		out, err := ks.call4(ks.vertex, v.X, v.Y, v.U, v.V)
		if err != nil {
			return [2]triangle{}, gpu.Invariantf("vertex kernel fault: %v", err)
		}
		corners[i] = vertex{
			X: (out[0] + 1) * 0.5 * float64(width),
			Y: (out[1] + 1) * 0.5 * float64(height),
			U: out[2],
			V: out[3],
		}
	}
	var tris [2]triangle
	for i, indexes := range quadTriangles {
		for j, k := range indexes {
			tris[i][j] = corners[k]
		}
	}
	return tris, nil
}

// shadeRow executes the fragment stage for every texel of the row y
// that is covered by the quad. A texel on the shared edge is
// shaded by the first triangle only.
func (ks *kernelState) shadeRow(target *buffer, tris [2]triangle, area image.Rectangle, y int, covered []bool) error {
	for x := area.Min.X; x < area.Max.X; x++ {
		covered[x] = false
	}

	py := float64(y) + 0.5
	for i := range tris {
		v0, v1, v2 := &tris[i][0], &tris[i][1], &tris[i][2]

		triArea := edgeFunction(v0.X, v0.Y, v1.X, v1.Y, v2.X, v2.Y)
		if triArea == 0 {
			continue
		}
		if triArea < 0 {
			v0, v2 = v2, v0
			triArea = -triArea
		}
		invArea := 1.0 / triArea

		for x := area.Min.X; x < area.Max.X; x++ {
			if covered[x] {
				continue
			}
			px := float64(x) + 0.5
			w0 := edgeFunction(v1.X, v1.Y, v2.X, v2.Y, px, py)
			w1 := edgeFunction(v2.X, v2.Y, v0.X, v0.Y, px, py)
			w2 := edgeFunction(v0.X, v0.Y, v1.X, v1.Y, px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			w0 *= invArea
			w1 *= invArea
			w2 *= invArea
			u := w0*v0.U + w1*v1.U + w2*v2.U
			v := w0*v0.V + w1*v1.V + w2*v2.V

			out, err := ks.call4(ks.fragment, float64(x), float64(y), u, v)
			if err != nil {
				return gpu.Invariantf("fragment kernel fault at (%d, %d): %v", x, y, err)
			}
			dst := target.at(x, y)
			dst[0] = float32(out[0])
			dst[1] = float32(out[1])
			dst[2] = float32(out[2])
			dst[3] = float32(out[3])
			covered[x] = true
		}
	}

	return nil
}

// edgeFunction computes the signed area of a parallelogram.
func edgeFunction(ax, ay, bx, by, cx, cy float64) float64 {
	return (cx-ax)*(by-ay) - (cy-ay)*(bx-ax)
}

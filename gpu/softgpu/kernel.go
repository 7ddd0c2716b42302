package softgpu

import (
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/quasilyte/modmix/gpu"
)

const (
	vertexFuncName   = "vertex"
	fragmentFuncName = "fragment"
	texelFuncName    = "texel"
)

type stage struct {
	kind  gpu.StageKind
	proto *lua.FunctionProto
}

func (s *stage) Kind() gpu.StageKind { return s.kind }

type program struct {
	dev     *Device
	workers []*kernelState
}

// kernelState is a linked program instance owned by a single worker.
type kernelState struct {
	L        *lua.LState
	vertex   *lua.LFunction
	fragment *lua.LFunction
}

func (p *program) Release() {
	for _, w := range p.workers {
		w.L.Close()
	}
	p.workers = nil
}

func (d *Device) CompileStage(kind gpu.StageKind, src string) (gpu.Stage, error) {
	if kind != gpu.VertexStage && kind != gpu.FragmentStage {
		return nil, fmt.Errorf("%w: unexpected %s", gpu.ErrCompileFailure, kind)
	}
	name := kind.String() + " kernel"
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpu.ErrCompileFailure, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpu.ErrCompileFailure, err)
	}
	return &stage{kind: kind, proto: proto}, nil
}

func (d *Device) LinkProgram(vs, fs gpu.Stage) (gpu.Program, error) {
	vertexStage, ok := vs.(*stage)
	if !ok || vertexStage.kind != gpu.VertexStage {
		return nil, fmt.Errorf("%w: bad vertex stage", gpu.ErrLinkFailure)
	}
	fragmentStage, ok := fs.(*stage)
	if !ok || fragmentStage.kind != gpu.FragmentStage {
		return nil, fmt.Errorf("%w: bad fragment stage", gpu.ErrLinkFailure)
	}

	p := &program{dev: d}
	for i := 0; i < d.config.Workers; i++ {
		ks, err := newKernelState(vertexStage.proto, fragmentStage.proto)
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("%w: %v", gpu.ErrLinkFailure, err)
		}
		p.workers = append(p.workers, ks)
	}
	return p, nil
}

func newKernelState(vs, fs *lua.FunctionProto) (*kernelState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, err
		}
	}
	L.SetGlobal(texelFuncName, L.NewFunction(luaTexel))

	vertex, err := loadStage(L, vs, vertexFuncName)
	if err != nil {
		L.Close()
		return nil, err
	}
	fragment, err := loadStage(L, fs, fragmentFuncName)
	if err != nil {
		L.Close()
		return nil, err
	}

	return &kernelState{L: L, vertex: vertex, fragment: fragment}, nil
}

func loadStage(L *lua.LState, proto *lua.FunctionProto, entry string) (*lua.LFunction, error) {
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, err
	}
	fn, ok := L.GetGlobal(entry).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s() is not defined", entry)
	}
	return fn, nil
}

// call4 invokes a kernel entry point with 4 numeric arguments and results.
func (ks *kernelState) call4(fn *lua.LFunction, a, b, c, d float64) (out [4]float64, err error) {
	L := ks.L
	err = L.CallByParam(lua.P{Fn: fn, NRet: 4, Protect: true},
		lua.LNumber(a), lua.LNumber(b), lua.LNumber(c), lua.LNumber(d))
	if err != nil {
		return out, err
	}
	for i := range out {
		out[i] = float64(lua.LVAsNumber(L.Get(i - 4)))
	}
	L.Pop(4)
	return out, nil
}

func (ks *kernelState) bind(pass *gpu.Pass) {
	L := ks.L
	for name, b := range pass.Samplers {
		ud := L.NewUserData()
		ud.Value = b.(*buffer)
		L.SetGlobal(name, ud)
	}
	for name, v := range pass.Uniforms {
		L.SetGlobal(name, lua.LNumber(v))
	}
}

// luaTexel implements texel(sampler, x, y) -> r, g, b, a.
// Coordinates are floored; reads outside of the buffer yield zeros.
func luaTexel(L *lua.LState) int {
	ud := L.CheckUserData(1)
	b, ok := ud.Value.(*buffer)
	if !ok {
		L.ArgError(1, "sampler expected")
		return 0
	}
	x := int(math.Floor(float64(L.CheckNumber(2))))
	y := int(math.Floor(float64(L.CheckNumber(3))))
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		L.Push(lua.LNumber(0))
		L.Push(lua.LNumber(0))
		L.Push(lua.LNumber(0))
		L.Push(lua.LNumber(0))
		return 4
	}
	v := b.at(x, y)
	L.Push(lua.LNumber(v[0]))
	L.Push(lua.LNumber(v[1]))
	L.Push(lua.LNumber(v[2]))
	L.Push(lua.LNumber(v[3]))
	return 4
}

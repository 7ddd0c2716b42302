package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/quasilyte/modmix"
	"github.com/quasilyte/modmix/gpu/softgpu"
	"github.com/quasilyte/modmix/kernels"
	"github.com/quasilyte/modmix/modfile"
)

/*
Amiga periods, octave 2 (finetune 0)
C  = 428
C# = 404
D  = 381
D# = 360
E  = 339
F  = 320
F# = 302
G  = 285
G# = 269
A  = 254
A# = 240
B  = 226

Every next octave halves the period.
*/

// This simple CLI tool plays the specified MOD track using Ebitengine audio player.
//
// Keys 1-4 play a C-2 note with the instruments 1-4.

func main() {
	flag.Usage = func() {
		fmt.Printf("usage: go run ./cmd/ebitengine-example path/to/music.mod\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if len(flag.Args()) < 1 {
		panic("expected at least 1 command-line argument")
	}
	filename := flag.Args()[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		panic(fmt.Errorf("read MOD file: %v", err))
	}
	parser := modfile.NewParser(modfile.ParserConfig{})
	module, err := parser.ParseFromBytes(data)
	if err != nil {
		panic(fmt.Errorf("parsing MOD file: %v", err))
	}

	// Every mixer needs its own kernel program,
	// a stream and a synthesizer can't share one.
	sampleRate := 44100
	newMixer := func() *modmix.Mixer {
		m := modmix.NewMixer(softgpu.New(softgpu.Config{}), modmix.MixerConfig{
			SampleRate: sampleRate,
		})
		if err := kernels.Load(context.Background(), m, kernels.LoadConfig{}); err != nil {
			panic(fmt.Errorf("loading kernels: %v", err))
		}
		return m
	}

	stream := modmix.NewStream(newMixer())
	if err := stream.LoadModule(module, modmix.LoadModuleConfig{}); err != nil {
		panic(fmt.Sprintf("loading MOD module: %v", err))
	}
	stream.SetLooping(true)

	// Create a sound player using the Ebitengine audio context.
	// You can have multiple players, but only one audio context.
	// See Ebitengine docs to learn more.
	audioContext := audio.NewContext(sampleRate)
	player, err := audioContext.NewPlayer(stream)
	if err != nil {
		panic(err)
	}

	g := &game{
		player:   player,
		filename: filename,
		paused:   true,
	}

	g.synth = modmix.NewSynthesizer(newMixer())
	if err := g.synth.LoadInstruments(module); err != nil {
		panic(err)
	}
	{
		player, err := audioContext.NewPlayer(g.synth)
		if err != nil {
			panic(err)
		}
		g.synthPlayer = player
	}

	if err := ebiten.RunGame(g); err != nil {
		panic(err)
	}
}

type game struct {
	player *audio.Player

	synth       *modmix.Synthesizer
	synthPlayer *audio.Player

	filename string
	paused   bool
}

var synthKeys = []ebiten.Key{
	ebiten.Key1,
	ebiten.Key2,
	ebiten.Key3,
	ebiten.Key4,
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
		if g.player.IsPlaying() {
			g.player.Pause()
		} else {
			g.player.Play()
		}
	}

	for i, k := range synthKeys {
		if !inpututil.IsKeyJustPressed(k) {
			continue
		}
		err := g.synth.PlayNote(0, modfile.Note{
			Period:     428,
			Instrument: uint8(i + 1),
		})
		if err != nil {
			return err
		}
		if err := g.synthPlayer.Rewind(); err != nil {
			return err
		}
		g.synthPlayer.Play()
	}

	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.paused {
		ebitenutil.DebugPrint(screen, "Paused... press SPACE")
	} else {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("Playing %s...", g.filename))
	}
}

func (g *game) Layout(_, _ int) (int, int) {
	return 640, 480
}

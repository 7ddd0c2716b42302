package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/quasilyte/modmix"
	"github.com/quasilyte/modmix/gpu/softgpu"
	"github.com/quasilyte/modmix/kernels"
	"github.com/quasilyte/modmix/modfile"
)

// This CLI tool plays the specified MOD track using the oto audio player
// or renders it into a WAV file.

func main() {
	log.SetFlags(0)

	var args arguments
	flag.IntVar(&args.sampleRate, "rate", 44100, "output sample rate")
	flag.StringVar(&args.interp, "interp", "none", "sample interpolation: none, linear or optimal")
	flag.Float64Var(&args.separation, "sep", 0.5, "stereo separation in [0, 1], negative for mono")
	flag.Float64Var(&args.volume, "volume", 0.8, "output volume in [0, 1]")
	flag.BoolVar(&args.loop, "loop", false, "loop the song (ignored for the file export)")
	flag.BoolVar(&args.tolerant, "tolerant", false, "accept modules with truncated sample data")
	flag.BoolVar(&args.events, "events", false, "print the note events")
	flag.IntVar(&args.workers, "workers", 0, "number of kernel workers, 0 means GOMAXPROCS")
	flag.StringVar(&args.kernelDir, "kernels", "", "load the kernel sources from this dir instead of the embedded ones")
	flag.StringVar(&args.output, "o", "", "write a stereo 16-bit WAV file instead of playing")
	flag.StringVar(&args.monoOutput, "mono", "", "write a mono 16-bit WAV file instead of playing")
	flag.IntVar(&args.monoRate, "mono-rate", 22050, "sample rate of the mono WAV file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: modplay [flags] path/to/music.mod\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	args.filename = flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, &args); err != nil {
		log.Fatalf("modplay: %v", err)
	}
}

type arguments struct {
	filename   string
	sampleRate int
	interp     string
	separation float64
	volume     float64
	loop       bool
	tolerant   bool
	events     bool
	workers    int
	kernelDir  string
	output     string
	monoOutput string
	monoRate   int
}

func run(ctx context.Context, args *arguments) error {
	interp, err := parseInterpolation(args.interp)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args.filename)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}
	parser := modfile.NewParser(modfile.ParserConfig{
		AllowTruncatedSamples: args.tolerant,
	})
	m, err := parser.ParseFromBytes(data)
	if err != nil {
		return fmt.Errorf("parse module: %w", err)
	}
	log.Printf("%s: %q, %d positions, %d patterns", args.filename, m.Name, m.SongLength, len(m.Patterns))

	dev := softgpu.New(softgpu.Config{Workers: args.workers})
	mixer := modmix.NewMixer(dev, modmix.MixerConfig{
		SampleRate:       args.sampleRate,
		Interpolation:    interp,
		StereoSeparation: args.separation,
	})
	defer mixer.Destroy()

	stream := modmix.NewStream(mixer)
	stream.SetVolume(args.volume)
	if args.events {
		stream.SetEventHandler(printEvent)
	}
	// The module initialization is deferred until the kernel is linked.
	if err := stream.LoadModule(m, modmix.LoadModuleConfig{Context: ctx}); err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	loadConfig := kernels.LoadConfig{}
	if args.kernelDir != "" {
		loadConfig.FS = os.DirFS(args.kernelDir)
	}
	if err := kernels.Load(ctx, mixer, loadConfig); err != nil {
		return err
	}
	if err := mixer.Ready(); err != nil {
		return err
	}

	info := stream.GetInfo()
	log.Printf("bytes per tick: %d, memory usage: %d KiB", info.BytesPerTick, info.MemoryUsage/1024)

	switch {
	case args.output != "":
		return exportStereo(stream, args.output)
	case args.monoOutput != "":
		return exportMono(stream, args.monoOutput, args.monoRate)
	default:
		stream.SetLooping(args.loop)
		return play(ctx, stream, args.sampleRate)
	}
}

func parseInterpolation(s string) (modmix.Interpolation, error) {
	switch s {
	case "none":
		return modmix.InterpolationNone, nil
	case "linear":
		return modmix.InterpolationLinear, nil
	case "optimal":
		return modmix.InterpolationOptimal, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", s)
	}
}

func play(ctx context.Context, stream *modmix.Stream, sampleRate int) error {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	otoContext, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-ready

	player := otoContext.NewPlayer(stream)
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return nil
		case <-ticker.C:
		}
	}
	return player.Err()
}

func printEvent(e modmix.StreamEvent) {
	switch e.Kind {
	case modmix.EventNote:
		period, inst, vol := e.NoteEventData()
		log.Printf("%8.3fs ch%d: period=%d instrument=%d volume=%.2f", e.Time, e.Channel, period, inst, vol)
	case modmix.EventSync:
		log.Printf("%8.3fs sync to %.3fs", e.Time, e.SyncEventData())
	}
}

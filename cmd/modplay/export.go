package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/audpbx"
	monowav "github.com/ik5/audpbx/formats/wav"

	"github.com/quasilyte/modmix"
)

// exportStereo renders the whole song into a 16-bit stereo WAV file.
func exportStereo(stream *modmix.Stream, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	sampleRate := stream.SampleRate()
	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: 16,
	}

	samples := make([]float32, stream.BufSize())
	frames := 0
	for {
		n, err := stream.ReadSamples(samples)
		if n > 0 {
			buf.Data = buf.Data[:0]
			for _, v := range samples[:n] {
				buf.Data = append(buf.Data, int(max(-1, min(v, 1))*32767))
			}
			if err := enc.Write(buf); err != nil {
				return fmt.Errorf("write %s: %w", filename, err)
			}
			frames += n / 2
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	log.Printf("wrote %s: %d frames (%.1fs)", filename, frames, float64(frames)/float64(sampleRate))
	return nil
}

// exportMono renders the whole song, downmixes and resamples it
// to a 16-bit mono WAV file.
func exportMono(stream *modmix.Stream, filename string, sampleRate int) error {
	pcm, rate, err := audpbx.ResampleToMono16(stream, sampleRate, stream.BufSize())
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := monowav.WriteWAV16(f, rate, pcm); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	log.Printf("wrote %s: %d samples (%.1fs)", filename, len(pcm), float64(len(pcm))/float64(rate))
	return nil
}

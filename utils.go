package modmix

import (
	"encoding/binary"
	"math"
)

type numeric interface {
	int | float32 | float64
}

func clamp[T numeric](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// zeros returns a zero-filled vector of n scalars.
func zeros(n int) []float32 {
	return make([]float32, n)
}

func resizeFloats(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

// The Amiga CIA timer runs at BPM*2/5 Hz.
func calcSamplesPerTick(sampleRate, bpm int) int {
	return int(math.Round(float64(sampleRate) / (float64(bpm) * 0.4)))
}

func calcSecondsPerTick(bpm int) float64 {
	return 1 / (float64(bpm) * 0.4)
}

// maxFramesPerTick is the tick length with the lowest possible BPM.
func maxFramesPerTick(sampleRate int) int {
	return calcSamplesPerTick(sampleRate, minBPM)
}

func ticksPerSecond(bpm int) float64 {
	return float64(bpm) * 0.4
}

// putPCM writes a 16-bit LE stereo frame.
func putPCM(b []byte, left, right float32) {
	binary.LittleEndian.PutUint16(b[0:], uint16(floatToPCM(left)))
	binary.LittleEndian.PutUint16(b[2:], uint16(floatToPCM(right)))
}

func floatToPCM(v float32) int16 {
	return int16(clamp(v, -1, 1) * 32767)
}

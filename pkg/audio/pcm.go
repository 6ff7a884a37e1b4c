package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// SampleFormat is the on-the-wire encoding of a PCM sample.
type SampleFormat int

const (
	// Float32LE is 32-bit IEEE float, little-endian.
	Float32LE SampleFormat = iota

	// Int16LE is 16-bit signed integer, little-endian.
	Int16LE
)

// String returns the configuration name of the format.
func (f SampleFormat) String() string {
	switch f {
	case Float32LE:
		return "float32"
	case Int16LE:
		return "int16"
	default:
		return "unknown"
	}
}

// ParseSampleFormat converts a configuration name into a [SampleFormat].
// The empty string selects [Float32LE].
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float32", "f32":
		return Float32LE, nil
	case "int16", "s16":
		return Int16LE, nil
	}
	return 0, fmt.Errorf("audio: unknown sample format %q", s)
}

// BytesPerSample returns the encoded size of one mono sample.
func (f SampleFormat) BytesPerSample() int {
	if f == Int16LE {
		return 2
	}
	return 4
}

// Clip limits s to [-1, 1]. NaN becomes silence.
func Clip(s float64) float32 {
	switch {
	case s != s:
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return float32(s)
	}
}

// Encode writes samples into dst using format f and returns the number of
// bytes written. dst must hold at least len(samples)*f.BytesPerSample()
// bytes; extra samples that do not fit are ignored. Encode does not
// allocate.
func Encode(dst []byte, samples []float32, f SampleFormat) int {
	bps := f.BytesPerSample()
	n := min(len(samples), len(dst)/bps)
	switch f {
	case Int16LE:
		for i := range n {
			s := samples[i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(s*math.MaxInt16)))
		}
	default:
		for i := range n {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
		}
	}
	return n * bps
}

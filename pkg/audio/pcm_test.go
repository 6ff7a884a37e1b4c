package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

func TestEncode_Float32LE(t *testing.T) {
	samples := []float32{0, 0.5, -1, 1}
	dst := make([]byte, len(samples)*4)

	n := audio.Encode(dst, samples, audio.Float32LE)
	if n != 16 {
		t.Fatalf("Encode wrote %d bytes, want 16", n)
	}
	for i, want := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:]))
		if got != want {
			t.Errorf("sample %d: got %v, want %v", i, got, want)
		}
	}
}

func TestEncode_Int16LE(t *testing.T) {
	samples := []float32{0, 1, -1, 0.5, 2, -3}
	dst := make([]byte, len(samples)*2)

	n := audio.Encode(dst, samples, audio.Int16LE)
	if n != 12 {
		t.Fatalf("Encode wrote %d bytes, want 12", n)
	}
	want := []int16{0, 32767, -32767, 16383, 32767, -32767}
	for i := range want {
		got := int16(binary.LittleEndian.Uint16(dst[i*2:]))
		if got != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got, want[i])
		}
	}
}

func TestEncode_ShortDestination(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	dst := make([]byte, 9) // room for two float32 samples

	if n := audio.Encode(dst, samples, audio.Float32LE); n != 8 {
		t.Errorf("Encode wrote %d bytes, want 8", n)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   float64
		want float32
	}{
		{0.25, 0.25},
		{1.5, 1},
		{-7, -1},
		{math.NaN(), 0},
	}
	for _, tc := range tests {
		if got := audio.Clip(tc.in); got != tc.want {
			t.Errorf("Clip(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    audio.SampleFormat
		wantErr bool
	}{
		{"", audio.Float32LE, false},
		{"float32", audio.Float32LE, false},
		{"INT16", audio.Int16LE, false},
		{"mp3", 0, true},
	}
	for _, tc := range tests {
		got, err := audio.ParseSampleFormat(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseSampleFormat(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseSampleFormat(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

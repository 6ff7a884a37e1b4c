package speaker

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

// These tests drive the streamer directly without initialising the speaker.

func TestStream_DuplicatesMonoMix(t *testing.T) {
	b := newBackend(1000)
	b.Attach(audio.RendererFunc(func(buf []float32, start float64, sr int) {
		for i := range buf {
			buf[i] = float32(start + float64(i)/float64(sr))
		}
	}))

	frames := make([][2]float64, 10)
	n, ok := b.Stream(frames)
	if n != 10 || !ok {
		t.Fatalf("Stream = (%d, %v), want (10, true)", n, ok)
	}
	for i, f := range frames {
		want := float64(float32(float64(i) / 1000))
		if f[0] != want || f[1] != want {
			t.Errorf("frame %d = %v, want both channels %v", i, f, want)
		}
	}
	if got := b.Now(); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("Now() = %v after 10 frames, want 0.01", got)
	}
	if err := b.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestStream_SilenceWithoutRenderers(t *testing.T) {
	b := newBackend(8000)
	frames := [][2]float64{{1, 1}, {-1, -1}, {0.5, 0.5}}

	if n, ok := b.Stream(frames); n != 3 || !ok {
		t.Fatalf("Stream = (%d, %v), want (3, true)", n, ok)
	}
	for i, f := range frames {
		if f != [2]float64{} {
			t.Errorf("frame %d = %v, want silence", i, f)
		}
	}
}

func TestStream_GrowsBuffer(t *testing.T) {
	b := newBackend(8000)
	b.Stream(make([][2]float64, 4))
	if n, _ := b.Stream(make([][2]float64, 64)); n != 64 {
		t.Errorf("Stream returned %d frames, want 64", n)
	}
}

func TestStart_WithoutSpeaker(t *testing.T) {
	b := newBackend(8000)
	if err := b.Start(); !errors.Is(err, audio.ErrEngineUnavailable) {
		t.Errorf("Start = %v, want ErrEngineUnavailable", err)
	}
	if b.Ready() {
		t.Error("Ready() = true without an initialised speaker")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := b.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

package soundscape_test

import (
	"testing"
	"time"

	"github.com/MrWong99/ambisynth/internal/soundscape"
)

func TestSeededScheduler_Reproducible(t *testing.T) {
	t.Parallel()
	a := soundscape.NewSeededScheduler(5*time.Second, 42)
	b := soundscape.NewSeededScheduler(5*time.Second, 42)

	for i := range 50 {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("draw %d: Next %v != %v", i, x, y)
		}
		if x, y := a.Offset(200), b.Offset(200); x != y {
			t.Fatalf("draw %d: Offset %v != %v", i, x, y)
		}
	}
}

func TestSeededScheduler_DifferentSeedsDiverge(t *testing.T) {
	t.Parallel()
	a := soundscape.NewSeededScheduler(time.Second, 1)
	b := soundscape.NewSeededScheduler(time.Second, 2)

	same := 0
	for range 20 {
		if a.Next() == b.Next() {
			same++
		}
	}
	if same == 20 {
		t.Error("schedulers with different seeds produced identical sequences")
	}
}

func TestScheduler_NextIsExponential(t *testing.T) {
	t.Parallel()
	const (
		mean = 5 * time.Second
		n    = 20000
	)
	s := soundscape.NewSeededScheduler(mean, 7)

	var sum time.Duration
	for range n {
		d := s.Next()
		if d < 0 {
			t.Fatalf("negative interval %v", d)
		}
		sum += d
	}
	got := sum / n
	// The sample mean of 20000 exponential draws is within a few percent.
	if got < 4500*time.Millisecond || got > 5500*time.Millisecond {
		t.Errorf("mean interval = %v, want about %v", got, mean)
	}
}

func TestScheduler_OffsetRange(t *testing.T) {
	t.Parallel()
	s := soundscape.NewSeededScheduler(time.Second, 3)

	for range 1000 {
		off := s.Offset(200)
		if off < 0 || off >= 200 {
			t.Fatalf("offset %v outside [0, 200)", off)
		}
	}
	if off := s.Offset(0); off != 0 {
		t.Errorf("Offset(0) = %v, want 0", off)
	}
}

func TestNewScheduler_NilRNG(t *testing.T) {
	t.Parallel()
	s := soundscape.NewScheduler(time.Second, nil)
	if d := s.Next(); d < 0 {
		t.Errorf("Next() = %v, want non-negative", d)
	}
}

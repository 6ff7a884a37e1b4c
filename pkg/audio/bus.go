package audio

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Bus is the renderer set and playback clock shared by [Backend]
// implementations. A backend embeds a Bus and calls [Bus.Pull] from its
// output goroutine; the clock advances by exactly the number of frames
// pulled.
//
// Attach and detach are copy-on-write so Pull never takes a lock.
type Bus struct {
	sampleRate int

	mu        sync.Mutex
	renderers atomic.Pointer[[]*attachment]
	frames    atomic.Int64
	scratch   []float32 // used only by Pull
}

// attachment gives each Attach call a distinct identity, so the same
// renderer may be attached twice and detached independently.
type attachment struct {
	r Renderer
}

// NewBus creates a Bus for the given sample rate.
func NewBus(sampleRate int) *Bus {
	b := &Bus{sampleRate: sampleRate}
	empty := []*attachment{}
	b.renderers.Store(&empty)
	return b
}

// SampleRate returns the bus sample rate in Hz.
func (b *Bus) SampleRate() int { return b.sampleRate }

// Now returns the playback time of the next frame to be pulled.
func (b *Bus) Now() float64 {
	return float64(b.frames.Load()) / float64(b.sampleRate)
}

// Frames returns the number of frames pulled so far.
func (b *Bus) Frames() int64 { return b.frames.Load() }

// Attach adds r to the mix. The returned function detaches it.
func (b *Bus) Attach(r Renderer) (detach func()) {
	a := &attachment{r: r}

	b.mu.Lock()
	next := append(slices.Clone(*b.renderers.Load()), a)
	b.renderers.Store(&next)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			cur := *b.renderers.Load()
			i := slices.Index(cur, a)
			if i < 0 {
				return
			}
			next := slices.Delete(slices.Clone(cur), i, i+1)
			b.renderers.Store(&next)
		})
	}
}

// Len returns the number of attached renderers.
func (b *Bus) Len() int { return len(*b.renderers.Load()) }

// Pull fills out with the sum of all attached renderers and advances the
// clock by len(out) frames. Pull must only be called from one goroutine.
func (b *Bus) Pull(out []float32) {
	start := b.Now()
	rs := *b.renderers.Load()

	if len(rs) == 0 {
		clear(out)
	} else {
		rs[0].r.Render(out, start, b.sampleRate)
		if len(rs) > 1 {
			if cap(b.scratch) < len(out) {
				b.scratch = make([]float32, len(out))
			}
			scratch := b.scratch[:len(out)]
			for _, a := range rs[1:] {
				a.r.Render(scratch, start, b.sampleRate)
				for i, s := range scratch {
					out[i] = Clip(float64(out[i]) + float64(s))
				}
			}
		}
	}
	b.frames.Add(int64(len(out)))
}

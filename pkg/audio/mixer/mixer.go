package mixer

import (
	"container/heap"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Mixer = (*VoiceMixer)(nil)

// defaultCapacity is the initial capacity hint for the voice list.
const defaultCapacity = 4

// Option configures a [VoiceMixer] during construction.
type Option func(*VoiceMixer)

// WithCapacity sets the initial capacity hint for the voice list. This does
// not impose a hard limit.
func WithCapacity(n int) Option {
	return func(m *VoiceMixer) {
		if n > 0 {
			m.voices = make([]entry, 0, n)
		}
	}
}

// entry is a voice with the playback time at which it stops rendering.
// until is +Inf while no removal is scheduled.
type entry struct {
	voice audio.Voice
	until float64
}

// VoiceMixer is a concrete [audio.Mixer].
//
// The control path mutates the voice list under a mutex and publishes an
// immutable copy; [VoiceMixer.Render] only loads that copy. Scheduled
// removals are applied by whichever side first observes that their time has
// passed: the render goroutine (opportunistically, without ever waiting on
// the lock) or the next control-path call.
//
// All exported methods are safe for concurrent use.
type VoiceMixer struct {
	mu       sync.Mutex
	voices   []entry
	releases releaseHeap
	seq      uint64
	closed   bool

	snapshot    atomic.Pointer[[]entry]
	nextRelease atomic.Uint64 // math.Float64bits of the earliest pending removal
}

// New creates an empty [VoiceMixer].
func New(opts ...Option) *VoiceMixer {
	m := &VoiceMixer{
		voices: make([]entry, 0, defaultCapacity),
	}
	for _, o := range opts {
		o(m)
	}
	heap.Init(&m.releases)
	m.nextRelease.Store(math.Float64bits(math.Inf(1)))
	m.publishLocked()
	return m
}

// Add starts rendering v. A closed mixer stops v instead.
func (m *VoiceMixer) Add(v audio.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		v.Stop()
		return
	}
	if m.indexLocked(v) >= 0 {
		return
	}
	m.voices = append(m.voices, entry{voice: v, until: math.Inf(1)})
	m.publishLocked()
}

// Remove stops v and drops it immediately.
func (m *VoiceMixer) Remove(v audio.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(v)
	if i < 0 {
		return
	}
	m.voices = slices.Delete(m.voices, i, i+1)
	v.Stop()
	m.publishLocked()
}

// RemoveAt keeps v rendering until playback time t. A later call replaces
// an earlier schedule for the same voice.
func (m *VoiceMixer) RemoveAt(v audio.Voice, t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(v)
	if i < 0 {
		return
	}
	m.voices[i].until = t
	m.seq++
	heap.Push(&m.releases, release{voice: v, at: t, seq: m.seq})
	m.nextRelease.Store(math.Float64bits(m.releases[0].at))
	m.publishLocked()
}

// Reap drops every voice whose scheduled removal time is at or before now
// and returns how many were dropped.
func (m *VoiceMixer) Reap(now float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reapLocked(now)
}

// Len returns the number of voices still in the mix.
func (m *VoiceMixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Voices returns a copy of the voices still in the mix, in insertion order.
func (m *VoiceMixer) Voices() []audio.Voice {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]audio.Voice, len(m.voices))
	for i, e := range m.voices {
		out[i] = e.voice
	}
	return out
}

// Render sums all voices into buf. Voices scheduled for removal contribute
// only up to their removal time.
func (m *VoiceMixer) Render(buf []float32, start float64, sampleRate int) {
	snap := *m.snapshot.Load()
	step := 1 / float64(sampleRate)

	for i := range buf {
		t := start + float64(i)*step
		var sum float64
		for _, e := range snap {
			if t < e.until {
				sum += e.voice.Sample(t)
			}
		}
		buf[i] = audio.Clip(sum)
	}

	end := start + float64(len(buf))*step
	if end >= math.Float64frombits(m.nextRelease.Load()) && m.mu.TryLock() {
		m.reapLocked(end)
		m.mu.Unlock()
	}
}

// Close stops every voice and rejects further additions. Close is
// idempotent and always returns nil.
func (m *VoiceMixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, e := range m.voices {
		e.voice.Stop()
	}
	m.voices = m.voices[:0]
	m.releases = m.releases[:0]
	m.nextRelease.Store(math.Float64bits(math.Inf(1)))
	m.publishLocked()
	return nil
}

// reapLocked applies due removals. Must be called with m.mu held.
func (m *VoiceMixer) reapLocked(now float64) int {
	dropped := 0
	for m.releases.Len() > 0 && m.releases[0].at <= now {
		r := heap.Pop(&m.releases).(release)
		i := m.indexLocked(r.voice)
		if i < 0 || m.voices[i].until != r.at {
			continue // removed early or rescheduled
		}
		m.voices = slices.Delete(m.voices, i, i+1)
		r.voice.Stop()
		dropped++
	}

	next := math.Inf(1)
	if m.releases.Len() > 0 {
		next = m.releases[0].at
	}
	m.nextRelease.Store(math.Float64bits(next))

	if dropped > 0 {
		m.publishLocked()
	}
	return dropped
}

// indexLocked returns the position of v in the voice list, or -1.
func (m *VoiceMixer) indexLocked(v audio.Voice) int {
	return slices.IndexFunc(m.voices, func(e entry) bool { return e.voice == v })
}

// publishLocked makes the current voice list visible to the render path.
func (m *VoiceMixer) publishLocked() {
	snap := slices.Clone(m.voices)
	if snap == nil {
		snap = []entry{}
	}
	m.snapshot.Store(&snap)
}

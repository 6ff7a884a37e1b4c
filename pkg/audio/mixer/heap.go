// Package mixer provides a concrete [audio.Mixer] that sums a dynamic set of
// voices for a real-time backend. Voice membership is published as an
// immutable snapshot so rendering never waits on the control path, and
// scheduled removals are ordered in a min-heap keyed by playback time.
package mixer

import "github.com/MrWong99/ambisynth/pkg/audio"

// release is a scheduled removal. Entries are invalidated lazily: when a
// voice is removed early or rescheduled, the stale heap entry is skipped on
// pop because its time no longer matches the voice's entry.
type release struct {
	voice audio.Voice
	at    float64
	seq   uint64 // insertion order for tie-breaking
}

// releaseHeap implements [container/heap.Interface] as a min-heap ordered by
// release time, with FIFO tie-breaking on seq.
type releaseHeap []release

func (h releaseHeap) Len() int { return len(h) }

func (h releaseHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h releaseHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *releaseHeap) Push(x any) {
	*h = append(*h, x.(release))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *releaseHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = release{}
	*h = old[:n-1]
	return e
}

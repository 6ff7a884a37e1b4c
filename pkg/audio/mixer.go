package audio

// Voice is one live generator with its own gain control, as summed by a
// [Mixer].
//
// Sample is called once per output sample from the render goroutine, with
// strictly increasing t. Stop may be called from any goroutine; after it
// returns, Sample yields silence.
type Voice interface {
	Sample(t float64) float64
	Stop()
}

// Mixer sums a dynamic set of voices into a single mono stream. It sits
// between an engine and its [Backend], so that voice construction and
// teardown on the control path never block rendering.
//
// Implementations must be safe for concurrent use.
type Mixer interface {
	Renderer

	// Add starts rendering v. Adding a voice that is already present is a
	// no-op.
	Add(v Voice)

	// Remove stops v and drops it immediately. Removing an unknown voice is
	// a no-op.
	Remove(v Voice)

	// RemoveAt keeps rendering v until playback time t, then stops and
	// drops it. Engines schedule this at the end of a release ramp so that
	// teardown follows the envelope rather than a wall-clock timer.
	RemoveAt(v Voice, t float64)

	// Len returns the number of voices still rendering, including those
	// waiting for a scheduled removal.
	Len() int
}

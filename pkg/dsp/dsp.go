// Package dsp is the root of the signal-processing packages: sources,
// filters, and envelopes. It only holds what those packages share.
package dsp

import "errors"

// ErrInvalidParameter is returned when a frequency, duration, sample rate,
// or resonance is outside its valid domain. Such calls are rejected, never
// coerced.
var ErrInvalidParameter = errors.New("invalid parameter")

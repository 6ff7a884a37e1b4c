package synth

import (
	"fmt"
	"strings"

	"github.com/MrWong99/ambisynth/pkg/dsp"
)

// ErrUnknownNote is returned for a note name outside the chromatic octave.
// It matches [dsp.ErrInvalidParameter] under errors.Is.
var ErrUnknownNote = fmt.Errorf("unknown note: %w", dsp.ErrInvalidParameter)

// noteNames lists the playable notes in pitch order.
var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// noteFrequencies is the fixed tuning table in Hz, one octave from middle C.
var noteFrequencies = map[string]float64{
	"C":  261.63,
	"C#": 277.18,
	"D":  293.66,
	"D#": 311.13,
	"E":  329.63,
	"F":  349.23,
	"F#": 369.99,
	"G":  392.00,
	"G#": 415.30,
	"A":  440.00,
	"A#": 466.16,
	"B":  493.88,
}

// Notes returns the playable note names in pitch order.
func Notes() []string {
	out := make([]string, len(noteNames))
	copy(out, noteNames)
	return out
}

// ParseNote normalizes name ("c#", " A ") to its canonical form.
func ParseNote(name string) (string, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := noteFrequencies[n]; !ok {
		return "", fmt.Errorf("synth: note %q: %w", name, ErrUnknownNote)
	}
	return n, nil
}

// Frequency returns the pitch of the named note in Hz.
func Frequency(name string) (float64, error) {
	n, err := ParseNote(name)
	if err != nil {
		return 0, err
	}
	return noteFrequencies[n], nil
}

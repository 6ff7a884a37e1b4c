// Package control exposes the soundscape and synthesizer engines over HTTP.
//
// Every command is available both as a REST endpoint and as a JSON message
// on the /ws WebSocket, which replies to each command with a full state
// snapshot. Errors map to status codes as follows:
//
//   - invalid parameters (unknown note, category or waveform): 400
//   - audio backend unavailable or engine closed: 503
//   - anything else: 500
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/ambisynth/internal/health"
	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/internal/soundscape"
	"github.com/MrWong99/ambisynth/internal/synth"
	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/dsp"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

// Soundscape is the subset of [soundscape.Engine] the control surface drives.
type Soundscape interface {
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, category voice.Category, level float64) (float64, error)
	State() soundscape.State
	Volumes() map[voice.Category]float64
}

// Synth is the subset of [synth.Engine] the control surface drives.
type Synth interface {
	NoteOn(ctx context.Context, note string) error
	NoteOff(ctx context.Context, note string) error
	Release(ctx context.Context) error
	SetWaveform(ctx context.Context, w source.Waveform) error
	Waveform() source.Waveform
	State() synth.State
}

// Compile-time interface assertions.
var (
	_ Soundscape = (*soundscape.Engine)(nil)
	_ Synth      = (*synth.Engine)(nil)
)

// Option configures a [Server] during construction.
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// [promhttp.Handler], which serves the registry the OTel Prometheus exporter
// writes to.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics sets the metrics used by the request middleware. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns allows WebSocket connections from the given host
// patterns in addition to same-origin requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = append(s.originPatterns, patterns...) }
}

// Server routes control requests to the engines. It implements
// [http.Handler].
type Server struct {
	scape Soundscape
	synth Synth

	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	originPatterns []string

	handler http.Handler
}

// New builds the control server for the given engines.
func New(scape Soundscape, syn Synth, opts ...Option) *Server {
	s := &Server{scape: scape, synth: syn}
	for _, o := range opts {
		o(s)
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /soundscape/play", s.handlePlay)
	mux.HandleFunc("POST /soundscape/stop", s.handleStop)
	mux.HandleFunc("PUT /soundscape/volume/{category}", s.handleVolume)
	mux.HandleFunc("GET /soundscape", s.handleSoundscape)
	mux.HandleFunc("POST /synth/notes/{note}/on", s.handleNoteOn)
	mux.HandleFunc("POST /synth/notes/{note}/off", s.handleNoteOff)
	mux.HandleFunc("POST /synth/release", s.handleRelease)
	mux.HandleFunc("PUT /synth/waveform", s.handleWaveform)
	mux.HandleFunc("GET /synth", s.handleSynth)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", s.metricsHandler)
	if s.health != nil {
		s.health.Register(mux)
	}

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ─── State snapshots ──────────────────────────────────────────────────────────

// SoundscapeState is the JSON view of the soundscape.
type SoundscapeState struct {
	State   string             `json:"state"`
	Playing bool               `json:"playing"`
	Volumes map[string]float64 `json:"volumes"`
}

// SynthState is the JSON view of the synthesizer.
type SynthState struct {
	State    string `json:"state"`
	Note     string `json:"note,omitempty"`
	Waveform string `json:"waveform"`
}

// Snapshot combines both engine views.
type Snapshot struct {
	Soundscape SoundscapeState `json:"soundscape"`
	Synth      SynthState      `json:"synth"`
}

func (s *Server) soundscapeState() SoundscapeState {
	st := s.scape.State()
	vols := s.scape.Volumes()
	out := SoundscapeState{
		State:   st.String(),
		Playing: st == soundscape.Playing,
		Volumes: make(map[string]float64, len(vols)),
	}
	for c, v := range vols {
		out.Volumes[string(c)] = v
	}
	return out
}

func (s *Server) synthState() SynthState {
	st := s.synth.State()
	return SynthState{
		State:    st.String(),
		Note:     st.Note,
		Waveform: s.synth.Waveform().String(),
	}
}

func (s *Server) snapshot() Snapshot {
	return Snapshot{Soundscape: s.soundscapeState(), Synth: s.synthState()}
}

// ─── REST handlers ────────────────────────────────────────────────────────────

type volumeRequest struct {
	Level *float64 `json:"level"`
}

type waveformRequest struct {
	Waveform string `json:"waveform"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := s.scape.Play(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.soundscapeState())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.scape.Stop(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.soundscapeState())
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Level == nil {
		writeError(w, r, errMissing("level"))
		return
	}
	if _, err := s.scape.SetVolume(r.Context(), voice.Category(r.PathValue("category")), *req.Level); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.soundscapeState())
}

func (s *Server) handleSoundscape(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.soundscapeState())
}

func (s *Server) handleNoteOn(w http.ResponseWriter, r *http.Request) {
	if err := s.synth.NoteOn(r.Context(), r.PathValue("note")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.synthState())
}

func (s *Server) handleNoteOff(w http.ResponseWriter, r *http.Request) {
	if err := s.synth.NoteOff(r.Context(), r.PathValue("note")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.synthState())
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if err := s.synth.Release(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.synthState())
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	var req waveformRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := source.ParseWaveform(req.Waveform)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.synth.SetWaveform(r.Context(), wf); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.synthState())
}

func (s *Server) handleSynth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.synthState())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// maxBodyBytes bounds request bodies; commands are tiny.
const maxBodyBytes = 4 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &badRequestError{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

// badRequestError is a malformed request that never reached an engine.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func errMissing(field string) error {
	return &badRequestError{msg: "missing field " + field}
}

// statusFor maps an engine error to an HTTP status code.
func statusFor(err error) int {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad), errors.Is(err, dsp.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrEngineUnavailable),
		errors.Is(err, soundscape.ErrClosed),
		errors.Is(err, synth.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("control: request failed", "path", r.URL.Path, "err", err)
	} else {
		observe.Logger(r.Context()).Debug("control: request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

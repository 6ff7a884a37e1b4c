package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

// Command ops accepted on the WebSocket.
const (
	OpPlay     = "play"
	OpStop     = "stop"
	OpVolume   = "volume"
	OpNoteOn   = "note_on"
	OpNoteOff  = "note_off"
	OpRelease  = "release"
	OpWaveform = "waveform"
	OpState    = "state"
)

// writeTimeout bounds a single reply write.
const writeTimeout = 5 * time.Second

// Command is one WebSocket request. Only the fields relevant to Op are read.
type Command struct {
	ID       string   `json:"id,omitempty"`
	Op       string   `json:"op"`
	Category string   `json:"category,omitempty"`
	Level    *float64 `json:"level,omitempty"`
	Note     string   `json:"note,omitempty"`
	Waveform string   `json:"waveform,omitempty"`
}

// Reply answers a [Command]. State is always the snapshot after the command
// was applied, or attempted.
type Reply struct {
	ID    string   `json:"id,omitempty"`
	OK    bool     `json:"ok"`
	Error string   `json:"error,omitempty"`
	Code  int      `json:"code,omitempty"`
	State Snapshot `json:"state"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		observe.Logger(r.Context()).Debug("control: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	log := observe.Logger(r.Context())
	log.Debug("control: websocket connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("control: websocket closed", "remote", r.RemoteAddr)
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("control: websocket read failed", "err", err)
				}
			}
			return
		}

		reply := s.apply(ctx, cmd)

		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, conn, reply)
		cancel()
		if err != nil {
			log.Debug("control: websocket write failed", "err", err)
			return
		}
	}
}

// apply runs cmd against the engines and builds the reply.
func (s *Server) apply(ctx context.Context, cmd Command) Reply {
	ctx, span := observe.StartCommandSpan(ctx, engineFor(cmd.Op), cmd.Op)
	err := s.dispatch(ctx, cmd)
	observe.EndCommandSpan(span, err)

	reply := Reply{ID: cmd.ID, OK: err == nil, State: s.snapshot()}
	if err != nil {
		reply.Error = err.Error()
		reply.Code = statusFor(err)
		observe.Logger(ctx).Debug("control: websocket command rejected", "op", cmd.Op, "err", err)
	}
	return reply
}

// engineFor names the engine an op is addressed to.
func engineFor(op string) string {
	switch op {
	case OpPlay, OpStop, OpVolume:
		return observe.EngineSoundscape
	case OpNoteOn, OpNoteOff, OpRelease, OpWaveform:
		return observe.EngineSynth
	}
	return "control"
}

func (s *Server) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Op {
	case OpPlay:
		return s.scape.Play(ctx)
	case OpStop:
		return s.scape.Stop(ctx)
	case OpVolume:
		if cmd.Level == nil {
			return errMissing("level")
		}
		_, err := s.scape.SetVolume(ctx, voice.Category(cmd.Category), *cmd.Level)
		return err
	case OpNoteOn:
		return s.synth.NoteOn(ctx, cmd.Note)
	case OpNoteOff:
		return s.synth.NoteOff(ctx, cmd.Note)
	case OpRelease:
		return s.synth.Release(ctx)
	case OpWaveform:
		wf, err := source.ParseWaveform(cmd.Waveform)
		if err != nil {
			return err
		}
		return s.synth.SetWaveform(ctx, wf)
	case OpState:
		return nil
	default:
		return &badRequestError{msg: fmt.Sprintf("unknown op %q", cmd.Op)}
	}
}

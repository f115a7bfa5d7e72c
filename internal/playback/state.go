package playback

import (
	"fmt"
	"math"
	"strings"
)

// State of the controller's current session.
type State int

const (
	// StateIdle means no session: nothing generated yet, or stopped.
	StateIdle State = iota
	// StateReady means an utterance is built but not yet confirmed started.
	StateReady
	// StateSpeaking means the engine confirmed start.
	StateSpeaking
	// StatePaused means playback is paused at the engine.
	StatePaused
	// StateFinished means the engine reported the end of the utterance.
	StateFinished
	// StateErrored means the engine reported a failure.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := StateIdle; c <= StateErrored; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", b)
}

// Terminal reports whether the session is over.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateErrored
}

// Status texts shown in the panel's status region.
const (
	StatusReady    = "Ready to play"
	StatusPlaying  = "Playing"
	StatusPaused   = "Paused"
	StatusFinished = "Playback finished"
	StatusStopped  = "Playback stopped"
	statusError    = "Error: "
)

// Labels of the single pause/resume button.
const (
	LabelPause  = "Pause"
	LabelResume = "Resume"
)

// Prosody bounds of an utterance.
const (
	MinRate   = 0.1
	MaxRate   = 10.0
	MinPitch  = 0.0
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0
)

// UtteranceConfig is fixed once a session is generated; later slider
// changes only affect the next generate.
type UtteranceConfig struct {
	Text      string  `json:"text"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
	Volume    float64 `json:"volume"`
	VoiceName string  `json:"voice,omitempty"`
}

// DefaultUtterance carries the neutral slider positions.
func DefaultUtterance(text string) UtteranceConfig {
	return UtteranceConfig{Text: text, Rate: 1, Pitch: 1, Volume: 1}
}

func (c UtteranceConfig) normalized() UtteranceConfig {
	c.Text = strings.TrimSpace(c.Text)
	c.VoiceName = strings.TrimSpace(c.VoiceName)
	c.Rate = bound(c.Rate, MinRate, MaxRate, 1)
	c.Pitch = bound(c.Pitch, MinPitch, MaxPitch, 1)
	c.Volume = bound(c.Volume, MinVolume, MaxVolume, 1)
	return c
}

func bound(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

// Affordances is the enabled/label state of the panel controls.
type Affordances struct {
	Generate   bool   `json:"generate"`
	Play       bool   `json:"play"`
	Pause      bool   `json:"pause"`
	Stop       bool   `json:"stop"`
	PauseLabel string `json:"pause_label"`
}

// AffordancesFor derives control state from the session state alone.
// replayable is true once any utterance has been generated; pending is
// true while a speak is issued but not yet confirmed, which can be
// stopped but not played again.
func AffordancesFor(state State, replayable, pending bool) Affordances {
	a := Affordances{Generate: true, PauseLabel: LabelPause}
	switch state {
	case StateIdle:
		a.Play = replayable
	case StateReady:
		a.Play = !pending
		a.Stop = pending
	case StateFinished, StateErrored:
		a.Play = true
	case StateSpeaking:
		a.Pause = true
		a.Stop = true
	case StatePaused:
		a.Pause = true
		a.Stop = true
		a.PauseLabel = LabelResume
	}
	return a
}

// Snapshot is what the UI renders.
type Snapshot struct {
	State       State            `json:"state"`
	SessionID   string           `json:"session_id,omitempty"`
	Pending     bool             `json:"pending,omitempty"` // speak issued, start not confirmed
	Status      string           `json:"status"`
	Affordances Affordances      `json:"affordances"`
	Utterance   *UtteranceConfig `json:"utterance,omitempty"`
	Voice       string           `json:"voice,omitempty"` // resolved voice, empty = engine default
	LastError   string           `json:"last_error,omitempty"`
}

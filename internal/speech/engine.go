// Package speech defines the speech engine the playback controller drives
// and a browser-backed implementation of it.
package speech

// Utterance is one speak request with fixed prosody. Voice is empty when
// the engine default applies.
type Utterance struct {
	ID     string
	Text   string
	Rate   float64
	Pitch  float64
	Volume float64
	Voice  string
}

// Callbacks are attached per utterance. Each may be invoked from any
// goroutine; at most one of OnEnd and OnError fires.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(code string)
}

// Engine is a stateful, asynchronous speech engine. Commands never fail
// synchronously; failures arrive through Callbacks.OnError. Speaking and
// Paused are advisory and may lag behind reality.
type Engine interface {
	Speak(u Utterance, cb Callbacks)
	Pause()
	Resume()
	Cancel()
	Speaking() bool
	Paused() bool
}

// Error codes reported through Callbacks.OnError by BrowserEngine. Codes
// sent by the browser are passed through verbatim.
const (
	ErrCodeSynthesisFailed  = "synthesis-failed"
	ErrCodeAudioUnavailable = "audio-unavailable"
)

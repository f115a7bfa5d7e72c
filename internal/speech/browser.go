package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/tts"
)

// Message types exchanged with the browser tab that plays the audio.
const (
	MsgPlay   = "engine.play"
	MsgPause  = "engine.pause"
	MsgResume = "engine.resume"
	MsgCancel = "engine.cancel"

	MsgStarted = "engine.started"
	MsgEnded   = "engine.ended"
	MsgError   = "engine.error"
)

// Transport delivers engine commands to the connected browser tabs.
type Transport interface {
	Send(msgType string, payload interface{})
	Clients() int
}

// PlayCommand asks the browser to play a clip. Rate and Volume are applied
// by the audio element and are 1 when the clip already carries prosody.
type PlayCommand struct {
	Utterance   string  `json:"utterance"`
	Audio       string  `json:"audio"` // base64
	ContentType string  `json:"content_type"`
	Rate        float64 `json:"rate"`
	Volume      float64 `json:"volume"`
}

// ControlCommand targets the utterance currently playing.
type ControlCommand struct {
	Utterance string `json:"utterance,omitempty"`
}

// Report is the browser's account of what happened to an utterance.
type Report struct {
	Utterance string `json:"utterance"`
	Code      string `json:"code,omitempty"`
}

// BrowserEngine synthesizes audio server-side and plays it in the panel's
// browser tabs. The tabs report start, end and errors back, which become
// the utterance callbacks.
type BrowserEngine struct {
	synth   tts.Synthesizer
	out     Transport
	timeout time.Duration
	logger  *logger.Log

	mu       sync.Mutex
	current  string
	cb       Callbacks
	abort    context.CancelFunc
	speaking bool
	paused   bool
}

func NewBrowserEngine(synth tts.Synthesizer, out Transport, timeout time.Duration) *BrowserEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserEngine{
		synth:   synth,
		out:     out,
		timeout: timeout,
		logger:  logger.New().Named("speech"),
	}
}

func (e *BrowserEngine) Speak(u Utterance, cb Callbacks) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)

	e.mu.Lock()
	if e.current != "" {
		e.releaseLocked()
	}
	e.current = u.ID
	e.cb = cb
	e.abort = cancel
	e.speaking = true
	e.paused = false
	e.mu.Unlock()

	go e.render(ctx, u)
}

func (e *BrowserEngine) render(ctx context.Context, u Utterance) {
	audio, err := e.synth.Synthesize(ctx, tts.Request{
		Text:   u.Text,
		Voice:  u.Voice,
		Rate:   u.Rate,
		Pitch:  u.Pitch,
		Volume: u.Volume,
	})

	e.mu.Lock()
	if e.current != u.ID {
		// cancelled or superseded while synthesizing
		e.mu.Unlock()
		return
	}
	if err != nil {
		cb := e.cb
		e.releaseLocked()
		e.mu.Unlock()
		e.logger.WithError(err).Warn(fmt.Sprintf("synthesis failed for utterance %s", u.ID))
		invokeError(cb, ErrCodeSynthesisFailed)
		return
	}
	if e.out.Clients() == 0 {
		cb := e.cb
		e.releaseLocked()
		e.mu.Unlock()
		e.logger.Warn(fmt.Sprintf("no browser connected to play utterance %s", u.ID))
		invokeError(cb, ErrCodeAudioUnavailable)
		return
	}
	e.mu.Unlock()

	cmd := PlayCommand{
		Utterance:   u.ID,
		Audio:       base64.StdEncoding.EncodeToString(audio.Data),
		ContentType: audio.ContentType,
		Rate:        1,
		Volume:      1,
	}
	if !audio.Prosody {
		cmd.Rate = u.Rate
		cmd.Volume = u.Volume
	}
	e.logger.Debug(fmt.Sprintf("sending %d bytes of %s for utterance %s", len(audio.Data), audio.ContentType, u.ID))
	e.out.Send(MsgPlay, cmd)
}

func (e *BrowserEngine) Pause() {
	e.mu.Lock()
	id := e.current
	if id != "" {
		e.paused = true
	}
	e.mu.Unlock()
	if id != "" {
		e.out.Send(MsgPause, ControlCommand{Utterance: id})
	}
}

func (e *BrowserEngine) Resume() {
	e.mu.Lock()
	id := e.current
	if id != "" {
		e.paused = false
	}
	e.mu.Unlock()
	if id != "" {
		e.out.Send(MsgResume, ControlCommand{Utterance: id})
	}
}

// Cancel stops synthesis and playback. Callbacks of the cancelled
// utterance never fire.
func (e *BrowserEngine) Cancel() {
	e.mu.Lock()
	id := e.current
	e.releaseLocked()
	e.mu.Unlock()
	e.out.Send(MsgCancel, ControlCommand{Utterance: id})
}

func (e *BrowserEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

func (e *BrowserEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// HandleMessage consumes a report sent by a browser tab. Reports for any
// utterance but the current one are dropped.
func (e *BrowserEngine) HandleMessage(msgType string, data json.RawMessage) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		e.logger.WithError(err).Warn(fmt.Sprintf("malformed %s report", msgType))
		return
	}

	e.mu.Lock()
	if r.Utterance == "" || r.Utterance != e.current {
		e.mu.Unlock()
		e.logger.Debug(fmt.Sprintf("ignoring %s for inactive utterance %q", msgType, r.Utterance))
		return
	}
	cb := e.cb
	switch msgType {
	case MsgStarted:
		e.mu.Unlock()
		if cb.OnStart != nil {
			cb.OnStart()
		}
	case MsgEnded:
		e.releaseLocked()
		e.mu.Unlock()
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	case MsgError:
		e.releaseLocked()
		e.mu.Unlock()
		code := r.Code
		if code == "" {
			code = "unknown"
		}
		invokeError(cb, code)
	default:
		e.mu.Unlock()
		e.logger.Debug(fmt.Sprintf("unknown engine message %q", msgType))
	}
}

// Close aborts whatever is in flight.
func (e *BrowserEngine) Close() {
	e.mu.Lock()
	e.releaseLocked()
	e.mu.Unlock()
}

func (e *BrowserEngine) releaseLocked() {
	if e.abort != nil {
		e.abort()
		e.abort = nil
	}
	e.current = ""
	e.cb = Callbacks{}
	e.speaking = false
	e.paused = false
}

func invokeError(cb Callbacks, code string) {
	if cb.OnError != nil {
		cb.OnError(code)
	}
}

// Package playback arbitrates live playback between the panel controls and
// an asynchronous speech engine.
//
// A Controller owns at most one session. UI commands and engine callbacks
// are funnelled through one FIFO queue drained by Run, so no two handlers
// ever run at the same time. Engine callbacks carry the id of the session
// they belong to; callbacks for a superseded or stopped session are dropped.
//
// The panel exposes a single pause button that doubles as resume. Toggle
// keeps that behavior while Pause and Resume stay separate commands.
package playback

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/speech"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

const queueSize = 64

// VoiceResolver is the part of the voice registry the controller needs.
type VoiceResolver interface {
	Resolve(name string) (voice.Descriptor, bool)
	Suggest(name string) string
}

type eventKind int

const (
	eventStart eventKind = iota
	eventEnd
	eventError
)

func (k eventKind) String() string {
	switch k {
	case eventStart:
		return "start"
	case eventEnd:
		return "end"
	default:
		return "error"
	}
}

type session struct {
	id     string
	config UtteranceConfig
	voice  string
	// speak issued, start not yet confirmed
	pending bool
}

type Controller struct {
	engine speech.Engine
	voices VoiceResolver
	logger *logger.Log
	newID  func() string

	queue   chan func()
	stopped chan struct{}

	// owned by the Run goroutine
	state     State
	status    string
	lastErr   string
	current   *session
	last      *session
	listeners []func(Snapshot)
}

type Option func(*Controller)

// WithIDGenerator replaces the uuid session ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithLogger replaces the default component logger.
func WithLogger(l *logger.Log) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(engine speech.Engine, voices VoiceResolver, opts ...Option) *Controller {
	c := &Controller{
		engine:  engine,
		voices:  voices,
		logger:  logger.New().Named("playback"),
		newID:   uuid.NewString,
		queue:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn as the onStateChanged notification. fn runs on
// the controller goroutine after every transition and must not call back
// into the controller synchronously.
func (c *Controller) Subscribe(fn func(Snapshot)) error {
	_, err := c.call(context.Background(), func() error {
		c.listeners = append(c.listeners, fn)
		return nil
	})
	return err
}

// Run drains the command queue until ctx is done. Any speech still in
// progress is cancelled on the way out.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			if c.active() {
				c.engine.Cancel()
			}
			return
		case fn := <-c.queue:
			fn()
		}
	}
}

// Generate builds a new session from cfg and moves to Ready. Empty or
// whitespace-only text fails with a ValidationError and leaves the current
// session untouched. Any session still speaking is cancelled first.
func (c *Controller) Generate(ctx context.Context, cfg UtteranceConfig) (Snapshot, error) {
	return c.call(ctx, func() error { return c.generate(cfg) })
}

// Play asks the engine to speak the Ready session. The move to Speaking
// happens when the engine confirms start. In Finished, Errored or Idle
// after a stop, Play replays the last utterance as a new session.
func (c *Controller) Play(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func() error { c.play(); return nil })
}

func (c *Controller) Pause(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func() error { c.pause(); return nil })
}

func (c *Controller) Resume(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func() error { c.resume(); return nil })
}

// Toggle is the panel's pause button: pause while speaking, resume while
// paused.
func (c *Controller) Toggle(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func() error {
		switch c.state {
		case StateSpeaking:
			c.pause()
		case StatePaused:
			c.resume()
		default:
			c.ignored("toggle")
		}
		return nil
	})
}

// Stop cancels speech and returns to Idle synchronously. No end callback
// is awaited; a late one is ignored.
func (c *Controller) Stop(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func() error { c.stop(); return nil })
}

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func() error { return nil })
}

func (c *Controller) call(ctx context.Context, fn func() error) (Snapshot, error) {
	type result struct {
		snap Snapshot
		err  error
	}
	reply := make(chan result, 1)
	cmd := func() {
		err := fn()
		reply <- result{snap: c.snapshot(), err: err}
	}

	select {
	case c.queue <- cmd:
	case <-c.stopped:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.snap, r.err
	case <-c.stopped:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// post enqueues an engine event without blocking the caller, which may be
// the Run goroutine itself.
func (c *Controller) post(sessionID string, kind eventKind, code string) {
	fn := func() { c.handleEvent(sessionID, kind, code) }
	select {
	case <-c.stopped:
		return
	default:
	}
	select {
	case c.queue <- fn:
	default:
		go func() {
			select {
			case c.queue <- fn:
			case <-c.stopped:
			}
		}()
	}
}

func (c *Controller) generate(cfg UtteranceConfig) error {
	cfg = cfg.normalized()
	if cfg.Text == "" {
		return &ValidationError{Field: "text", Message: "Please enter some text to generate audio."}
	}

	if c.active() {
		c.logger.Debug(fmt.Sprintf("cancelling session %s for a new generate", c.current.id))
		c.engine.Cancel()
	}

	s := &session{id: c.newID(), config: cfg, voice: c.resolveVoice(cfg.VoiceName)}
	c.current = s
	c.last = s
	c.lastErr = ""
	c.transition(StateReady, StatusReady)
	return nil
}

func (c *Controller) resolveVoice(name string) string {
	if name == "" {
		return ""
	}
	if d, ok := c.voices.Resolve(name); ok {
		return d.Name
	}
	msg := fmt.Sprintf("voice %q not found, using engine default", name)
	if hint := c.voices.Suggest(name); hint != "" {
		msg += fmt.Sprintf(" (closest: %q)", hint)
	}
	c.logger.Warn(msg)
	return ""
}

func (c *Controller) play() {
	switch {
	case c.state == StateReady:
		if c.current.pending {
			c.ignored("play")
			return
		}
		c.speak(c.current)
	case c.state == StateIdle || c.state.Terminal():
		if c.last == nil {
			c.ignored("play")
			return
		}
		s := &session{id: c.newID(), config: c.last.config, voice: c.last.voice}
		c.current = s
		c.last = s
		c.lastErr = ""
		c.transition(StateReady, StatusReady)
		c.speak(s)
	default:
		c.ignored("play")
	}
}

func (c *Controller) speak(s *session) {
	// Only a superseded utterance can still be mid-flight here.
	if c.engine.Speaking() {
		c.engine.Cancel()
	}
	s.pending = true

	id := s.id
	c.engine.Speak(speech.Utterance{
		ID:     id,
		Text:   s.config.Text,
		Rate:   s.config.Rate,
		Pitch:  s.config.Pitch,
		Volume: s.config.Volume,
		Voice:  s.voice,
	}, speech.Callbacks{
		OnStart: func() { c.post(id, eventStart, "") },
		OnEnd:   func() { c.post(id, eventEnd, "") },
		OnError: func(code string) { c.post(id, eventError, code) },
	})
	c.logger.Debug(fmt.Sprintf("speak issued for session %s", id))
}

func (c *Controller) pause() {
	if c.state != StateSpeaking {
		c.ignored("pause")
		return
	}
	c.engine.Pause()
	c.transition(StatePaused, StatusPaused)
}

func (c *Controller) resume() {
	if c.state != StatePaused {
		c.ignored("resume")
		return
	}
	c.engine.Resume()
	c.transition(StateSpeaking, StatusPlaying)
}

func (c *Controller) stop() {
	if !c.active() {
		c.ignored("stop")
		return
	}
	c.engine.Cancel()
	c.current = nil
	c.transition(StateIdle, StatusStopped)
}

func (c *Controller) handleEvent(sessionID string, kind eventKind, code string) {
	if c.current == nil || c.current.id != sessionID {
		c.logger.Debug(fmt.Sprintf("dropping stale %s callback for session %s", kind, sessionID))
		return
	}

	s := c.current
	switch kind {
	case eventStart:
		if c.state != StateReady || !s.pending {
			return
		}
		s.pending = false
		c.transition(StateSpeaking, StatusPlaying)
	case eventEnd:
		if !c.active() {
			return
		}
		s.pending = false
		c.transition(StateFinished, StatusFinished)
	case eventError:
		if !c.active() {
			return
		}
		s.pending = false
		c.lastErr = code
		c.logger.WithError(&EngineError{Code: code}).Warn(fmt.Sprintf("session %s failed", s.id))
		c.transition(StateErrored, statusError+code)
	}
}

// active reports a session the engine may still be working on.
func (c *Controller) active() bool {
	if c.current == nil {
		return false
	}
	switch c.state {
	case StateSpeaking, StatePaused:
		return true
	case StateReady:
		return c.current.pending
	default:
		return false
	}
}

func (c *Controller) transition(to State, status string) {
	from := c.state
	c.state = to
	c.status = status
	c.logger.Debug(fmt.Sprintf("%s -> %s", from, to))

	snap := c.snapshot()
	for _, fn := range c.listeners {
		fn(snap)
	}
}

func (c *Controller) ignored(cmd string) {
	c.logger.Debug(fmt.Sprintf("%s ignored in state %s", cmd, c.state))
}

func (c *Controller) snapshot() Snapshot {
	pending := c.state == StateReady && c.current != nil && c.current.pending
	snap := Snapshot{
		State:       c.state,
		Pending:     pending,
		Status:      c.status,
		Affordances: AffordancesFor(c.state, c.last != nil, pending),
		LastError:   c.lastErr,
	}
	if c.current != nil {
		snap.SessionID = c.current.id
	}
	if s := c.current; s != nil || c.last != nil {
		if s == nil {
			s = c.last
		}
		cfg := s.config
		snap.Utterance = &cfg
		snap.Voice = s.voice
	}
	return snap
}

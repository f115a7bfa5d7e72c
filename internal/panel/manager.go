// Package panel wires one playback controller, speech engine and websocket
// hub together for every browser panel.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/playback"
	"github.com/tahcohcat/voicepanel/internal/speech"
	"github.com/tahcohcat/voicepanel/internal/tts"
	"github.com/tahcohcat/voicepanel/internal/voice"
	"github.com/tahcohcat/voicepanel/internal/websocket"
)

// Messages pushed to the tabs besides the engine commands.
const (
	MsgState  = "state"
	MsgVoices = "voices"
)

type Panel struct {
	ID         string
	Controller *playback.Controller
	Engine     *speech.BrowserEngine
	Hub        *websocket.Hub

	cancel   context.CancelFunc
	mu       sync.Mutex
	lastSeen time.Time
}

func (p *Panel) touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

func (p *Panel) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

type Manager struct {
	ctx      context.Context
	synth    tts.Synthesizer
	registry *voice.Registry
	timeout  time.Duration
	idle     time.Duration
	logger   *logger.Log
	now      func() time.Time

	mu     sync.Mutex
	panels map[string]*Panel
}

// NewManager creates panels on demand. Panels live until ctx ends or they
// sit idle, with no tab connected, for longer than idle.
func NewManager(ctx context.Context, synth tts.Synthesizer, registry *voice.Registry, synthTimeout, idle time.Duration) *Manager {
	m := &Manager{
		ctx:      ctx,
		synth:    synth,
		registry: registry,
		timeout:  synthTimeout,
		idle:     idle,
		logger:   logger.New().Named("panel"),
		now:      time.Now,
		panels:   make(map[string]*Panel),
	}
	registry.Subscribe(m.broadcastVoices)
	return m
}

// Get returns the panel with id, creating it on first use.
func (m *Manager) Get(id string) *Panel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.panels[id]; ok {
		p.touch(m.now())
		return p
	}

	p := m.newPanel(id)
	m.panels[id] = p
	m.logger.Info(fmt.Sprintf("panel %s created (%d active)", id, len(m.panels)))
	return p
}

func (m *Manager) newPanel(id string) *Panel {
	ctx, cancel := context.WithCancel(m.ctx)
	p := &Panel{ID: id, cancel: cancel, lastSeen: m.now()}

	var engine *speech.BrowserEngine
	hub := websocket.NewHub(
		websocket.WithMessageHandler(func(msgType string, data json.RawMessage) {
			engine.HandleMessage(msgType, data)
		}),
		websocket.WithConnectHandler(func() {
			p.touch(m.now())
			snap, err := p.Controller.Snapshot(ctx)
			if err != nil {
				return
			}
			p.Hub.Send(MsgState, snap)
			p.Hub.Send(MsgVoices, m.registry.Voices())
		}),
	)
	engine = speech.NewBrowserEngine(m.synth, hub, m.timeout)
	controller := playback.NewController(engine, m.registry,
		playback.WithLogger(logger.New().Named("playback").With("panel", id)))

	p.Hub = hub
	p.Engine = engine
	p.Controller = controller

	go hub.Run(ctx)
	go func() {
		controller.Run(ctx)
		engine.Close()
	}()

	// Subscribe goes through the controller queue, so Run must be live.
	if err := controller.Subscribe(func(s playback.Snapshot) { hub.Send(MsgState, s) }); err != nil {
		m.logger.WithError(err).Warn(fmt.Sprintf("panel %s: state notifications unavailable", id))
	}
	return p
}

func (m *Manager) broadcastVoices(voices []voice.Descriptor) {
	for _, p := range m.snapshot() {
		p.Hub.Send(MsgVoices, voices)
	}
}

func (m *Manager) snapshot() []*Panel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Panel, 0, len(m.panels))
	for _, p := range m.panels {
		out = append(out, p)
	}
	return out
}

// Len is the number of live panels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.panels)
}

// Sweep drops panels idle for longer than the idle timeout with no tab
// connected. It returns how many were dropped.
func (m *Manager) Sweep() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	var dropped int
	for id, p := range m.panels {
		if p.Hub.Clients() > 0 || p.idleSince().After(cutoff) {
			continue
		}
		p.cancel()
		delete(m.panels, id)
		dropped++
	}
	if dropped > 0 {
		m.logger.Info(fmt.Sprintf("evicted %d idle panels (%d active)", dropped, len(m.panels)))
	}
	return dropped
}

// Run sweeps idle panels every interval until the manager context ends.
func (m *Manager) Run(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

package api

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/voicepanel/internal/auth"
	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/panel"
	"github.com/tahcohcat/voicepanel/internal/playback"
)

// Panels resolves the caller's panel.
type Panels interface {
	Get(id string) *panel.Panel
}

type PanelHandler struct {
	panels Panels
	logger *logger.Log
}

func NewPanelHandler(panels Panels) *PanelHandler {
	return &PanelHandler{panels: panels, logger: logger.New().Named("api")}
}

type errorResponse struct {
	Error string             `json:"error"`
	Field string             `json:"field,omitempty"`
	State *playback.Snapshot `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (ph *PanelHandler) panel(w http.ResponseWriter, r *http.Request) *panel.Panel {
	return ph.panels.Get(auth.PanelID(w, r))
}

// readForm accepts either a JSON body or a regular HTML form post.
func readForm(r *http.Request) (playback.FormValues, error) {
	var v playback.FormValues
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			return v, err
		}
		return v, nil
	}
	if err := r.ParseForm(); err != nil {
		return v, err
	}
	return playback.FormValues{
		Text:   r.FormValue("text"),
		Rate:   r.FormValue("rate"),
		Pitch:  r.FormValue("pitch"),
		Volume: r.FormValue("volume"),
		Voice:  r.FormValue("voice"),
	}, nil
}

// POST /api/v1/generate - Build a new utterance from the panel controls
func (ph *PanelHandler) Generate(w http.ResponseWriter, r *http.Request) {
	values, err := readForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	p := ph.panel(w, r)

	cfg, err := playback.ParseForm(values)
	if err == nil {
		var snap playback.Snapshot
		snap, err = p.Controller.Generate(r.Context(), cfg)
		if err == nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	if verr, ok := playback.AsValidation(err); ok {
		resp := errorResponse{Error: verr.Message, Field: verr.Field}
		if snap, serr := p.Controller.Snapshot(r.Context()); serr == nil {
			resp.State = &snap
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	ph.commandFailed(w, err)
}

func (ph *PanelHandler) command(do func(*panel.Panel, *http.Request) (playback.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := do(ph.panel(w, r), r)
		if err != nil {
			ph.commandFailed(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (ph *PanelHandler) commandFailed(w http.ResponseWriter, err error) {
	ph.logger.WithError(err).Warn("panel command failed")
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
}

// POST /api/v1/play
func (ph *PanelHandler) Play() http.HandlerFunc {
	return ph.command(func(p *panel.Panel, r *http.Request) (playback.Snapshot, error) {
		return p.Controller.Play(r.Context())
	})
}

// POST /api/v1/pause
func (ph *PanelHandler) Pause() http.HandlerFunc {
	return ph.command(func(p *panel.Panel, r *http.Request) (playback.Snapshot, error) {
		return p.Controller.Pause(r.Context())
	})
}

// POST /api/v1/resume
func (ph *PanelHandler) Resume() http.HandlerFunc {
	return ph.command(func(p *panel.Panel, r *http.Request) (playback.Snapshot, error) {
		return p.Controller.Resume(r.Context())
	})
}

// POST /api/v1/toggle - The pause button, which doubles as resume
func (ph *PanelHandler) Toggle() http.HandlerFunc {
	return ph.command(func(p *panel.Panel, r *http.Request) (playback.Snapshot, error) {
		return p.Controller.Toggle(r.Context())
	})
}

// POST /api/v1/stop
func (ph *PanelHandler) Stop() http.HandlerFunc {
	return ph.command(func(p *panel.Panel, r *http.Request) (playback.Snapshot, error) {
		return p.Controller.Stop(r.Context())
	})
}

// GET /api/v1/state
func (ph *PanelHandler) State() http.HandlerFunc {
	return ph.command(func(p *panel.Panel, r *http.Request) (playback.Snapshot, error) {
		return p.Controller.Snapshot(r.Context())
	})
}

// GET /ws - Browser side of the speech engine plus live state updates
func (ph *PanelHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ph.panel(w, r).Hub.ServeHTTP(w, r)
}

func RegisterRoutes(r *mux.Router, panels Panels) *PanelHandler {
	ph := NewPanelHandler(panels)

	r.HandleFunc("/generate", ph.Generate).Methods("POST")
	r.HandleFunc("/play", ph.Play()).Methods("POST")
	r.HandleFunc("/pause", ph.Pause()).Methods("POST")
	r.HandleFunc("/resume", ph.Resume()).Methods("POST")
	r.HandleFunc("/toggle", ph.Toggle()).Methods("POST")
	r.HandleFunc("/stop", ph.Stop()).Methods("POST")
	r.HandleFunc("/state", ph.State()).Methods("GET")

	return ph
}

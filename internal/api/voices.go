package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

// Catalog is the part of the voice registry the handlers need.
type Catalog interface {
	Voices() []voice.Descriptor
	Refresh(ctx context.Context) error
}

type VoiceHandler struct {
	catalog Catalog
	timeout time.Duration
	logger  *logger.Log
}

type voiceEntry struct {
	voice.Descriptor
	Label string `json:"label"`
}

func entries(voices []voice.Descriptor) []voiceEntry {
	out := make([]voiceEntry, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceEntry{Descriptor: v, Label: v.Label()})
	}
	return out
}

// GET /api/v1/voices - Dropdown contents
func (vh *VoiceHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, entries(vh.catalog.Voices()))
}

// POST /api/v1/voices/refresh - Re-query the synthesizer for its voices
func (vh *VoiceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), vh.timeout)
	defer cancel()

	if err := vh.catalog.Refresh(ctx); err != nil {
		vh.logger.WithError(err).Error("voice refresh failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Failed to refresh voices"})
		return
	}
	writeJSON(w, http.StatusOK, entries(vh.catalog.Voices()))
}

func RegisterVoiceRoutes(r *mux.Router, catalog Catalog, timeout time.Duration) *VoiceHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	vh := &VoiceHandler{catalog: catalog, timeout: timeout, logger: logger.New().Named("api")}

	r.HandleFunc("/voices", vh.List).Methods("GET")
	r.HandleFunc("/voices/refresh", vh.Refresh).Methods("POST")

	return vh
}

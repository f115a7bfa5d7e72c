package tts

import (
	"context"
	"fmt"

	"github.com/tahcohcat/voicepanel/config"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

// Request carries the prosody the panel uses: rate in [0.1, 10], pitch in
// [0, 2] and volume in [0, 1], all with 1 as neutral except volume where 1
// is full scale. Empty Voice selects the synthesizer default.
type Request struct {
	Text   string
	Voice  string
	Rate   float64
	Pitch  float64
	Volume float64
}

// Audio is an encoded clip ready to hand to a browser audio element.
// Prosody reports whether rate, pitch and volume were baked into the clip;
// when false the player applies rate and volume itself.
type Audio struct {
	Data        []byte
	ContentType string
	Prosody     bool
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
	Voices(ctx context.Context) ([]voice.Descriptor, error)
	Name() string
	Close() error
}

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderEdge   Provider = "edge"
	ProviderSilent Provider = "silent"
)

// New creates the synthesizer selected by cfg.Type.
func New(cfg config.TtsConfig) (Synthesizer, error) {
	switch Provider(cfg.Type) {
	case ProviderGoogle:
		g, err := NewGoogle(cfg.Google)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderEdge:
		return NewEdge(cfg.Edge), nil
	case ProviderSilent, "":
		return NewSilent(), nil
	default:
		return nil, fmt.Errorf("unsupported tts type: %s", cfg.Type)
	}
}

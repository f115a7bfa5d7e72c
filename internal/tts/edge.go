package tts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/tahcohcat/voicepanel/config"
	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

// EdgeTTS synthesizes MP3 with the Microsoft Edge read-aloud service. The
// service exposes no voice listing, so the catalog comes from config.
type EdgeTTS struct {
	defaultVoice string
	voices       []string
	logger       *logger.Log
}

func NewEdge(cfg config.EdgeConfig) *EdgeTTS {
	return &EdgeTTS{
		defaultVoice: cfg.DefaultVoice,
		voices:       cfg.Voices,
		logger:       logger.New().Named("tts.edge"),
	}
}

func (e *EdgeTTS) Synthesize(ctx context.Context, r Request) (*Audio, error) {
	if strings.TrimSpace(r.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceName := r.Voice
	if voiceName == "" {
		voiceName = e.defaultVoice
	}

	comm, err := edge.NewCommunicate(r.Text, edgeOptions(voiceName, r)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create edge-tts request: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("failed to start edge-tts stream: %w", err)
	}

	data, err := collectAudio(ctx, ch)
	if err != nil {
		return nil, err
	}

	e.logger.Debug(fmt.Sprintf("Generated %d bytes of MP3 audio with voice %s", len(data), voiceName))
	return &Audio{Data: data, ContentType: "audio/mpeg", Prosody: true}, nil
}

// Edge accepts rate within 0.5x to 2x and pitch as a relative Hz shift.
const (
	edgeMinRate = -50
	edgeMaxRate = 100
	edgePitchHz = 50
	edgeMinGain = -100
)

// edgeOptions maps the panel's multipliers onto the relative prosody
// strings the read-aloud service expects.
func edgeOptions(voiceName string, r Request) []edge.Option {
	rate := int(math.Round(clamp((r.Rate-1)*100, edgeMinRate, edgeMaxRate)))
	volume := int(math.Round(clamp((r.Volume-1)*100, edgeMinGain, 0)))
	pitch := int(math.Round(clamp((r.Pitch-1)*edgePitchHz, -edgePitchHz, edgePitchHz)))

	opts := []edge.Option{
		edge.WithRate(fmt.Sprintf("%+d%%", rate)),
		edge.WithVolume(fmt.Sprintf("%+d%%", volume)),
		edge.WithPitch(fmt.Sprintf("%+dHz", pitch)),
	}
	if voiceName != "" {
		opts = append(opts, edge.WithVoice(voiceName))
	}
	return opts
}

// collectAudio gathers the audio chunks of a stream. The producer blocks on
// every send, so on cancellation the rest of the stream is drained in the
// background until the service closes it.
func collectAudio(ctx context.Context, ch <-chan map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			go func() {
				for range ch {
				}
			}()
			return nil, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				if buf.Len() == 0 {
					return nil, fmt.Errorf("no audio received from edge-tts")
				}
				return buf.Bytes(), nil
			}
			if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
				if data, ok := msg["data"].([]byte); ok {
					buf.Write(data)
				}
			}
		}
	}
}

func (e *EdgeTTS) Voices(_ context.Context) ([]voice.Descriptor, error) {
	out := make([]voice.Descriptor, 0, len(e.voices))
	for _, name := range e.voices {
		out = append(out, voice.Descriptor{Name: name, Language: languageOf(name)})
	}
	return out, nil
}

func (e *EdgeTTS) Name() string {
	return "Microsoft Edge TTS"
}

func (e *EdgeTTS) Close() error {
	return nil
}

// languageOf takes the locale prefix of names like "en-US-AriaNeural".
func languageOf(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return ""
}

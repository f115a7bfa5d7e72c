package tts

import (
	"context"
	"fmt"
	"math"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/tahcohcat/voicepanel/config"
	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

// googleClient is the subset of the Cloud TTS client in use.
type googleClient interface {
	SynthesizeSpeech(ctx context.Context, req *tts.SynthesizeSpeechRequest, opts ...gax.CallOption) (*tts.SynthesizeSpeechResponse, error)
	ListVoices(ctx context.Context, req *tts.ListVoicesRequest, opts ...gax.CallOption) (*tts.ListVoicesResponse, error)
	Close() error
}

type WebGoogleTTS struct {
	client       googleClient
	languageCode string
	defaultVoice string
	logger       *logger.Log
}

func NewGoogle(cfg config.GoogleConfig) (*WebGoogleTTS, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google TTS client: %w", err)
	}

	return newGoogleWithClient(client, cfg), nil
}

func newGoogleWithClient(client googleClient, cfg config.GoogleConfig) *WebGoogleTTS {
	return &WebGoogleTTS{
		client:       client,
		languageCode: cfg.LanguageCode,
		defaultVoice: cfg.DefaultVoice,
		logger:       logger.New().Named("tts.google"),
	}
}

// Extract language code from voice name (e.g., "en-US-Chirp-HD-F" -> "en-US", "en-GB-Standard-D" -> "en-GB")
func (g *WebGoogleTTS) extractLanguageCode(voiceName string) string {
	parts := strings.Split(voiceName, "-")
	if len(parts) >= 2 {
		return fmt.Sprintf("%s-%s", parts[0], parts[1])
	}
	// Fallback to en-US if we can't parse
	return "en-US"
}

func (g *WebGoogleTTS) Synthesize(ctx context.Context, r Request) (*Audio, error) {
	if strings.TrimSpace(r.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceName := r.Voice
	if voiceName == "" {
		voiceName = g.defaultVoice
	}

	req := &tts.SynthesizeSpeechRequest{
		Input: &tts.SynthesisInput{
			InputSource: &tts.SynthesisInput_Text{Text: r.Text},
		},
		Voice: &tts.VoiceSelectionParams{
			LanguageCode: g.extractLanguageCode(voiceName),
			Name:         voiceName,
		},
		AudioConfig: &tts.AudioConfig{
			AudioEncoding:   tts.AudioEncoding_MP3, // Use MP3 for web compatibility
			SpeakingRate:    speakingRate(r.Rate),
			Pitch:           pitchSemitones(r.Pitch),
			VolumeGainDb:    volumeGainDb(r.Volume),
			SampleRateHertz: 22050,
		},
	}

	g.logger.Debug(fmt.Sprintf("Generating Google TTS audio with voice: %s, rate: %.2f, pitch: %.2f, volume: %.2f",
		voiceName, r.Rate, r.Pitch, r.Volume))

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("empty audio content received from Google TTS")
	}

	g.logger.Debug(fmt.Sprintf("Generated %d bytes of MP3 audio", len(resp.AudioContent)))
	return &Audio{Data: resp.AudioContent, ContentType: "audio/mpeg", Prosody: true}, nil
}

// Voices lists one descriptor per voice, using its first language code.
func (g *WebGoogleTTS) Voices(ctx context.Context) ([]voice.Descriptor, error) {
	resp, err := g.client.ListVoices(ctx, &tts.ListVoicesRequest{LanguageCode: g.languageCode})
	if err != nil {
		return nil, fmt.Errorf("failed to list Google voices: %w", err)
	}

	out := make([]voice.Descriptor, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := g.extractLanguageCode(v.Name)
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		out = append(out, voice.Descriptor{Name: v.Name, Language: lang})
	}
	return out, nil
}

func (g *WebGoogleTTS) Name() string {
	return "Google Cloud Text-to-Speech (Web)"
}

func (g *WebGoogleTTS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Cloud TTS accepts speaking rates in [0.25, 4].
func speakingRate(rate float64) float64 {
	if rate <= 0 {
		return 1.0
	}
	return clamp(rate, 0.25, 4.0)
}

// Panel pitch 1 is neutral; 0 and 2 map to the API's -20 and +20 semitones.
func pitchSemitones(pitch float64) float64 {
	return clamp((pitch-1)*20, -20, 20)
}

// Linear volume to gain in dB, bounded to the API range [-96, 16].
func volumeGainDb(volume float64) float64 {
	if volume <= 0 {
		return -96
	}
	return clamp(20*math.Log10(volume), -96, 16)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

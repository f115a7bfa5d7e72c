package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahcohcat/voicepanel/config"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

type fakeGoogleClient struct {
	lastSynth *tts.SynthesizeSpeechRequest
	lastList  *tts.ListVoicesRequest
	audio     []byte
	voices    []*tts.Voice
	err       error
	closed    bool
}

func (f *fakeGoogleClient) SynthesizeSpeech(_ context.Context, req *tts.SynthesizeSpeechRequest, _ ...gax.CallOption) (*tts.SynthesizeSpeechResponse, error) {
	f.lastSynth = req
	if f.err != nil {
		return nil, f.err
	}
	return &tts.SynthesizeSpeechResponse{AudioContent: f.audio}, nil
}

func (f *fakeGoogleClient) ListVoices(_ context.Context, req *tts.ListVoicesRequest, _ ...gax.CallOption) (*tts.ListVoicesResponse, error) {
	f.lastList = req
	if f.err != nil {
		return nil, f.err
	}
	return &tts.ListVoicesResponse{Voices: f.voices}, nil
}

func (f *fakeGoogleClient) Close() error {
	f.closed = true
	return nil
}

func TestGoogleSynthesizeMapsProsody(t *testing.T) {
	client := &fakeGoogleClient{audio: []byte{0xff, 0xfb}}
	g := newGoogleWithClient(client, config.GoogleConfig{DefaultVoice: "en-US-Chirp-HD-F"})

	audio, err := g.Synthesize(context.Background(), Request{Text: "Hello", Rate: 2, Pitch: 1.5, Volume: 1})
	require.NoError(t, err)

	assert.Equal(t, "audio/mpeg", audio.ContentType)
	assert.True(t, audio.Prosody)

	req := client.lastSynth
	assert.Equal(t, "en-US-Chirp-HD-F", req.Voice.Name)
	assert.Equal(t, "en-US", req.Voice.LanguageCode)
	assert.InDelta(t, 2.0, req.AudioConfig.SpeakingRate, 1e-9)
	assert.InDelta(t, 10.0, req.AudioConfig.Pitch, 1e-9)
	assert.InDelta(t, 0.0, req.AudioConfig.VolumeGainDb, 1e-9)
}

func TestGoogleSynthesizeUsesRequestedVoice(t *testing.T) {
	client := &fakeGoogleClient{audio: []byte{1}}
	g := newGoogleWithClient(client, config.GoogleConfig{DefaultVoice: "en-US-Chirp-HD-F"})

	_, err := g.Synthesize(context.Background(), Request{Text: "Hallo", Voice: "de-DE-Wavenet-B", Rate: 1, Pitch: 1, Volume: 1})
	require.NoError(t, err)
	assert.Equal(t, "de-DE-Wavenet-B", client.lastSynth.Voice.Name)
	assert.Equal(t, "de-DE", client.lastSynth.Voice.LanguageCode)
}

func TestGoogleSynthesizeErrors(t *testing.T) {
	g := newGoogleWithClient(&fakeGoogleClient{}, config.GoogleConfig{})

	_, err := g.Synthesize(context.Background(), Request{Text: "   "})
	assert.Error(t, err)

	_, err = g.Synthesize(context.Background(), Request{Text: "empty audio", Rate: 1, Pitch: 1, Volume: 1})
	assert.Error(t, err)

	failing := newGoogleWithClient(&fakeGoogleClient{err: errors.New("permission denied")}, config.GoogleConfig{})
	_, err = failing.Synthesize(context.Background(), Request{Text: "hi", Rate: 1, Pitch: 1, Volume: 1})
	assert.ErrorContains(t, err, "permission denied")
}

func TestGoogleVoices(t *testing.T) {
	client := &fakeGoogleClient{voices: []*tts.Voice{
		{Name: "en-GB-Standard-D", LanguageCodes: []string{"en-GB"}},
		{Name: "cmn-CN-Wavenet-A"},
	}}
	g := newGoogleWithClient(client, config.GoogleConfig{LanguageCode: "en"})

	voices, err := g.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []voice.Descriptor{
		{Name: "en-GB-Standard-D", Language: "en-GB"},
		{Name: "cmn-CN-Wavenet-A", Language: "cmn-CN"},
	}, voices)
	assert.Equal(t, "en", client.lastList.LanguageCode)

	require.NoError(t, g.Close())
	assert.True(t, client.closed)
}

func TestProsodyClamping(t *testing.T) {
	assert.InDelta(t, 4.0, speakingRate(10), 1e-9)
	assert.InDelta(t, 0.25, speakingRate(0.1), 1e-9)
	assert.InDelta(t, 1.0, speakingRate(0), 1e-9)

	assert.InDelta(t, -20.0, pitchSemitones(0), 1e-9)
	assert.InDelta(t, 20.0, pitchSemitones(2), 1e-9)
	assert.InDelta(t, 0.0, pitchSemitones(1), 1e-9)

	assert.InDelta(t, -96.0, volumeGainDb(0), 1e-9)
	assert.InDelta(t, -6.0206, volumeGainDb(0.5), 1e-3)
}

func TestSilentSynthesize(t *testing.T) {
	s := NewSilent()

	audio, err := s.Synthesize(context.Background(), Request{Text: "Hello world", Rate: 1})
	require.NoError(t, err)

	assert.Equal(t, "audio/wav", audio.ContentType)
	require.Greater(t, len(audio.Data), 44)
	assert.Equal(t, "RIFF", string(audio.Data[0:4]))
	assert.Equal(t, "WAVE", string(audio.Data[8:12]))

	dataSize := binary.LittleEndian.Uint32(audio.Data[40:44])
	assert.Equal(t, len(audio.Data)-44, int(dataSize))

	_, err = s.Synthesize(context.Background(), Request{Text: ""})
	assert.Error(t, err)
}

func TestSilentDuration(t *testing.T) {
	assert.Equal(t, silentMin, SilentDuration("hi", 1))
	assert.Equal(t, 600*time.Millisecond, SilentDuration("0123456789", 1))
	assert.Equal(t, 300*time.Millisecond, SilentDuration("0123456789", 2))
	assert.Equal(t, silentMax, SilentDuration(string(make([]rune, 5000)), 1))
}

func TestEdgeVoicesFromConfig(t *testing.T) {
	e := NewEdge(config.EdgeConfig{Voices: []string{"en-US-AriaNeural", "fr-FR-DeniseNeural", "odd"}})

	voices, err := e.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []voice.Descriptor{
		{Name: "en-US-AriaNeural", Language: "en-US"},
		{Name: "fr-FR-DeniseNeural", Language: "fr-FR"},
		{Name: "odd", Language: ""},
	}, voices)
}

func TestEdgeOptionsMapProsody(t *testing.T) {
	tests := []struct {
		name                string
		req                 Request
		rate, volume, pitch string
	}{
		{"neutral", Request{Rate: 1, Pitch: 1, Volume: 1}, "+0%", "+0%", "+0Hz"},
		{"faster, higher, quieter", Request{Rate: 1.5, Pitch: 1.4, Volume: 0.25}, "+50%", "-75%", "+20Hz"},
		{"slowest", Request{Rate: 0.1, Pitch: 0, Volume: 0}, "-50%", "-100%", "-50Hz"},
		{"fastest", Request{Rate: 10, Pitch: 2, Volume: 1}, "+100%", "+0%", "+50Hz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := edgeOptions("en-GB-SoniaNeural", tt.req)
			assert.Equal(t, tt.rate, edge.GetRateByOption(opts))
			assert.Equal(t, tt.volume, edge.GetVolumeByOption(opts))
			assert.Equal(t, tt.pitch, edge.GetPitchByOption(opts))
			assert.Equal(t, "en-GB-SoniaNeural", edge.GetVoiceByOption(opts))

			_, err := edge.NewCommunicate("hello", opts...)
			assert.NoError(t, err)
		})
	}

	assert.Empty(t, edge.GetVoiceByOption(edgeOptions("", Request{Rate: 1, Pitch: 1, Volume: 1})))
}

func TestCollectAudio(t *testing.T) {
	ch := make(chan map[string]interface{})
	go func() {
		defer close(ch)
		ch <- map[string]interface{}{"type": "audio", "data": []byte("ab")}
		ch <- map[string]interface{}{"type": "WordBoundary"}
		ch <- map[string]interface{}{"type": "audio", "data": []byte("cd")}
	}()

	data, err := collectAudio(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	empty := make(chan map[string]interface{})
	close(empty)
	_, err = collectAudio(context.Background(), empty)
	assert.Error(t, err)
}

func TestCollectAudioDrainsStreamOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan map[string]interface{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		<-release
		for i := 0; i < 3; i++ {
			ch <- map[string]interface{}{"type": "audio", "data": []byte{byte(i)}}
		}
	}()

	_, err := collectAudio(ctx, ch)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream producer still blocked after cancellation")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(config.TtsConfig{Type: "silent"})
	require.NoError(t, err)
	assert.Equal(t, "silent", s.Name())

	e, err := New(config.TtsConfig{Type: "edge"})
	require.NoError(t, err)
	assert.Equal(t, "Microsoft Edge TTS", e.Name())

	_, err = New(config.TtsConfig{Type: "festival"})
	assert.Error(t, err)
}

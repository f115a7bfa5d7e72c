package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

const (
	silentSampleRate = 16000
	silentPerRune    = 60 * time.Millisecond
	silentMin        = 300 * time.Millisecond
	silentMax        = time.Minute
)

// SilentTTS renders silence whose length follows the text and rate. It
// needs no credentials and keeps the panel usable in development.
type SilentTTS struct {
	logger *logger.Log
}

func NewSilent() *SilentTTS {
	return &SilentTTS{logger: logger.New().Named("tts.silent")}
}

func (s *SilentTTS) Synthesize(_ context.Context, r Request) (*Audio, error) {
	if strings.TrimSpace(r.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	d := SilentDuration(r.Text, r.Rate)
	samples := int(d.Seconds() * silentSampleRate)
	dataSize := samples * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)
	if err := writeWAVHeader(&buf, dataSize); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	buf.Write(make([]byte, dataSize))

	s.logger.Debug(fmt.Sprintf("no tts configured. generated %s of silence", d))
	return &Audio{Data: buf.Bytes(), ContentType: "audio/wav", Prosody: true}, nil
}

// SilentDuration is the clip length for text spoken at rate.
func SilentDuration(text string, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	d := time.Duration(float64(len([]rune(text))) * float64(silentPerRune) / rate)
	if d < silentMin {
		return silentMin
	}
	if d > silentMax {
		return silentMax
	}
	return d
}

func (s *SilentTTS) Voices(_ context.Context) ([]voice.Descriptor, error) {
	return []voice.Descriptor{
		{Name: "Silent Narrator", Language: "en-US"},
		{Name: "Silent Butler", Language: "en-GB"},
	}, nil
}

func (s *SilentTTS) Name() string {
	return "silent"
}

func (s *SilentTTS) Close() error {
	return nil
}

// writeWAVHeader writes a 44-byte header for 16 kHz 16-bit mono PCM.
func writeWAVHeader(w io.Writer, dataSize int) error {
	fields := []interface{}{
		[]byte("RIFF"), uint32(36 + dataSize), []byte("WAVE"),
		[]byte("fmt "), uint32(16), uint16(1), uint16(1),
		uint32(silentSampleRate), uint32(silentSampleRate * 2), uint16(2), uint16(16),
		[]byte("data"), uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

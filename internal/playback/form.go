package playback

import (
	"strconv"
	"strings"
)

// FormValues are the raw control values as the panel submits them.
type FormValues struct {
	Text   string `json:"text"`
	Rate   string `json:"rate"`
	Pitch  string `json:"pitch"`
	Volume string `json:"volume"`
	Voice  string `json:"voice"`
}

// ParseForm turns raw control values into an UtteranceConfig. Blank
// numbers take the neutral slider position; anything else that is not a
// number is a ValidationError. Range clamping happens in Generate.
func ParseForm(v FormValues) (UtteranceConfig, error) {
	cfg := DefaultUtterance(v.Text)
	cfg.VoiceName = strings.TrimSpace(v.Voice)

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"rate", v.Rate, &cfg.Rate},
		{"pitch", v.Pitch, &cfg.Pitch},
		{"volume", v.Volume, &cfg.Volume},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return UtteranceConfig{}, &ValidationError{Field: f.name, Message: "must be a number"}
		}
		*f.dst = n
	}
	return cfg, nil
}

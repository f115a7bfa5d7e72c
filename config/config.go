package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tahcohcat/voicepanel/internal/logger"
)

type Config struct {
	Server ServerConfig  `mapstructure:"server"`
	Auth   AuthConfig    `mapstructure:"auth"`
	Tts    TtsConfig     `mapstructure:"tts"`
	Log    logger.Config `mapstructure:"log"`
}

type ServerConfig struct {
	Port             string        `mapstructure:"port"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	StaticDir        string        `mapstructure:"static_dir"`
	IndexFile        string        `mapstructure:"index_file"`
	PanelIdleTimeout time.Duration `mapstructure:"panel_idle_timeout"`
}

// Login is disabled when PasswordHash is empty.
type AuthConfig struct {
	SessionSecret string `mapstructure:"session_secret"`
	PasswordHash  string `mapstructure:"password_hash"` // bcrypt
}

type TtsConfig struct {
	Type                  string        `mapstructure:"type"` // "google", "edge" or "silent"
	Timeout               time.Duration `mapstructure:"timeout"`
	VoicesRefreshInterval time.Duration `mapstructure:"voices_refresh_interval"`
	Google                GoogleConfig  `mapstructure:"google"`
	Edge                  EdgeConfig    `mapstructure:"edge"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"` // optional, ADC otherwise
	LanguageCode    string `mapstructure:"language_code"`    // ListVoices filter, empty = all
	DefaultVoice    string `mapstructure:"default_voice"`
}

type EdgeConfig struct {
	DefaultVoice string   `mapstructure:"default_voice"`
	Voices       []string `mapstructure:"voices"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	v.SetDefault("server.static_dir", "./web/static/")
	v.SetDefault("server.index_file", "./web/templates/index.html")
	v.SetDefault("server.panel_idle_timeout", 30*time.Minute)

	v.SetDefault("auth.session_secret", "your-secret-key-change-this-in-production")
	v.SetDefault("auth.password_hash", "")

	v.SetDefault("tts.type", "silent")
	v.SetDefault("tts.timeout", 30*time.Second)
	v.SetDefault("tts.voices_refresh_interval", 5*time.Minute)
	v.SetDefault("tts.google.language_code", "")
	v.SetDefault("tts.google.default_voice", "en-US-Chirp-HD-F")
	v.SetDefault("tts.edge.default_voice", "en-US-AriaNeural")
	v.SetDefault("tts.edge.voices", []string{
		"en-US-AriaNeural",
		"en-US-GuyNeural",
		"en-GB-SoniaNeural",
		"de-DE-KatjaNeural",
		"fr-FR-DeniseNeural",
	})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads config.yaml, merges config.local.yaml on top when present and
// applies VOICEPANEL_* environment overrides (tts.type -> VOICEPANEL_TTS_TYPE).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults
	}

	// Local overrides are ignored by git
	v.SetConfigName("config.local")
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("VOICEPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

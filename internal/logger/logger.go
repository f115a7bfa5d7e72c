package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config controls the process-wide log output.
type Config struct {
	Level      LogLevel `mapstructure:"level"`
	File       string   `mapstructure:"file"` // empty = console only
	MaxSize    int      `mapstructure:"max_size"`
	MaxBackups int      `mapstructure:"max_backups"`
	MaxAge     int      `mapstructure:"max_age"`
}

var (
	mu   sync.RWMutex
	base = mustDevelopment()
)

func mustDevelopment() *zap.Logger {
	z, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return z
}

func parseLevel(level LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(string(level))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo, "":
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", level)
	}
}

// Init replaces the global log core. Loggers created before Init keep
// writing through the old core, so call it first thing in main.
func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 32
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 7
		}

		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		})
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(output), level)

	mu.Lock()
	base = zap.New(core, zap.AddCallerSkip(1))
	mu.Unlock()
	return nil
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

type Log struct {
	z   *zap.SugaredLogger
	err error
}

func New() *Log {
	mu.RLock()
	defer mu.RUnlock()
	return &Log{z: base.Sugar()}
}

// Named tags every entry with a component name, e.g. "playback".
func (l *Log) Named(name string) *Log {
	return &Log{z: l.z.Named(name), err: l.err}
}

// With attaches structured key/value pairs.
func (l *Log) With(keysAndValues ...interface{}) *Log {
	return &Log{z: l.z.With(keysAndValues...), err: l.err}
}

func (l *Log) WithError(err error) *Log {
	return &Log{z: l.z, err: err}
}

func (l *Log) sugared() *zap.SugaredLogger {
	if l.err != nil {
		return l.z.With("error", l.err)
	}
	return l.z
}

func (l *Log) Debug(msg string) {
	l.sugared().Debug(msg)
}

func (l *Log) Info(msg string) {
	l.sugared().Info(msg)
}

func (l *Log) Warn(msg string) {
	l.sugared().Warn(msg)
}

func (l *Log) Error(msg string) {
	l.sugared().Error(msg)
}

// Package config loads reader settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v3"
)

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Destination string `yaml:"destination,omitempty"`
}

type Settings struct {
	Pad     int           `yaml:"pad"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the built-in settings used when no configuration file is
// given.
func Default() *Settings {
	return &Settings{
		Pad:     3,
		Logging: LoggingConfig{Level: "none"},
	}
}

// Load reads settings from the file at path, superimposing its values on top
// of the defaults. An empty path yields the defaults unchanged.
func Load(path string) (*Settings, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}

	if cfg.Pad < 0 {
		return nil, fmt.Errorf("pad must not be negative, got %d", cfg.Pad)
	}
	return cfg, nil
}

// Prepare returns our standard logger - configured zap logger for use by the
// program. The terminal is owned by the reader while it runs, so anything
// above "none" logs to a file.
func (conf *LoggingConfig) Prepare() (*zap.Logger, error) {
	var level zapcore.Level
	switch conf.Level {
	case "", "none":
		return zap.NewNop(), nil
	case "debug":
		level = zap.DebugLevel
	case "normal":
		level = zap.InfoLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", conf.Level)
	}

	if conf.Destination == "" {
		return nil, fmt.Errorf("log level %q needs a destination file", conf.Level)
	}
	f, err := os.OpenFile(conf.Destination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to access log destination (%s): %w", conf.Destination, err)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(f),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core, zap.AddCaller()).Named("bk"), nil
}

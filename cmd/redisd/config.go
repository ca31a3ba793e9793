package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// redisd config.toml key mapping.
type fileConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	ReadBufferSize  int    `toml:"read_buffer_size"`
	EnableScripting bool   `toml:"enable_scripting"`
}

type serverConfig struct {
	ListenAddr      string
	LogLevel        zerolog.Level
	ConsoleLog      bool
	ReadBufferSize  int
	EnableScripting bool
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		ListenAddr:      ":6379",
		LogLevel:        zerolog.InfoLevel,
		ConsoleLog:      true,
		EnableScripting: true,
	}
}

// loadServerConfig reads the TOML config at path, overlaying defined
// keys onto the defaults. An empty path keeps the defaults.
func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load redisd config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("log_level") {
		level, err := zerolog.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return serverConfig{}, fmt.Errorf("load redisd config: log_level: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("log_format") {
		switch format := strings.TrimSpace(raw.LogFormat); format {
		case "console":
			cfg.ConsoleLog = true
		case "json":
			cfg.ConsoleLog = false
		default:
			return serverConfig{}, fmt.Errorf("load redisd config: unsupported log format %q (expected console or json)", format)
		}
	}
	if meta.IsDefined("read_buffer_size") {
		if raw.ReadBufferSize <= 0 {
			return serverConfig{}, fmt.Errorf("load redisd config: read_buffer_size must be positive, got %d", raw.ReadBufferSize)
		}
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("enable_scripting") {
		cfg.EnableScripting = raw.EnableScripting
	}

	return cfg, nil
}

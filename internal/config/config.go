// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/jsonc"
)

// Config is the server configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port int `json:"port,omitempty"`
	// Hostname the HTTP server binds to.
	Hostname string `json:"hostname,omitempty"`
	// LogLevel is the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"logLevel,omitempty"`
	// EnableCORS toggles permissive CORS headers on the API.
	EnableCORS *bool `json:"enableCors,omitempty"`
	// Collab tunes the collaboration transport.
	Collab CollabConfig `json:"collab,omitempty"`
}

// CollabConfig tunes the websocket transport of the collaboration server.
type CollabConfig struct {
	// SendBuffer is the per-connection outbound queue length. A client
	// whose queue is full has further events dropped, not queued.
	SendBuffer int `json:"sendBuffer,omitempty"`
	// MaxMessageBytes caps inbound frame size. Oversized frames close
	// the connection.
	MaxMessageBytes int64 `json:"maxMessageBytes,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	enableCORS := true
	return &Config{
		Port:       8080,
		Hostname:   "127.0.0.1",
		LogLevel:   "INFO",
		EnableCORS: &enableCORS,
		Collab: CollabConfig{
			SendBuffer:      256,
			MaxMessageBytes: 1 << 20, // 1 MiB
		},
	}
}

// Load loads configuration from multiple sources (later wins):
//  1. Built-in defaults
//  2. Global config (~/.config/pairpad/pairpad.json[c])
//  3. Project config (<directory>/pairpad.json[c])
//  4. PAIRPAD_CONFIG file
//  5. PAIRPAD_CONFIG_CONTENT inline JSON
//  6. Environment variables
func Load(directory string) (*Config, error) {
	cfg := Default()

	globalDir := GetPaths().Config
	loadFile(filepath.Join(globalDir, "pairpad.json"), cfg)
	loadFile(filepath.Join(globalDir, "pairpad.jsonc"), cfg)

	if directory != "" {
		loadFile(filepath.Join(directory, "pairpad.json"), cfg)
		loadFile(filepath.Join(directory, "pairpad.jsonc"), cfg)
	}

	if path := os.Getenv("PAIRPAD_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("PAIRPAD_CONFIG: %w", err)
		}
	}

	if content := os.Getenv("PAIRPAD_CONFIG_CONTENT"); content != "" {
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), cfg); err != nil {
			return nil, fmt.Errorf("PAIRPAD_CONFIG_CONTENT: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Collab.SendBuffer <= 0 {
		cfg.Collab.SendBuffer = Default().Collab.SendBuffer
	}
	if cfg.Collab.MaxMessageBytes <= 0 {
		cfg.Collab.MaxMessageBytes = Default().Collab.MaxMessageBytes
	}

	return cfg, nil
}

// loadFile merges one JSONC config file into cfg. A missing file is not
// an error.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables, the highest-priority source.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PAIRPAD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("PAIRPAD_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("PAIRPAD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

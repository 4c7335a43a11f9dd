package client

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pollsync/pollsync/internal/core/broadcast"
	"github.com/pollsync/pollsync/internal/core/connection"
	"github.com/pollsync/pollsync/internal/core/observability/log"
)

// Config holds configuration for the client.
type Config struct {
	// Connection settings
	Connection connection.Config `yaml:"connection"`

	// Session identity. ParticipantID is generated when left empty.
	SessionID     string `yaml:"session_id"`
	ParticipantID string `yaml:"participant_id"`

	// Fallback-mode settings. An empty PersistencePath keeps the snapshot
	// in memory.
	BroadcastChannel string `yaml:"broadcast_channel"`
	PersistencePath  string `yaml:"persistence_path"`

	// Logging
	LogLevel log.Level `yaml:"log_level"`
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		Connection:       connection.DefaultConfig(),
		SessionID:        "default",
		BroadcastChannel: broadcast.DefaultChannel,
		LogLevel:         log.LevelInfo,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

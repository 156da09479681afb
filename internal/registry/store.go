package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrStore marks a persistence failure. Callers treat it as fatal for the
// operation that triggered it; the registry is never left half-written.
var ErrStore = errors.New("registry store failure")

const defaultRPCURL = "https://eth.llamarpc.com"

// Store persists the monitoring registry as a JSON file.
type Store struct {
	path string
}

// NewStore builds a file-backed store at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath resolves the per-user registry location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve config dir: %v", ErrStore, err)
	}
	return filepath.Join(dir, "vaultwatcher", "config.json"), nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. A missing or unreadable file yields a fresh
// default synthesized from the environment rather than an error.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), nil
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = defaultRPCURL
	}
	if cfg.Vaults == nil {
		cfg.Vaults = []TrackedVault{}
	}
	return &cfg, nil
}

// Save writes the whole registry. The write goes to a temp file in the target
// directory and is renamed into place so a crash never leaves a torn file.
func (s *Store) Save(cfg *Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create config dir: %v", ErrStore, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode config: %v", ErrStore, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "config-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStore, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write config: %v", ErrStore, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync config: %v", ErrStore, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close config: %v", ErrStore, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replace config: %v", ErrStore, err)
	}
	return nil
}

// DefaultConfig synthesizes an empty registry from the environment.
func DefaultConfig() *Config {
	rpcURL := os.Getenv("ETH_RPC_URL")
	if rpcURL == "" {
		rpcURL = defaultRPCURL
	}

	var telegram *string
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		telegram = &chatID
	}

	return &Config{
		RPCURL: rpcURL,
		Vaults: []TrackedVault{},
		AlertChannels: AlertChannels{
			Telegram: telegram,
			Console:  true,
		},
	}
}

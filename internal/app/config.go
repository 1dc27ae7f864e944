package app

import (
	"errors"
	"os"
	"path/filepath"

	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
	"paircrypt/internal/protocol/ratchet"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home         string // state directory, e.g. $HOME/.paircrypt
	Passphrase   string // protects the identity file
	DirectoryURL string // directory base URL, e.g. http://127.0.0.1:8080
	LogLevel     string // zerolog level name
	User         string // local address name
	Device       uint32 // local device id

	Keys    keys.Policy
	Ratchet ratchet.Config
}

// DefaultConfig returns a Config with protocol defaults and the home
// directory under the user's home.
func DefaultConfig() Config {
	home := ".paircrypt"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".paircrypt")
	}
	return Config{
		Home:         home,
		DirectoryURL: "http://127.0.0.1:8080",
		LogLevel:     "warn",
		Device:       domain.DefaultDeviceID,
		Keys:         keys.DefaultPolicy(),
		Ratchet:      ratchet.DefaultConfig(),
	}
}

// Address is the local address described by cfg.
func (cfg Config) Address() (domain.Address, error) {
	if cfg.User == "" {
		return domain.Address{}, errors.New("no user configured; use --user")
	}
	return domain.Address{Name: cfg.User, DeviceID: cfg.Device}, nil
}

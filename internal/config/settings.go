// Package config loads and saves the unencrypted preferences file. Nothing
// in it is secret; the vault payload never passes through here.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PyPartners/MindVault/internal/vault"
)

// Settings is the fixed settings schema. Unknown keys in the file are
// ignored; invalid values fall back to defaults at load time.
type Settings struct {
	Language               string `yaml:"language"`
	Theme                  string `yaml:"theme"`
	Font                   string `yaml:"font"`
	AutoLockTimeoutSeconds int    `yaml:"autoLockTimeoutSeconds"`
	TwoFactorEnabled       bool   `yaml:"twoFactorEnabled"`
}

// Default mirrors the application's shipped defaults.
func Default() Settings {
	return Settings{
		Language: "ar",
		Theme:    "light",
		Font:     "Tahoma",
	}
}

// Load reads the settings file. A missing file yields the defaults; a
// present but unreadable file is an error so a typo'd path is not silently
// treated as first run.
func Load(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("config: read settings: %w", err)
	}
	return Decode(b)
}

// Decode parses a settings document and sanitizes its values.
func Decode(b []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Default(), fmt.Errorf("config: parse settings: %w", err)
	}
	s.sanitize()
	return s, nil
}

// Save writes the settings file atomically.
func Save(path string, s Settings) error {
	s.sanitize()
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	return vault.WriteFileAtomic(path, b, 0o644)
}

// AutoLockTimeout converts the stored seconds to a duration; zero disables
// auto-lock.
func (s Settings) AutoLockTimeout() time.Duration {
	return time.Duration(s.AutoLockTimeoutSeconds) * time.Second
}

func (s *Settings) sanitize() {
	d := Default()
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.Theme != "light" && s.Theme != "dark" {
		s.Theme = d.Theme
	}
	if s.Font == "" {
		s.Font = d.Font
	}
	if s.AutoLockTimeoutSeconds < 0 {
		s.AutoLockTimeoutSeconds = 0
	}
}

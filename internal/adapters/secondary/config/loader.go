// Package config loads and validates PQSecure Mesh's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"

	meshErrors "github.com/pqsecure/mesh/internal/core/errors"
	"github.com/pqsecure/mesh/internal/core/ports"
)

// Environment variable names that override configuration fields loaded
// from file, per spec.md §6.
const (
	EnvConfigPath   = "PQSECURE_CONFIG"
	EnvCAToken      = "PQSECURE_CA_TOKEN"
	EnvCAAPIURL     = "PQSECURE_CA_API_URL"
	EnvListenAddr   = "PQSECURE_LISTEN_ADDR"
	EnvBackendAddr  = "PQSECURE_BACKEND_ADDR"
)

// FileLoader loads ports.Configuration from a YAML file, overlays
// environment variable overrides via viper, and validates the result
// with go-playground/validator/v10 struct tags.
type FileLoader struct {
	validate *validator.Validate
}

// NewFileLoader constructs a FileLoader.
func NewFileLoader() *FileLoader {
	return &FileLoader{validate: validator.New()}
}

// Load reads path, applies the PQSECURE_* environment overlay, and
// validates the result. A validation failure is a *errors.MeshError of
// KindConfig, fatal at startup per spec.md §7.
func (l *FileLoader) Load(path string) (*ports.Configuration, error) {
	if strings.TrimSpace(path) == "" {
		return nil, meshErrors.NewConfigError("configuration path cannot be empty", nil)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, meshErrors.NewConfigError("failed to resolve configuration path", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, meshErrors.NewConfigError(fmt.Sprintf("failed to read configuration file %s", absPath), err)
	}

	var cfg ports.Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, meshErrors.NewConfigError(fmt.Sprintf("failed to parse configuration file %s", absPath), err)
	}

	l.applyEnvironmentOverlay(&cfg)

	if err := l.validate.Struct(&cfg); err != nil {
		return nil, meshErrors.NewConfigError("configuration failed validation", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverlay overrides cfg fields from the PQSECURE_*
// environment variables, read through a viper instance with
// AutomaticEnv; an unset or empty variable leaves the file value as is.
func (l *FileLoader) applyEnvironmentOverlay(cfg *ports.Configuration) {
	v := viper.New()
	v.AutomaticEnv()

	if token := v.GetString(EnvCAToken); token != "" {
		cfg.CA.Token = token
	}
	if apiURL := v.GetString(EnvCAAPIURL); apiURL != "" {
		cfg.CA.APIURL = apiURL
	}
	if listenAddr := v.GetString(EnvListenAddr); listenAddr != "" {
		cfg.Proxy.ListenAddr = listenAddr
	}
	if backendAddr := v.GetString(EnvBackendAddr); backendAddr != "" {
		cfg.Proxy.Backend.Address = backendAddr
	}
}

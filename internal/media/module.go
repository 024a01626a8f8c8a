package media

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/purgarr/purgarr/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// ServiceConfig is one upstream API endpoint.
type ServiceConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

func (c ServiceConfig) configured() bool {
	return c.APIURL != ""
}

// Config holds the media.services module configuration. Radarr and Sonarr
// are optional; deletions for an unconfigured backend report failure.
type Config struct {
	Overseerr ServiceConfig `yaml:"overseerr"`
	Radarr    ServiceConfig `yaml:"radarr"`
	Sonarr    ServiceConfig `yaml:"sonarr"`
}

// Module is the media.services module. It publishes the Overseerr client
// and the deletion facade for the router, commands and ingest.
type Module struct {
	config Config
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "media.services",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("media: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	overseerr := NewOverseerr(m.config.Overseerr.APIURL, m.config.Overseerr.APIKey)

	var radarr *Radarr
	if m.config.Radarr.configured() {
		radarr = NewRadarr(m.config.Radarr.APIURL, m.config.Radarr.APIKey)
	} else {
		m.logger.Warn("radarr not configured, movie deletion disabled")
	}

	var sonarr *Sonarr
	if m.config.Sonarr.configured() {
		sonarr = NewSonarr(m.config.Sonarr.APIURL, m.config.Sonarr.APIKey)
	} else {
		m.logger.Warn("sonarr not configured, series deletion disabled")
	}

	ctx.RegisterService("media.overseerr", overseerr)
	ctx.RegisterService("media.deleter", NewDeleter(radarr, sonarr, m.logger))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if !m.config.Overseerr.configured() {
		return errors.New("media: overseerr.api_url is required")
	}
	return nil
}

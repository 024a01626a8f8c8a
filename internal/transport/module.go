package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/purgarr/purgarr/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&WhatsApp{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*WhatsApp)(nil)
	_ core.Provisioner  = (*WhatsApp)(nil)
	_ core.Validator    = (*WhatsApp)(nil)
	_ core.Starter      = (*WhatsApp)(nil)
	_ core.Stopper      = (*WhatsApp)(nil)
)

// Config holds the channel.whatsapp module configuration.
type Config struct {
	// BridgeURL is the websocket endpoint of the WhatsApp bridge daemon.
	BridgeURL string `yaml:"bridge_url"`

	// SessionDir stores pairing credentials and the reset marker.
	// Defaults to <data_dir>/session.
	SessionDir string `yaml:"session_dir"`

	// ConnectTimeout bounds the initial dial. Defaults to 30s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *Config) defaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}

// WhatsApp is the channel.whatsapp module. It owns the bridge connection
// Manager and publishes it for the router and the reminder dispatcher.
type WhatsApp struct {
	config  Config
	manager *Manager
	logger  *slog.Logger
	appCtx  *core.AppContext
}

// ModuleInfo implements core.Module.
func (w *WhatsApp) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.whatsapp",
		New: func() core.Module { return &WhatsApp{} },
	}
}

// Configure implements core.Configurable.
func (w *WhatsApp) Configure(node *yaml.Node) error {
	if err := node.Decode(&w.config); err != nil {
		return fmt.Errorf("whatsapp: decode config: %w", err)
	}
	w.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (w *WhatsApp) Provision(ctx *core.AppContext) error {
	w.appCtx = ctx
	w.logger = ctx.Logger

	if w.config.SessionDir == "" {
		w.config.SessionDir = filepath.Join(ctx.DataDir, "session")
	}

	w.manager = NewManager(Options{
		BridgeURL:  w.config.BridgeURL,
		SessionDir: w.config.SessionDir,
		Logger:     w.logger,
	})

	// Pairing is a side-channel: surface the code to the operator log.
	w.manager.OnQR(func(code string) {
		w.logger.Info("scan the pairing code to link the device", "code", code)
	})

	ctx.RegisterService("channel.whatsapp", w.manager)
	ctx.RegisterService("channel.state", func() string { return string(w.manager.State()) })
	return nil
}

// Validate implements core.Validator.
func (w *WhatsApp) Validate() error {
	if w.config.BridgeURL == "" {
		return errors.New("whatsapp: bridge_url is required")
	}
	return nil
}

// Start implements core.Starter. It consumes a pending reset marker (forcing
// a fresh pairing after a fatal disconnect) and establishes the session.
func (w *WhatsApp) Start() error {
	if svc, ok := w.appCtx.Service("gateway.metrics"); ok {
		if rec, ok := svc.(MetricsRecorder); ok {
			w.manager.SetMetrics(rec)
		}
	}

	wiped, err := ConsumeReset(w.config.SessionDir)
	if err != nil {
		return err
	}
	if wiped {
		w.logger.Warn("reset marker found: credentials discarded, re-pairing required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.ConnectTimeout)
	defer cancel()
	return w.manager.Connect(ctx)
}

// Stop implements core.Stopper.
func (w *WhatsApp) Stop(ctx context.Context) error {
	return w.manager.Close(ctx)
}

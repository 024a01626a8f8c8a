package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purgarr/purgarr/internal/core"
	"github.com/purgarr/purgarr/internal/gateway"
	"github.com/purgarr/purgarr/internal/schedule"
	"github.com/purgarr/purgarr/internal/store"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
)

// Config holds the ingest.overseerr module configuration.
type Config struct {
	// MovieDelay is the grace period before the first reminder for a
	// movie request. Defaults to 72h.
	MovieDelay time.Duration `yaml:"movie_delay"`

	// TVDelay is the grace period for a series request. Defaults to 24h.
	TVDelay time.Duration `yaml:"tv_delay"`

	// Secret enables HMAC validation on the webhook endpoint when set.
	Secret string `yaml:"secret"`
}

// Module is the ingest.overseerr module. It registers the Overseerr webhook
// handler on the gateway's dispatcher.
type Module struct {
	config  Config
	logger  *slog.Logger
	appCtx  *core.AppContext
	handler *Handler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "ingest.overseerr",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("ingest: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger

	userSvc, ok := ctx.Service("store.users")
	if !ok {
		return errors.New("ingest: store.users service not available")
	}
	users, ok := userSvc.(*store.UserStore)
	if !ok {
		return errors.New("ingest: store.users service has unexpected type")
	}

	reqSvc, ok := ctx.Service("store.requests")
	if !ok {
		return errors.New("ingest: store.requests service not available")
	}
	requests, ok := reqSvc.(*store.RequestStore)
	if !ok {
		return errors.New("ingest: store.requests service has unexpected type")
	}

	schedSvc, ok := ctx.Service("scheduler.reminders")
	if !ok {
		return errors.New("ingest: scheduler.reminders service not available")
	}
	scheduler, ok := schedSvc.(*schedule.Scheduler)
	if !ok {
		return errors.New("ingest: scheduler.reminders service has unexpected type")
	}

	m.handler = NewHandler(users, requests, scheduler, m.config.MovieDelay, m.config.TVDelay, m.logger)
	return nil
}

// Start implements core.Starter. The gateway provisions after this module,
// so its dispatcher is resolved here rather than in Provision.
func (m *Module) Start() error {
	svc, ok := m.appCtx.Service("gateway.webhook_dispatcher")
	if !ok {
		return errors.New("ingest: gateway.webhook_dispatcher service not available")
	}
	dispatcher, ok := svc.(*gateway.WebhookDispatcher)
	if !ok {
		return errors.New("ingest: gateway.webhook_dispatcher service has unexpected type")
	}

	dispatcher.Register("overseerr", m.handler, m.config.Secret)
	m.logger.Info("overseerr webhook registered", "hmac", m.config.Secret != "")
	return nil
}

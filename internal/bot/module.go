package bot

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purgarr/purgarr/internal/command"
	"github.com/purgarr/purgarr/internal/confirm"
	"github.com/purgarr/purgarr/internal/core"
	"github.com/purgarr/purgarr/internal/media"
	"github.com/purgarr/purgarr/internal/reminder"
	"github.com/purgarr/purgarr/internal/schedule"
	"github.com/purgarr/purgarr/internal/store"
	"github.com/purgarr/purgarr/internal/transport"
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

// botMetrics is the shape of the gateway's metrics service this module
// consumes.
type botMetrics interface {
	RecordInbound()
	RecordReminder()
}

// Config holds the bot.router module configuration.
type Config struct {
	// ReminderRetry is the delay until the next reminder when a prompt
	// goes unanswered. Defaults to 6h.
	ReminderRetry time.Duration `yaml:"reminder_retry"`
}

// Module is the bot.router module. It wires the conversation router and
// the reminder dispatcher onto the channel and the stores.
type Module struct {
	config     Config
	logger     *slog.Logger
	appCtx     *core.AppContext
	router     *Router
	dispatcher *reminder.Dispatcher
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "bot.router",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("bot: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. Handler registration happens here
// so the router is bound before the channel establishes its first session.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger

	db, err := resolve[*sql.DB](ctx, "store.db")
	if err != nil {
		return err
	}
	users, err := resolve[*store.UserStore](ctx, "store.users")
	if err != nil {
		return err
	}
	requests, err := resolve[*store.RequestStore](ctx, "store.requests")
	if err != nil {
		return err
	}
	overseerr, err := resolve[*media.Overseerr](ctx, "media.overseerr")
	if err != nil {
		return err
	}
	deleter, err := resolve[*media.Deleter](ctx, "media.deleter")
	if err != nil {
		return err
	}
	scheduler, err := resolve[*schedule.Scheduler](ctx, "scheduler.reminders")
	if err != nil {
		return err
	}
	manager, err := resolve[*transport.Manager](ctx, "channel.whatsapp")
	if err != nil {
		return err
	}

	confirms := confirm.NewStore(db)
	commands := command.NewHandlers(users, requests, overseerr, m.logger)

	m.dispatcher = reminder.NewDispatcher(users, requests, confirms, manager, scheduler, m.logger)
	m.dispatcher.SetRetryAfter(m.config.ReminderRetry)
	ctx.RegisterService("reminder.dispatcher", m.dispatcher)

	m.router = NewRouter(confirms, commands, requests, deleter, scheduler, manager, m.logger)
	manager.OnMessage("bot.router", m.router.Handle)
	return nil
}

// Start implements core.Starter. The gateway provisions after this module,
// so its metrics service is bound here. Metrics are optional.
func (m *Module) Start() error {
	if svc, ok := m.appCtx.Service("gateway.metrics"); ok {
		if rec, ok := svc.(botMetrics); ok {
			m.router.SetMetrics(rec)
			m.dispatcher.SetMetrics(rec)
		}
	}
	return nil
}

func resolve[T any](ctx *core.AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, errors.New("bot: " + name + " service not available")
	}
	v, ok := svc.(T)
	if !ok {
		return zero, errors.New("bot: " + name + " service has unexpected type")
	}
	return v, nil
}

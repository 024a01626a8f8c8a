package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purgarr/purgarr/internal/core"
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
	_ core.Stopper      = (*Module)(nil)
)

// reminderSender is the dispatcher shape resolved from the service registry.
type reminderSender interface {
	SendReminder(ctx context.Context, userID, requestID int64) error
}

// Config holds the scheduler.reminders module configuration.
type Config struct {
	// MaxAttempts before a failing job is dropped. Defaults to 5.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryFloor is the first retry delay, doubling per attempt.
	// Defaults to 60s.
	RetryFloor time.Duration `yaml:"retry_floor"`
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryFloor <= 0 {
		c.RetryFloor = defaultRetryFloor
	}
}

// Module is the scheduler.reminders module. It owns the durable job
// scheduler and restores jobs from pending requests at boot.
type Module struct {
	config    Config
	logger    *slog.Logger
	appCtx    *core.AppContext
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "scheduler.reminders",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("schedule: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.appCtx = ctx
	m.logger = ctx.Logger

	svc, ok := ctx.Service("store.db")
	if !ok {
		return errors.New("schedule: store.db service not available")
	}
	db, ok := svc.(*sql.DB)
	if !ok {
		return errors.New("schedule: store.db service has unexpected type")
	}

	m.scheduler = NewScheduler(db, m.logger)
	m.scheduler.maxAttempts = m.config.MaxAttempts
	m.scheduler.retryFloor = m.config.RetryFloor

	ctx.RegisterService("scheduler.reminders", m.scheduler)
	return nil
}

// Start implements core.Starter. It wires the reminder dispatcher as the
// job handler, restores jobs from pending requests, and starts the loop.
func (m *Module) Start() error {
	svc, ok := m.appCtx.Service("reminder.dispatcher")
	if !ok {
		return errors.New("schedule: reminder.dispatcher service not available")
	}
	sender, ok := svc.(reminderSender)
	if !ok {
		return errors.New("schedule: reminder.dispatcher service has unexpected type")
	}
	m.scheduler.SetHandler(sender.SendReminder)

	requests, users, err := m.resolveStores()
	if err != nil {
		return err
	}
	if _, err := m.scheduler.Restore(context.Background(), requests, users); err != nil {
		return fmt.Errorf("schedule: restore: %w", err)
	}

	return m.scheduler.Start()
}

func (m *Module) resolveStores() (*store.RequestStore, *store.UserStore, error) {
	reqSvc, ok := m.appCtx.Service("store.requests")
	if !ok {
		return nil, nil, errors.New("schedule: store.requests service not available")
	}
	requests, ok := reqSvc.(*store.RequestStore)
	if !ok {
		return nil, nil, errors.New("schedule: store.requests service has unexpected type")
	}

	userSvc, ok := m.appCtx.Service("store.users")
	if !ok {
		return nil, nil, errors.New("schedule: store.users service not available")
	}
	users, ok := userSvc.(*store.UserStore)
	if !ok {
		return nil, nil, errors.New("schedule: store.users service has unexpected type")
	}
	return requests, users, nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

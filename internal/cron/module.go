package cron

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purgarr/purgarr/internal/confirm"
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

// Config holds the cron.jobs module configuration.
type Config struct {
	// PurgeSchedule overrides the expired-confirmation purge cadence.
	PurgeSchedule string `yaml:"purge_schedule"`

	// RetentionSchedule overrides the finished-request sweep cadence.
	RetentionSchedule string `yaml:"retention_schedule"`

	// Retention is how long resolved requests are kept. Defaults to 90 days.
	Retention time.Duration `yaml:"retention"`
}

// Module is the cron.jobs module. It runs the periodic janitors.
type Module struct {
	config    Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.jobs",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.scheduler = NewScheduler(m.logger)

	dbSvc, ok := ctx.Service("store.db")
	if !ok {
		return errors.New("cron: store.db service not available")
	}
	db, ok := dbSvc.(*sql.DB)
	if !ok {
		return errors.New("cron: store.db service has unexpected type")
	}

	reqSvc, ok := ctx.Service("store.requests")
	if !ok {
		return errors.New("cron: store.requests service not available")
	}
	requests, ok := reqSvc.(*store.RequestStore)
	if !ok {
		return errors.New("cron: store.requests service has unexpected type")
	}

	if err := m.scheduler.RegisterJob(&ConfirmPurgeJob{
		Store:        confirm.NewStore(db),
		Logger:       m.logger,
		ScheduleExpr: m.config.PurgeSchedule,
	}); err != nil {
		return err
	}
	return m.scheduler.RegisterJob(&RequestRetentionJob{
		Store:        requests,
		Retention:    m.config.Retention,
		Logger:       m.logger,
		ScheduleExpr: m.config.RetentionSchedule,
	})
}

// Start implements core.Starter.
func (m *Module) Start() error {
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// Package store owns the application SQLite database: the users and media
// request tables, plus the schema shared with the confirmation store and
// the reminder job store. It uses modernc.org/sqlite (pure Go, no CGO)
// with WAL mode.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

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
	_ core.Stopper      = (*Module)(nil)
)

// Module is the store.sqlite module. It opens the single application
// database and publishes the stores backed by it.
type Module struct {
	config   Config
	db       *sql.DB
	logger   *slog.Logger
	users    *UserStore
	requests *RequestStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("store: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The database handle is registered
// as a service so the confirmation and job stores can share the schema and
// the single-writer connection.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := open(m.config.Path, m.config.BusyTimeout, m.config.walEnabled())
	if err != nil {
		return err
	}

	m.db = db
	m.users = NewUserStore(db)
	m.requests = NewRequestStore(db)

	ctx.RegisterService("store.db", m.db)
	ctx.RegisterService("store.users", m.users)
	ctx.RegisterService("store.requests", m.requests)

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("store: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite store stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

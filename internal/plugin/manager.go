package plugin

import (
	"context"
	"fmt"
	"sync"

	"tickbot/internal/config"
	"tickbot/internal/core"
	"tickbot/pkg/logx"
)

// Manager owns plugin registration and lifecycle. Registration order is
// preserved: plugins init in the order they were registered and stop in
// reverse.
type Manager struct {
	log  logx.Logger
	deps Deps
	cmdm *core.Manager

	mu      sync.Mutex
	plugins []Plugin
	started []Plugin
}

func NewManager(log logx.Logger, deps Deps, cmdm *core.Manager) *Manager {
	return &Manager{log: log, deps: deps, cmdm: cmdm}
}

func (m *Manager) Register(p Plugin) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.plugins = append(m.plugins, p)
	m.mu.Unlock()
}

// InitAll initializes every registered plugin that the config enables and
// registers its commands. An init failure is fatal: a half-wired plugin set
// would leave persisted timers without handlers.
func (m *Manager) InitAll(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.plugins {
		name := p.Name()
		if !cfg.PluginEnabled(name) {
			m.log.Info("plugin disabled by config", logx.String("plugin", name))
			continue
		}
		deps := m.deps
		deps.Logger = m.deps.Logger.With(logx.String("plugin", name))
		if err := p.Init(ctx, deps); err != nil {
			return fmt.Errorf("init plugin %s: %w", name, err)
		}
		m.cmdm.Register(p.Commands()...)
		m.started = append(m.started, p)
		m.log.Info("plugin initialized", logx.String("plugin", name))
	}
	return nil
}

// StopAll stops initialized plugins in reverse order. Errors are logged, not
// returned: one failing Stop must not keep the rest from shutting down.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.started) - 1; i >= 0; i-- {
		p := m.started[i]
		if err := p.Stop(ctx); err != nil {
			m.log.Warn("plugin stop failed",
				logx.String("plugin", p.Name()), logx.Err(err))
		}
	}
	m.started = nil
}

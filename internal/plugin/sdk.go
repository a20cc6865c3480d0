// Package plugin defines the contract between the bot host and its feature
// plugins, plus the manager that drives plugin lifecycle.
package plugin

import (
	"context"

	"tickbot/internal/core"
	"tickbot/internal/eventbus"
	"tickbot/internal/storage"
	"tickbot/internal/timers"
	"tickbot/internal/transport"
	"tickbot/pkg/logx"
)

// Deps is everything a plugin may use. Plugins keep what they need during
// Init and must not retain the struct past Stop.
type Deps struct {
	Logger  logx.Logger
	Adapter transport.Adapter
	Timers  *timers.Service
	Bus     eventbus.Bus
	Store   storage.Store
	Owners  []int64
}

type Plugin interface {
	Name() string

	// Init wires dependencies and registers timer handlers. Handlers must
	// be registered here, before the dispatch loop starts, so timers
	// persisted by an earlier run find their handler on recovery.
	Init(ctx context.Context, deps Deps) error

	// Commands returns the slash commands this plugin contributes.
	Commands() []core.Command

	Stop(ctx context.Context) error
}

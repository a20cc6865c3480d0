// Package core routes incoming chat messages to registered bot commands.
package core

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"tickbot/internal/transport"
	"tickbot/pkg/logx"
)

// Command is a single slash command contributed by a plugin.
type Command struct {
	Route       string // e.g. "remind"
	Description string
	Usage       string // e.g. "/remind <duration> <text>"
	OwnerOnly   bool
	Timeout     time.Duration // optional override of the default 30s
	Handle      func(ctx context.Context, req *Request) error
}

// Request is everything a command handler needs about one invocation.
type Request struct {
	Message *transport.Message
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ArgText string // the raw text after the command word

	Adapter transport.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true})
	return err
}

type Manager struct {
	log     logx.Logger
	adapter transport.Adapter

	mu     sync.RWMutex
	cmds   map[string]Command
	owners []int64

	jobs chan func()
}

func NewManager(log logx.Logger, adapter transport.Adapter, owners []int64) *Manager {
	m := &Manager{
		log:     log,
		adapter: adapter,
		cmds:    map[string]Command{},
		owners:  append([]int64(nil), owners...),
		jobs:    make(chan func(), 256),
	}
	m.register(Command{
		Route:       "help",
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.FromID))
		},
	})
	return m
}

// SetOwners swaps the owner list used for OwnerOnly checks. Safe during
// config hot-reload.
func (m *Manager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Manager) Register(cmds ...Command) {
	for _, c := range cmds {
		m.register(c)
	}
}

func (m *Manager) register(c Command) {
	route := strings.ToLower(strings.TrimSpace(c.Route))
	if route == "" || c.Handle == nil {
		return
	}
	m.mu.Lock()
	m.cmds[route] = c
	m.mu.Unlock()
}

func (m *Manager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

func (m *Manager) helpText(fromID int64) string {
	owner := m.isOwner(fromID)

	m.mu.RLock()
	cmds := make([]Command, 0, len(m.cmds))
	for _, c := range m.cmds {
		cmds = append(cmds, c)
	}
	m.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Route < cmds[j].Route })

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range cmds {
		if c.OwnerOnly && !owner {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Route
		}
		fmt.Fprintf(&b, "%s - %s\n", usage, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop consumes adapter updates until ctx is done, running command
// handlers on a bounded worker pool so one slow command cannot stall the
// update stream.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}
	defer func() {
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message != nil {
				m.routeMessage(ctx, up.Message)
			}
		}
	}
}

func (m *Manager) routeMessage(ctx context.Context, msg *transport.Message) {
	route, argText, args, ok := parseCommandText(msg.Text)
	if !ok {
		return
	}

	m.mu.RLock()
	cmd, found := m.cmds[route]
	m.mu.RUnlock()
	if !found {
		return
	}
	if cmd.OwnerOnly && !m.isOwner(msg.FromID) {
		m.log.Debug("owner-only command denied",
			logx.String("command", route), logx.Int64("from", msg.FromID))
		return
	}

	req := &Request{
		Message: msg,
		Chat:    transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: route,
		Args:    args,
		ArgText: argText,
		Adapter: m.adapter,
		Logger:  m.log.With(logx.String("command", route)),
	}

	job := func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in command handler",
					logx.String("command", route),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		timeout := cmd.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := cmd.Handle(cctx, req); err != nil {
			m.log.Warn("command failed", logx.String("command", route), logx.Err(err))
		}
	}

	select {
	case m.jobs <- job:
	default:
		m.log.Warn("command queue full, dropping", logx.String("command", route))
	}
}

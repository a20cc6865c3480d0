// Package reminder implements user-facing reminders on top of the timer
// service: /remind schedules one, /reminders lists yours, /unremind cancels.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tickbot/internal/core"
	"tickbot/internal/plugin"
	"tickbot/internal/timers"
	"tickbot/internal/transport"
	"tickbot/pkg/logx"
)

const eventName = "reminder"

const maxListed = 10

type Plugin struct {
	log     logx.Logger
	adapter transport.Adapter
	timers  *timers.Service
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "reminder" }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.log = deps.Logger
	p.adapter = deps.Adapter
	p.timers = deps.Timers
	p.timers.On(eventName, p.onReminder)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return nil }

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Route:       "remind",
			Description: "remind you about something later",
			Usage:       "/remind <duration> <text>",
			Handle:      p.cmdRemind,
		},
		{
			Route:       "reminders",
			Description: "list your pending reminders",
			Usage:       "/reminders",
			Handle:      p.cmdReminders,
		},
		{
			Route:       "unremind",
			Description: "cancel one of your reminders",
			Usage:       "/unremind <id>",
			Handle:      p.cmdUnremind,
		},
	}
}

func (p *Plugin) cmdRemind(ctx context.Context, req *core.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Usage: /remind <duration> <text>\nExample: /remind 2h30m check the oven")
	}
	d, err := parseRelative(req.Args[0])
	if err != nil {
		return req.Reply(ctx, fmt.Sprintf("I can't read %q as a duration. Try 30s, 45m, 2h30m, 3d or 1w.", req.Args[0]))
	}
	text := strings.TrimSpace(strings.TrimPrefix(req.ArgText, req.Args[0]))
	if text == "" {
		text = "..."
	}

	when := time.Now().Add(d)
	id, err := p.timers.Schedule(ctx, eventName, when, timers.WithPayload(timers.Payload{
		"chat_id":   req.Chat.ChatID,
		"thread_id": req.Chat.ThreadID,
		"user_id":   req.FromID,
		"text":      text,
	}))
	if err != nil {
		p.log.Error("schedule reminder failed", logx.Err(err))
		return req.Reply(ctx, "Sorry, I couldn't save that reminder. Try again in a moment.")
	}
	return req.Reply(ctx, fmt.Sprintf("Okay, reminder #%d set for %s from now.", id, d))
}

func (p *Plugin) cmdReminders(ctx context.Context, req *core.Request) error {
	own, err := p.ownedBy(ctx, req.FromID)
	if err != nil {
		p.log.Error("list reminders failed", logx.Err(err))
		return req.Reply(ctx, "Sorry, I couldn't load your reminders right now.")
	}
	if len(own) == 0 {
		return req.Reply(ctx, "You have no pending reminders.")
	}

	var b strings.Builder
	b.WriteString("Your reminders:\n")
	for i, t := range own {
		if i >= maxListed {
			fmt.Fprintf(&b, "...and %d more\n", len(own)-maxListed)
			break
		}
		text, _ := t.Payload.String("text")
		fmt.Fprintf(&b, "#%d in %s: %s\n", t.ID, time.Until(t.ExpiresAt).Round(time.Second), text)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (p *Plugin) cmdUnremind(ctx context.Context, req *core.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "Usage: /unremind <id>")
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return req.Reply(ctx, "Usage: /unremind <id>")
	}

	// Ownership check: only the creator may cancel a reminder.
	own, err := p.ownedBy(ctx, req.FromID)
	if err != nil {
		p.log.Error("list reminders failed", logx.Err(err))
		return req.Reply(ctx, "Sorry, I couldn't look that up right now.")
	}
	mine := false
	for _, t := range own {
		if t.ID == id {
			mine = true
			break
		}
	}
	if !mine {
		return req.Reply(ctx, fmt.Sprintf("Reminder #%d isn't yours or doesn't exist.", id))
	}

	removed, err := p.timers.Cancel(ctx, id)
	if err != nil {
		p.log.Error("cancel reminder failed", logx.Int64("timer_id", id), logx.Err(err))
		return req.Reply(ctx, "Sorry, cancelling failed. Try again in a moment.")
	}
	if !removed {
		return req.Reply(ctx, fmt.Sprintf("Reminder #%d already fired.", id))
	}
	return req.Reply(ctx, fmt.Sprintf("Reminder #%d cancelled.", id))
}

func (p *Plugin) ownedBy(ctx context.Context, userID int64) ([]timers.Timer, error) {
	all, err := p.timers.Pending(ctx, eventName, 0)
	if err != nil {
		return nil, err
	}
	var own []timers.Timer
	for _, t := range all {
		if uid, ok := t.Payload.Int64("user_id"); ok && uid == userID {
			own = append(own, t)
		}
	}
	return own, nil
}

// onReminder delivers a fired reminder back to the chat it was created in.
func (p *Plugin) onReminder(ctx context.Context, t timers.Timer) error {
	chatID, ok := t.Payload.Int64("chat_id")
	if !ok {
		return fmt.Errorf("reminder %d: payload missing chat_id", t.ID)
	}
	threadID, _ := t.Payload.Int64("thread_id")
	userID, _ := t.Payload.Int64("user_id")
	text, _ := t.Payload.String("text")

	// Show the creation time in the creator's own timezone.
	created := t.CreatedAt
	if loc, lerr := time.LoadLocation(t.Timezone); lerr == nil {
		created = created.In(loc)
	}
	msg := fmt.Sprintf("Reminder for you (set %s): %s",
		created.Format("Mon 15:04 MST"), text)
	_, err := p.adapter.SendText(ctx,
		transport.ChatTarget{ChatID: chatID, ThreadID: int(threadID)},
		msg, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		return fmt.Errorf("deliver reminder %d to chat %d (user %d): %w", t.ID, chatID, userID, err)
	}
	return nil
}

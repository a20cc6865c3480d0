// Package modaction provides temporary moderation actions whose reversal is
// guaranteed by a persisted timer: the mute is lifted even if the bot
// restarts while it is in effect.
package modaction

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tickbot/internal/core"
	"tickbot/internal/plugin"
	"tickbot/internal/timers"
	"tickbot/internal/transport"
	"tickbot/pkg/logx"
)

const eventName = "temp-action-expiry"

type Plugin struct {
	log     logx.Logger
	adapter transport.Adapter
	timers  *timers.Service
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "modaction" }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.log = deps.Logger
	p.adapter = deps.Adapter
	p.timers = deps.Timers
	p.timers.On(eventName, p.onExpiry)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return nil }

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Route:       "tempmute",
			Description: "mute a member for a while",
			Usage:       "/tempmute <user_id> <duration>",
			OwnerOnly:   true,
			Handle:      p.cmdTempMute,
		},
	}
}

func (p *Plugin) cmdTempMute(ctx context.Context, req *core.Request) error {
	if !req.Message.IsGroup {
		return req.Reply(ctx, "/tempmute only works in group chats.")
	}
	if len(req.Args) != 2 {
		return req.Reply(ctx, "Usage: /tempmute <user_id> <duration>")
	}
	userID, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return req.Reply(ctx, "Usage: /tempmute <user_id> <duration>")
	}
	d, err := time.ParseDuration(req.Args[1])
	if err != nil || d <= 0 {
		return req.Reply(ctx, fmt.Sprintf("I can't read %q as a duration. Try 10m, 2h or 24h.", req.Args[1]))
	}

	until := time.Now().Add(d)
	if err := p.adapter.Restrict(ctx, req.Chat.ChatID, userID, until); err != nil {
		p.log.Error("restrict failed",
			logx.Int64("chat", req.Chat.ChatID), logx.Int64("user", userID), logx.Err(err))
		return req.Reply(ctx, "Muting failed. Do I have admin rights here?")
	}

	// Persist the reversal before confirming; if scheduling fails, undo the
	// mute rather than leave it permanent.
	_, err = p.timers.Schedule(ctx, eventName, until, timers.WithPayload(timers.Payload{
		"action":  "mute",
		"chat_id": req.Chat.ChatID,
		"user_id": userID,
	}))
	if err != nil {
		p.log.Error("schedule unmute failed", logx.Err(err))
		if uerr := p.adapter.Unrestrict(ctx, req.Chat.ChatID, userID); uerr != nil {
			p.log.Error("rollback unrestrict failed", logx.Err(uerr))
		}
		return req.Reply(ctx, "Couldn't persist the unmute timer, so the mute was rolled back.")
	}
	return req.Reply(ctx, fmt.Sprintf("Muted %d for %s.", userID, d))
}

// onExpiry reverses the original action when its timer fires.
func (p *Plugin) onExpiry(ctx context.Context, t timers.Timer) error {
	action, _ := t.Payload.String("action")
	chatID, okChat := t.Payload.Int64("chat_id")
	userID, okUser := t.Payload.Int64("user_id")
	if !okChat || !okUser {
		return fmt.Errorf("temp action %d: payload missing chat_id or user_id", t.ID)
	}

	switch action {
	case "mute":
		if err := p.adapter.Unrestrict(ctx, chatID, userID); err != nil {
			return fmt.Errorf("unmute user %d in chat %d: %w", userID, chatID, err)
		}
		p.log.Info("temporary mute lifted",
			logx.Int64("chat", chatID), logx.Int64("user", userID))
		return nil
	default:
		return fmt.Errorf("temp action %d: unknown action %q", t.ID, action)
	}
}

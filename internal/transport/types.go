// Package transport abstracts the chat platform behind a small adapter
// interface so feature plugins and the command router never import a
// platform SDK directly.
package transport

import (
	"context"
	"time"
)

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Update struct {
	Message *Message
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the platform surface the bot needs: receive updates, send and
// edit text, and apply temporary member restrictions.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error

	// Restrict mutes a member in a group chat until the given time.
	Restrict(ctx context.Context, chatID, userID int64, until time.Time) error
	// Unrestrict lifts a previous restriction.
	Unrestrict(ctx context.Context, chatID, userID int64) error
}

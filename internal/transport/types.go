// Package transport defines the chat-platform boundary: inbound updates and
// outbound text.
package transport

import "context"

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
	// Mentioned is true when the bot was @-mentioned or the message replies
	// to one of the bot's messages.
	Mentioned bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is one outbound text handed to the notifier.
// DedupKey, when set, suppresses repeats of the same key within the
// notifier's dedup window.
type Notification struct {
	Target   ChatTarget
	Text     string
	Options  *SendOptions
	DedupKey string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

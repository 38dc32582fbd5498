// Package router dispatches chat commands to handlers on a bounded worker
// pool.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chispitas/internal/runtime/supervisor"
	"chispitas/internal/transport"
	"chispitas/pkg/logx"
)

// Sender is the outbound half of transport.Adapter.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Hidden commands work but stay out of the menu and the unknown-command list.
	Hidden  bool
	Timeout time.Duration // overrides Config.CommandTimeout
	Handle  HandlerFunc
}

type Request struct {
	Message transport.Message
	Chat    transport.ChatTarget
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	sender Sender
}

// Reply sends text to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string, opt *transport.SendOptions) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, opt)
	return err
}

type Config struct {
	// RequireMention ignores group messages that do not mention the bot.
	RequireMention bool
	Workers        int
	CommandTimeout time.Duration
}

type Manager struct {
	mu    sync.RWMutex
	cfg   Config
	cmds  map[string]*Command
	order []Command

	log    logx.Logger
	sender Sender
	jobs   chan func()
}

func New(cfg Config, sender Sender, log logx.Logger) *Manager {
	m := &Manager{
		cmds:   map[string]*Command{},
		log:    log.With(logx.String("comp", "telegram.router")),
		sender: sender,
		jobs:   make(chan func(), 256),
	}
	m.Apply(cfg)
	return m
}

// Apply updates mention and timeout handling. Workers take effect on the
// next DispatchLoop.
func (m *Manager) Apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// SetRegistry replaces the command set. Names and aliases match
// case-insensitively.
func (m *Manager) SetRegistry(cmds []Command) {
	table := map[string]*Command{}
	order := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Handle == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		cc := c
		order = append(order, cc)
		table[strings.ToLower(cc.Name)] = &cc
		for _, a := range cc.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				table[a] = &cc
			}
		}
		// Telegram menus only carry lower-case [a-z0-9_] names.
		if menu := sanitizeTelegramCommand(cc.Name); menu != "" {
			if _, exists := table[menu]; !exists {
				table[menu] = &cc
			}
		}
	}

	m.mu.Lock()
	m.cmds = table
	m.order = order
	m.mu.Unlock()
}

// MenuCommands is the command list for the Telegram menu.
func (m *Manager) MenuCommands() []transport.BotCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return buildMenu(m.order)
}

// DispatchLoop routes messages until ctx ends or updates is closed.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan transport.Message) error {
	m.mu.RLock()
	workers := m.cfg.Workers
	m.mu.RUnlock()

	sup := supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sup.Stop(wctx); err != nil {
			m.log.Warn("command workers did not stop", logx.Err(err))
		}
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, msg)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

// parseCommand splits "/cmd@bot arg1 arg2" into "cmd" and its arguments.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func (m *Manager) route(ctx context.Context, msg transport.Message) {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	m.mu.RLock()
	cfg := m.cfg
	cmd, found := m.cmds[name]
	order := m.order
	m.mu.RUnlock()

	if msg.IsGroup && cfg.RequireMention && !msg.Mentioned {
		return
	}

	chat := transport.ChatTarget{ChatID: msg.ChatID}
	if !found {
		if _, err := m.sender.SendText(ctx, chat, unknownText(order), nil); err != nil {
			m.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		}
		return
	}

	rid := uuid.NewString()
	req := &Request{
		Message: msg,
		Chat:    chat,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: m.sender,
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = cfg.CommandTimeout
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))

	select {
	case m.jobs <- func() { _ = final(ctx, req) }:
	default:
		_, _ = m.sender.SendText(ctx, chat, "⏳ Estoy ocupado, inténtalo de nuevo en un momento.", nil)
	}
}

func unknownText(cmds []Command) string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if !c.Hidden {
			names = append(names, "/"+c.Name)
		}
	}
	return "Comando no reconocido. Prueba con alguno de estos:\n" + strings.Join(names, ", ")
}

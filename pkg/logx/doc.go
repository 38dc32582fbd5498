// Package logx is the bot's structured logging layer.
//
// Logger wraps zerolog with field helpers and a no-op zero value. Service owns
// the sinks (console, JSON file, operator chat) and can swap them at runtime
// when the configuration is reloaded.
package logx

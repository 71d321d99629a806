package server

import (
	"context"
	"os/signal"
	"syscall"
)

// NotifyShutdown returns a context canceled on SIGINT or SIGTERM. The
// poller finishes its in-flight cycle when the context goes down; only
// SIGKILL cuts it short.
func NotifyShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

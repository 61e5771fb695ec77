package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// withInterrupt returns a context cancelled by the first SIGINT or SIGTERM.
// The handler is then removed, so a second signal terminates the process
// the default way.
func withInterrupt(parent context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			signal.Reset(os.Interrupt, syscall.SIGTERM)
			log.Warn("shutdown requested, finishing the current frame (interrupt again to force)", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

package commons

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// CaptureSigint calls cancel on the first SIGINT or SIGTERM. The watching
// goroutine exits early if ctx is done first.
func CaptureSigint(ctx context.Context, cancel context.CancelFunc) {
	if ctx == nil || cancel == nil {
		Log.Error("ctx or cancel == nil")
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			Log.Info("caught signal", zap.Stringer("signal", sig))

		case <-ctx.Done():
			return
		}

		Log.Info("canceling all processes...")
		cancel()
	}()
}

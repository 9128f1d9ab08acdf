package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/researcher/internal/logger"
)

// WaitForShutdown blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
func WaitForShutdown(ctx context.Context, log *logger.Logger, service string) {
	if service == "" {
		service = "service"
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Info("context cancelled, shutting down", "service", service)
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "service", service, "signal", sig.String())
	}
}

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// WaitForShutdown cancels ctx on SIGINT or SIGTERM.
func WaitForShutdown(cancel context.CancelFunc, log *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()
}

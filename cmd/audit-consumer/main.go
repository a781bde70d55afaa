// Command audit-consumer drains the booking and finalization queues into a
// JSON-lines audit file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/journey-seat-booking/internal/config"
	"github.com/iliyamo/journey-seat-booking/internal/logging"
	"github.com/iliyamo/journey-seat-booking/internal/queue"
)

func main() {
	logging.Setup()
	url, path := config.AuditSettings()
	logger := logging.Component("audit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.AuditConsumer{URL: url, Path: path, Logger: logger}
	logger.Info("consuming", "queues", queue.AuditQueues, "path", path)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

// main package for the scripture-service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/scripture-service/internal/app"
	"github.com/book-expert/scripture-service/internal/config"
	"github.com/book-expert/scripture-service/internal/worker"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run(ctx context.Context) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "scripture-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "scripture-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Connect to NATS and assemble the services
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("scripture-service"))
	if err != nil {
		finalLog.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	defer natsConnection.Close()

	services, err := app.New(ctx, cfg, natsConnection, finalLog)
	if err != nil {
		finalLog.Error("Failed to assemble services: %v", err)

		return fmt.Errorf("failed to assemble services: %w", err)
	}

	defer func() {
		closeErr := services.Close()
		if closeErr != nil {
			finalLog.Error("Failed to close services: %v", closeErr)
		}
	}()

	healthErr := services.Speech.HealthCheck(ctx)
	if healthErr != nil {
		finalLog.Warn("Speech service health check failed: %v", healthErr)
	}

	// 5. Serve requests until interrupted
	natsWorker, err := worker.NewNatsWorker(natsConnection, services.Texts, services.Narrator, worker.Options{
		TextSubject:     cfg.NATS.TextRequestSubject,
		AudioSubject:    cfg.NATS.AudioRequestSubject,
		QueueGroup:      cfg.NATS.QueueGroup,
		DefaultLanguage: cfg.NATS.DefaultLanguage,
		TextTimeout:     cfg.TextRequestTimeout(),
		AudioTimeout:    cfg.AudioRequestTimeout(),
	}, finalLog)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	finalLog.System("Scripture-Service successfully initialized.")

	err = natsWorker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", err)
	}

	finalLog.System("Scripture-Service stopped.")

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

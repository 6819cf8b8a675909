package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pyqhub/pyqbot/core/buildinfo"
	"github.com/pyqhub/pyqbot/core/config"
	"github.com/pyqhub/pyqbot/core/logger"
	"github.com/pyqhub/pyqbot/internal/app"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if err := app.Run(ctx, cfg); err != nil {
		if logger.L != nil {
			logger.L.Error("bot stopped",
				"event", "shutdown.error",
				"err", logger.Sanitize(err.Error()),
				"version", buildinfo.Version)
		} else {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
		}
		exitCode = 1
	}

	logger.Shutdown()
	os.Exit(exitCode)
}

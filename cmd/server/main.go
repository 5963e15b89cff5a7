package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/internal/config"
	"github.com/OFFIS-RIT/storygraph/internal/server"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	flush := app.InitLogger(cfg.Log, "server")
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/phillip-england/navigator/internal/clientapp"
	"github.com/phillip-england/navigator/internal/config"
	"github.com/phillip-england/navigator/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(viper.New(), ".env")
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	err = clientapp.Run(ctx, clientapp.Config{
		Addr:         cfg.ClientAddr,
		APIBaseURL:   cfg.APIBaseURL,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

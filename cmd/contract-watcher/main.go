package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarketMinds/OrderPulse/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	swaggerPath := cfg.OrderPulse.SwaggerPath
	if p := os.Getenv("swaggerPath"); p != "" {
		swaggerPath = p
	}

	httpAddr := cfg.OrderPulse.WatcherHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunContractWatcher(ctx, cfg, defaultWatcherFactories(), watcherHTTPOpts{
		httpAddr:    httpAddr,
		swaggerPath: swaggerPath,
	})
	if err != nil && err != context.Canceled {
		panic(err)
	}
}

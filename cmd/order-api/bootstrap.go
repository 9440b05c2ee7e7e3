package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarketMinds/OrderPulse/config"
	"github.com/MarketMinds/OrderPulse/internal/broker/kafka"
	"github.com/MarketMinds/OrderPulse/internal/cache/rediscache"
	"github.com/MarketMinds/OrderPulse/internal/services/notify"
	"github.com/MarketMinds/OrderPulse/internal/services/tracking"
	"github.com/MarketMinds/OrderPulse/internal/storage/pgcontracts"
	"github.com/MarketMinds/OrderPulse/internal/storage/pgnotify"
	"github.com/MarketMinds/OrderPulse/internal/storage/pgorders"
)

type orderAPIApp struct {
	ctx       context.Context
	cancel    context.CancelFunc
	opts      orderAPIOpts
	svc       *tracking.Service
	store     *notify.Store
	contracts *pgcontracts.Storage
	consumer  *kafka.Consumer
	closers   []func()
}

func mustBootstrapOrderAPI() *orderAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	swaggerPath := cfg.OrderPulse.SwaggerPath
	if p := os.Getenv("swaggerPath"); p != "" {
		swaggerPath = p
	}
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	httpAddr := cfg.OrderPulse.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.OrderPulse.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "order-api"
	}
	checkpointsTopic := cfg.Kafka.CheckpointsTopicName
	if checkpointsTopic == "" {
		checkpointsTopic = "order.checkpoints"
	}
	statusTopic := cfg.Kafka.StatusChangedTopicName
	if statusTopic == "" {
		statusTopic = "order.status_changed"
	}
	cacheTTL := time.Duration(cfg.OrderPulse.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	connString := cfg.Database.ConnString()
	orders := mustOpenWithRetry(connString, 60*time.Second, pgorders.New)
	notifyStore := mustOpenWithRetry(connString, 60*time.Second, pgnotify.New)
	contracts := mustOpenWithRetry(connString, 60*time.Second, pgcontracts.New)

	rc := rediscache.New(cfg.Redis.Addr())

	store := notify.NewStore(notifyStore)
	dispatcher := notify.NewDispatcher(store, orders)

	brokers := []string{cfg.Kafka.Broker()}
	producer := kafka.NewProducer(brokers)
	svc := tracking.New(orders, dispatcher, rc, cacheTTL).
		WithProducer(producer, statusTopic)

	consumer := kafka.NewConsumer(brokers, checkpointsTopic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &orderAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: orderAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         checkpointsTopic,
			consumerGroup: consumerGroup,
		},
		svc:       svc,
		store:     store,
		contracts: contracts,
		consumer:  consumer,
		closers:   []func(){orders.Close, notifyStore.Close, contracts.Close},
	}
}

// Postgres может быть не готов сразу после старта docker compose.
func mustOpenWithRetry[T any](connString string, wait time.Duration, open func(string) (T, error)) T {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := open(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *orderAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *orderAPIApp) Run() error {
	return runOrderAPI(a.ctx, a.opts, a.svc, a.store, a.contracts, a.consumer)
}

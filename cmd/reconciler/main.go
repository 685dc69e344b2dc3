// Command orderflow-reconciler runs the reconciliation worker pool (C8):
// one consumer goroutine per partitioned queue (C11), applying confirmation
// messages to the durable store and canonical cache. Grounded on
// cmd/polybot/main.go's bootstrap/shutdown shape, generalized from a single
// trading-engine process to a worker-pool-per-partition service.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/config"
	"github.com/web3guy0/orderflow/internal/durable"
	"github.com/web3guy0/orderflow/internal/eventbus"
	"github.com/web3guy0/orderflow/internal/idgen"
	"github.com/web3guy0/orderflow/internal/payout"
	"github.com/web3guy0/orderflow/internal/posthook"
	"github.com/web3guy0/orderflow/internal/queue"
	"github.com/web3guy0/orderflow/internal/reconcile"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Int("partitions", cfg.RabbitMQQueuePartitions).
		Msg("orderflow reconciliation worker pool starting...")

	store, err := durable.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open durable store")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	cacheStore := cache.New(rdb)
	bus := eventbus.New(cacheStore)
	payoutSvc := payout.New(store, idgen.New(store))
	hooks := posthook.New(8, 512)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := cacheStore.SubscribeEvents(ctx)
	go bus.Run(ctx, sub)

	worker := &reconcile.Worker{
		Cache:      cacheStore,
		Durable:    store,
		OrderRepo:  durable.NewOrderRepo(store),
		UserRepo:   durable.NewUserRepo(store),
		WalletRepo: durable.NewWalletRepo(store),
		Rejections: durable.NewRejectionRepo(store),
		Payout:     payoutSvc,
		Bus:        bus,
		Hooks:      hooks,
	}

	var wg sync.WaitGroup
	consumers := make([]*queue.Consumer, 0, cfg.RabbitMQQueuePartitions)

	for k := 0; k < cfg.RabbitMQQueuePartitions; k++ {
		consumer, err := queue.NewConsumer(conn, k, cfg.RabbitMQQueuePartitions, cfg.RabbitMQPrefetchCount,
			"orderflow-reconciler")
		if err != nil {
			log.Fatal().Err(err).Int("partition", k).Msg("Failed to start partition consumer")
		}
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(partition int, deliveries <-chan amqp.Delivery) {
			defer wg.Done()
			log.Info().Int("partition", partition).Msg("reconciliation worker consuming partition")
			worker.Run(ctx, deliveries)
		}(k, consumer.Deliveries)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("orderflow reconciliation worker pool shutting down...")
	cancel()
	for _, c := range consumers {
		_ = c.Close()
	}
	wg.Wait()
	hooks.Drain()
}

// Command orderflow runs the order-intake service: the C6 intake handlers
// and the C7 pending-trigger index. It leaves the reconciliation worker pool
// to the separate orderflow-reconciler binary, per spec.md §5's "parallel
// workers + cooperative I/O" process split.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/config"
	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/durable"
	"github.com/web3guy0/orderflow/internal/eventbus"
	"github.com/web3guy0/orderflow/internal/execclient"
	"github.com/web3guy0/orderflow/internal/idgen"
	"github.com/web3guy0/orderflow/internal/intake"
	"github.com/web3guy0/orderflow/internal/lock"
	"github.com/web3guy0/orderflow/internal/pending"
	"github.com/web3guy0/orderflow/internal/posthook"
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

	log.Info().Str("version", version).Msg("orderflow intake service starting...")

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

	cacheStore := cache.New(rdb)
	lockMgr := lock.New(rdb)
	bus := eventbus.New(cacheStore)
	idGen := idgen.New(store)
	execClient := execclient.New(cfg.PythonServiceURL, cfg.InternalProviderSecret, cfg.RPCTimeout)
	hooks := posthook.New(4, 256)

	handlers := &intake.Handlers{
		Lock:      lockMgr,
		IDs:       idGen,
		Cache:     cacheStore,
		Durable:   store,
		OrderRepo: durable.NewOrderRepo(store),
		UserRepo:  durable.NewUserRepo(store),
		Exec:      execClient,
		Bus:       bus,
		Hooks:     hooks,
		LockTTL:   time.Duration(cfg.UserLockTTLSeconds) * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := cacheStore.SubscribeEvents(ctx)
	go bus.Run(ctx, sub)

	pendingWorker := pending.New(cacheStore, execClient, func(ctx context.Context, o *domain.Order) {
		hooks.Submit(func() {
			bus.EmitUserUpdate(ctx, o.UserType, o.UserID, map[string]any{
				"kind":     "order_pending_triggered",
				"order_id": o.OrderID,
			})
		})
	})
	go runPendingTicker(ctx, cacheStore, pendingWorker)

	// HTTP ingress onto these handlers is out of scope per spec.md §1; this
	// process exposes them (via handlers) for an external ingress layer to
	// call directly in-process.
	_ = handlers

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("orderflow intake service shutting down...")
	cancel()
	hooks.Drain()
}

// runPendingTicker drives C7 from whatever market-price updates land in the
// cache, polling active symbols rather than subscribing to the external
// market-data feed directly (an opaque source per spec.md §1).
func runPendingTicker(ctx context.Context, store *cache.Store, worker *pending.Worker) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			symbols, err := store.ActiveSymbols(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("pending ticker: list active symbols failed")
				continue
			}
			for _, symbol := range symbols {
				price, err := store.GetMarketPrice(ctx, symbol)
				if err != nil {
					continue
				}
				ask, _ := price.Ask.Float64()
				worker.OnTick(ctx, symbol, ask)
			}
		}
	}
}

// Command orderflow-admin is the operator CLI spec.md §6 names: rebuild
// indices, prune stale cache entries, ensure single holding, ensure the
// symbol-holder set, and read a portfolio snapshot. The rebuilds read the
// durable store and write the cache; the portfolio snapshot reads the cache
// only. Grounded on cmd/fetch_trades/main.go's shape — a standalone
// one-shot tool reading flags/env and printing a plain report, run by hand
// rather than as a long-lived service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/web3guy0/orderflow/internal/admin"
	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/config"
)

func main() {
	action := flag.String("action", "",
		"rebuild-user-indices | prune-stale-cache | ensure-symbol-holders | ensure-single-holding | portfolio-snapshot")
	userType := flag.String("user-type", "", "live | demo")
	userID := flag.String("user-id", "", "user id")
	symbol := flag.String("symbol", "", "market symbol")
	orderID := flag.String("order-id", "", "order id")
	flag.Parse()

	if *action == "" {
		fmt.Println("usage: orderflow-admin -action=<rebuild-user-indices|prune-stale-cache|" +
			"ensure-symbol-holders|ensure-single-holding|portfolio-snapshot> ...")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	cacheStore := cache.New(rdb)

	rebuilder, err := admin.Open(cfg.DatabaseURL, cacheStore)
	if err != nil {
		fmt.Println("Error opening admin store:", err)
		os.Exit(1)
	}
	defer rebuilder.Close()

	ctx := context.Background()

	switch *action {
	case "rebuild-user-indices":
		n, err := rebuilder.RebuildUserIndices(ctx, *userType, *userID)
		report("rebuild-user-indices", n, err)
	case "prune-stale-cache":
		n, err := rebuilder.PruneStaleCacheEntries(ctx, *userType, *userID)
		report("prune-stale-cache", n, err)
	case "ensure-symbol-holders":
		n, err := rebuilder.EnsureSymbolHolderSet(ctx, *symbol, *userType)
		report("ensure-symbol-holders", n, err)
	case "ensure-single-holding":
		err := rebuilder.EnsureSingleHolding(ctx, *userType, *userID, *orderID)
		report("ensure-single-holding", 1, err)
	case "portfolio-snapshot":
		snap, err := rebuilder.PortfolioSnapshot(ctx, *userType, *userID)
		if err != nil {
			fmt.Println("portfolio-snapshot: error:", err)
			os.Exit(1)
		}
		fmt.Printf("portfolio-snapshot: %s:%s holds %d order(s)\n", *userType, *userID, len(snap.Holdings))
		for _, h := range snap.Holdings {
			fmt.Printf("  %s %s %s %s\n", h["order_id"], h["symbol"], h["order_type"], h["order_status"])
		}
	default:
		fmt.Println("unknown -action:", *action)
		os.Exit(2)
	}
}

func report(action string, n int, err error) {
	if err != nil {
		fmt.Printf("%s: error: %v\n", action, err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d entries touched\n", action, n)
}

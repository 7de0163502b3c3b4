package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qtc-marketplace/internal/cache"
	"qtc-marketplace/internal/cart"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/handler"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/metrics"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/repository"
	"qtc-marketplace/internal/server"
	"qtc-marketplace/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "qtc-marketplace",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})
	ctx := context.Background()

	fatal := func(msg string, err error) {
		log.Error(ctx, msg, err)
		os.Exit(1)
	}

	db, err := client.InitDBClient(&cfg.Database)
	if err != nil {
		fatal("init database", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = client.InitRedisClient(ctx, &cfg.Redis)
		if err != nil {
			fatal("init redis", err)
		}
		defer rdb.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(registry)

	backend, err := cartBackend(cfg, db, rdb)
	if err != nil {
		fatal("init cart backend", err)
	}
	carts := cart.NewStore(backend, log)

	var productCache *cache.RedisCache
	if rdb != nil {
		productCache = cache.NewRedisCache(rdb, "catalog", cfg.Catalog.CacheTTL)
	}
	catalog := client.NewCatalogClient(&cfg.Catalog, productCache, log)

	ledger, err := client.NewSolanaClient(&cfg.Solana)
	if err != nil {
		fatal("init solana client", err)
	}
	if _, ok := ledger.Signer(); !ok {
		log.Warn(ctx, "no solana signer configured: token checkout needs a wallet-signed transaction")
	}

	nowPayments := client.NewNowPaymentsClient(&cfg.NowPayments)
	gateways := []client.GatewayClient{
		client.NewTokenClient(ledger),
		client.NewStripeClient(&cfg.Stripe),
		client.NewBitPayClient(&cfg.BitPay),
		nowPayments,
		client.NewCoinGateClient(&cfg.CoinGate, cfg.Environment.IsProduction()),
		client.NewBraintreeClient(&cfg.BrainTree),
	}
	for i, gw := range gateways {
		gateways[i] = client.NewInstrumentedGateway(gw, recorder)
	}
	registryOfGateways := client.NewRegistry(gateways...)

	orderRepo := repository.NewOrderRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	checkoutService := service.NewCheckoutService(
		db, carts, registryOfGateways, orderRepo,
		recorder, log,
		service.NewPollConfig(&cfg.Poll),
		cfg.BaseURL,
	)
	checkoutService.OnSuccess(func(ctx context.Context, order *model.Order) {
		log.Fields(ctx, "order paid", map[string]any{
			"reference":    order.Reference,
			"price_amount": order.PriceAmount.String(),
			"currency":     order.PriceCurrency,
			"token_amount": order.TokenAmount,
		})
	})
	if n, err := checkoutService.Resume(ctx); err != nil {
		log.Error(ctx, "resume pending orders", err)
	} else if n > 0 {
		log.Info(ctx, fmt.Sprintf("resumed polling for %d pending orders", n))
	}

	webhookService := service.NewWebhookService(checkoutService, webhookEventRepo, &cfg.NowPayments, &cfg.Stripe, recorder, log)
	tokenService := service.NewTokenService(ledger, log)

	srv := server.NewServer(server.Handlers{
		Cart:     handler.NewCartHandler(carts),
		Product:  handler.NewProductHandler(catalog),
		Checkout: handler.NewCheckoutHandler(checkoutService),
		Payment:  handler.NewPaymentHandler(registryOfGateways, nowPayments),
		Webhook:  handler.NewWebhookHandler(webhookService, log),
		Token:    handler.NewTokenHandler(tokenService),
		Quote:    handler.NewQuoteHandler(client.NewJupiterClient(&cfg.Jupiter)),
	}, log, registry)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	log.Info(ctx, "Starting HTTP server on "+serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("HTTP server error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info(ctx, "Signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "HTTP server shutdown error", err)
	}
	checkoutService.Shutdown()
}

func cartBackend(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (cart.Backend, error) {
	switch cfg.Cart.Backend {
	case "redis":
		if rdb == nil {
			return nil, errors.New("CART_BACKEND=redis needs REDIS_URL or REDIS_ADDR")
		}
		return cart.NewCacheBackend(cache.NewRedisCache(rdb, "cart", cfg.Cart.TTL)), nil
	case "sql":
		return repository.NewCartRepository(db), nil
	case "memory", "":
		return cart.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unsupported cart backend %q", cfg.Cart.Backend)
}

package main

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mdemidkin1992/intershop/cache"
	"github.com/mdemidkin1992/intershop/cart"
	"github.com/mdemidkin1992/intershop/catalog"
	"github.com/mdemidkin1992/intershop/config"
	"github.com/mdemidkin1992/intershop/coordinator"
	"github.com/mdemidkin1992/intershop/events"
	"github.com/mdemidkin1992/intershop/handler"
	"github.com/mdemidkin1992/intershop/store"
)

//go:embed migrations.sql
var migrationSQL string

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed loading configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	st, err := store.Open(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
	if err != nil {
		log.Fatal().Err(err).Msg("DB connection failed")
	}
	defer st.Close()
	st.CheckoutRetries = cfg.CheckoutMaxRetries

	if err := st.Migrate(ctx, migrationSQL); err != nil {
		log.Fatal().Err(err).Msg("Failed running migrations")
	}
	log.Info().Msg("Database migrations executed successfully")

	// --- Cache ---
	var productCache cache.Cache
	redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unreachable, serving catalog reads from the store only")
		productCache = cache.Disabled{}
	} else {
		productCache = redisCache
		defer redisCache.Close()
	}

	// --- Events ---
	var publisher cart.Publisher
	if cfg.RabbitMQURL != "" {
		pub, err := events.NewPublisher(cfg.RabbitMQURL, cfg.StockExchangeName, cfg.StockRoutingKey)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unreachable, stock events disabled")
		} else {
			publisher = pub
			defer pub.Close()
		}
	}

	// --- Services ---
	keys := coordinator.New()
	catalogSvc := catalog.New(st, productCache, keys, catalog.Options{
		TTL:             cfg.CacheTTL,
		NegativeTTL:     cfg.NegativeCacheTTL,
		PopulateTimeout: cfg.PopulateTimeout,
		DefaultPageSize: cfg.DefaultPageSize,
	})
	cartSvc := cart.New(st, catalogSvc, publisher)

	// --- Router ---
	r := mux.NewRouter()
	handler.New(catalogSvc, cartSvc).RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		os.Exit(1)
	}
}

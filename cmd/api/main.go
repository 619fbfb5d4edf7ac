package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hatid/hatid-api/internal/config"
	"github.com/hatid/hatid-api/internal/domain/fee"
	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/paymentmethod"
	"github.com/hatid/hatid-api/internal/domain/realtime"
	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/domain/webhook"
	"github.com/hatid/hatid-api/internal/middleware"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/pkg/database"
	"github.com/hatid/hatid-api/internal/pkg/events"
	"github.com/hatid/hatid-api/internal/pkg/idempotency"
	"github.com/hatid/hatid-api/internal/pkg/jwt"
	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/metrics"
	"github.com/hatid/hatid-api/internal/pkg/response"
	"github.com/hatid/hatid-api/internal/pkg/storage"
	"github.com/hatid/hatid-api/internal/store/docstore"
	"github.com/hatid/hatid-api/internal/store/memory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, Service: "hatid-api"})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Hatid wallet API")

	ctx := context.Background()

	balanceCodec, err := newCodec(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init balance codec")
	}

	stores, err := openStores(ctx, cfg, balanceCodec)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer stores.close()

	redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	publisher := newPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init reconciliation archive")
	}

	hub := realtime.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	r := newRouter(cfg, stores, deps{
		publisher: publisher,
		archive:   archive,
		hub:       hub,
		seen:      seenCache(redisClient),
		jwt:       jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// stores bundles the persistence ports of the selected backend.
type stores struct {
	wallets  wallet.Store
	webhooks webhook.Store
	ledger   ledger.Reader
	methods  paymentmethod.Store
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, c codec.Codec) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverFirestore:
		client, err := database.NewFirestore(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		ds := docstore.New(client, c)
		return &stores{
			wallets:  ds,
			webhooks: ds,
			ledger:   ds.Ledger(),
			methods:  ds.PaymentMethods(),
			close: func() {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close Firestore client")
				}
			},
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		return memoryStores(memory.New(c)), nil

	default:
		if cfg.RunMigrations {
			if err := database.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool)
		if err != nil {
			return nil, err
		}
		ledgerRepo := ledger.NewRepository(db)
		return &stores{
			wallets:  wallet.NewRepository(db, c, ledgerRepo),
			webhooks: webhook.NewRepository(db, order.NewRepository(), ledgerRepo),
			ledger:   ledgerRepo,
			methods:  paymentmethod.NewRepository(db),
			close:    func() { database.ClosePostgres(db) },
		}, nil
	}
}

func memoryStores(m *memory.Store) *stores {
	return &stores{
		wallets:  m,
		webhooks: m,
		ledger:   m.Ledger(),
		methods:  m.PaymentMethods(),
		close:    func() {},
	}
}

func newCodec(cfg *config.Config) (codec.Codec, error) {
	if cfg.BalanceCodecKey == "" {
		log.Warn().Msg("BALANCE_CODEC_KEY not set; balances are stored in plain text")
		return codec.Plain{}, nil
	}
	key, err := codec.ParseKey(cfg.BalanceCodecKey)
	if err != nil {
		return nil, err
	}
	return codec.NewAEAD(key)
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info().Msg("KAFKA_BROKERS not set; ledger events are not streamed")
		return events.Noop{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, events.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      true,
	})
}

func newArchive(ctx context.Context, cfg *config.Config) (storage.Archive, error) {
	if cfg.Bucket == "" {
		log.Info().Msg("ARCHIVE_BUCKET not set; rejected webhooks are only logged")
		return storage.Discard{}, nil
	}
	return storage.NewS3Archive(ctx, storage.S3Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
}

func seenCache(client *redis.Client) webhook.SeenCache {
	if client == nil {
		return nil
	}
	return idempotency.NewCache(client, "webhook:seen:")
}

type deps struct {
	publisher events.Publisher
	archive   storage.Archive
	hub       *realtime.Hub
	seen      webhook.SeenCache
	jwt       *jwt.Service
}

func newRouter(cfg *config.Config, st *stores, d deps) chi.Router {
	broadcaster := ledger.NewBroadcaster(d.publisher, cfg.LedgerTopic)

	walletSvc := wallet.NewService(st.wallets, st.ledger, st.methods)
	feeSvc := fee.NewService(st.wallets,
		fee.WithBroadcaster(broadcaster),
		fee.WithNotifier(d.hub),
		fee.WithDefaultHoldMinutes(cfg.FeeHoldMinutes),
	)
	webhookSvc := webhook.NewService(st.webhooks, st.ledger, st.methods,
		webhook.WithSeenCache(d.seen),
		webhook.WithArchive(d.archive),
		webhook.WithBroadcaster(broadcaster),
		webhook.WithOrderGrace(cfg.OrderGrace),
		webhook.WithDedupTTL(cfg.DedupTTL),
	)

	walletHandler := wallet.NewHandler(walletSvc)
	feeHandler := fee.NewHandler(feeSvc)
	webhookHandler := webhook.NewHandler(webhookSvc, cfg.XenditCallbackToken)
	realtimeHandler := realtime.NewHandler(d.hub, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(d.jwt)
	holdGuard := middleware.RequireMinimumBalance(walletSvc, cfg.MinOperatingBalance, wallet.WriteError)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Mount("/wallet", walletHandler.Routes(authMiddleware))
		r.Mount("/fees", feeHandler.Routes(authMiddleware, holdGuard))
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Mount("/", webhookHandler.Routes())
	})

	r.Mount("/ws", realtimeHandler.Routes(authMiddleware))

	return r
}

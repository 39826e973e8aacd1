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

	"harthio_ai_gateway/cmd/api/config"
	"harthio_ai_gateway/internal/api"
	"harthio_ai_gateway/internal/auth"
	"harthio_ai_gateway/internal/database"
	"harthio_ai_gateway/internal/flags"
	"harthio_ai_gateway/internal/llm"
	"harthio_ai_gateway/internal/services"
	"harthio_ai_gateway/internal/utils/broker"
	"harthio_ai_gateway/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flagStore, err := flags.Load(cfg.GatewayConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load gateway config")
	}
	if err := flagStore.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("Gateway config hot reload disabled")
	}

	database.InitDB(ctx, database.Config{
		Driver:         cfg.DBDriver,
		Host:           cfg.DBHost,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		Name:           cfg.DBName,
		Port:           cfg.DBPort,
		SQLitePath:     cfg.SQLitePath,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	sqlDB, err := database.DB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}
	defer sqlDB.Close()

	providers, closeProviders, err := buildProviders(ctx, flagStore.Current())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider adapters")
	}
	defer closeProviders()

	// Initialize internal services
	entitlementDB := services.NewEntitlementServiceDB(database.DB)
	var tierSource services.TierSource = entitlementDB
	if cfg.TierSource == "stripe" {
		tierSource = services.NewStripeTierSource(cfg.StripeSecretKey, entitlementDB)
	}
	entitlementService := services.NewEntitlementService(entitlementDB, tierSource, flagStore)
	ledgerService := services.NewUsageLedgerService(services.NewUsageLedgerServiceDB(database.DB))

	gatewayCfg := flagStore.Current()
	responseCache := services.NewResponseCache(
		gatewayCfg.Cache.MaxEntries,
		time.Duration(gatewayCfg.Cache.TTLSeconds)*time.Second,
		gatewayCfg.Cache.MaxLength,
	)
	messageBroker := broker.NewBroker()

	gatewayService := services.NewGatewayService(
		entitlementService,
		services.NewKeywordClassifier(),
		services.NewConversationCompactor(gatewayCfg.Compaction.Threshold, gatewayCfg.Compaction.Keep),
		responseCache,
		services.NewProviderRouter(flagStore, providers),
		ledgerService,
		flagStore,
		messageBroker,
	)

	limiter := api.NewCallerLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx, cfg.LimiterSweepInterval)

	verifier := auth.NewVerifier(auth.Config{JWTSecret: cfg.AuthJWTSecret, JWKSURL: cfg.AuthJWKSURL})
	authMiddleware := auth.AuthMiddleware(verifier)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger())

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	wsHandler := wsocket.NewHandler(gatewayService, flagStore, messageBroker, limiter, upgrader)

	api.SetupRoutes(r, gatewayService, flagStore, authMiddleware, limiter, sqlDB)
	r.GET("/ws/ai/chat", authMiddleware, func(c *gin.Context) {
		callerID, _ := auth.CallerID(c)
		wsHandler.HandleWebSocket(c.Writer, c.Request, callerID)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

// buildProviders creates one adapter per configured backend. Adapters are
// built once; enable flags, models and prices are read live from the store.
func buildProviders(ctx context.Context, gatewayCfg *flags.GatewayConfig) (map[string]llm.Provider, func(), error) {
	providers := make(map[string]llm.Provider, len(gatewayCfg.Providers))
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for backend, pc := range gatewayCfg.Providers {
		apiKey := os.Getenv(pc.APIKeyEnv)
		if apiKey == "" {
			log.Warn().Str("backend", backend).Str("env", pc.APIKeyEnv).Msg("Provider API key is not set")
		}

		switch pc.Kind {
		case "gemini":
			var client *genai.Client
			if apiKey != "" {
				c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
				if err != nil {
					closeAll()
					return nil, nil, fmt.Errorf("failed to create GenAI client for %s: %w", backend, err)
				}
				client = c
				closers = append(closers, func() { c.Close() })
			}
			if client == nil {
				providers[backend] = llm.NewGeminiProvider(pc.Name, nil)
			} else {
				providers[backend] = llm.NewGeminiProvider(pc.Name, client)
			}
		default:
			providers[backend] = llm.NewOpenAIProvider(pc.Name, pc.BaseURL, apiKey, pc.Timeout())
		}
		log.Info().Str("backend", backend).Str("provider", pc.Name).Str("kind", pc.Kind).Bool("enabled", pc.Enabled).Msg("Provider adapter ready")
	}
	return providers, closeAll, nil
}

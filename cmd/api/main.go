package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"tripmind_go_backend/cmd/api/config"
	"tripmind_go_backend/internal/api"
	"tripmind_go_backend/internal/auth"
	"tripmind_go_backend/internal/database"
	"tripmind_go_backend/internal/providers"
	"tripmind_go_backend/internal/services"
	"tripmind_go_backend/internal/utils/broker"
	"tripmind_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ringsaturn/tzf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	db, err := database.InitDB(database.Options{
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		Port:     cfg.DBPort,
		LogSQL:   cfg.DBLogSQL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize model providers
	openaiCfg := providers.DefaultOpenAIConfig(cfg.OpenAIAPIKey)
	openaiCfg.BaseURL = cfg.OpenAIBaseURL
	openaiCfg.Timeout = cfg.ProviderTimeout
	openaiProvider := providers.NewOpenAIProvider(openaiCfg)

	registered := []providers.Provider{openaiProvider}
	var geminiProvider *providers.GeminiProvider
	if cfg.GeminiAPIKey != "" {
		geminiProvider, err = providers.NewGeminiProvider(ctx, providers.DefaultGeminiConfig(cfg.GeminiAPIKey))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini provider")
		}
		defer geminiProvider.Close()
		registered = append(registered, geminiProvider)
	}

	registry, err := providers.NewRegistry(cfg.DefaultProvider, registered...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider registry")
	}

	var limiter services.RateLimiter
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendDatabase:
		limiter = services.NewDBRateLimiter(db, cfg.RateLimitMax, cfg.RateLimitWindow)
	default:
		limiter = services.NewMemoryRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	reporter := services.NewLogErrorReporter(log.Logger)

	chatProvider, chatModel := providers.ParseModelRef(cfg.ChatModel, cfg.DefaultProvider)
	gateway := services.NewGatewayService(registry, limiter, reporter, services.GatewayConfig{
		ChatRoute: services.ModelRoute{Provider: chatProvider, Model: chatModel},
	}, log.Logger)

	// Initialize stores
	userService := services.NewUserServiceDB(db)
	conversationService := services.NewConversationServiceDB(db)
	draftService := services.NewDraftTripServiceDB(db, cfg.DraftTTL)
	tripService := services.NewTripServiceDB(db)

	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load timezone finder")
	}
	locales := services.NewLocaleResolver(finder, services.LocaleDefaults{
		Locale:   cfg.DefaultLocale,
		Timezone: cfg.DefaultTimezone,
		Currency: cfg.DefaultCurrency,
	}, log.Logger)

	routines := services.NewRoutineMiningService(tripService, draftService, cfg.RoutineLookback, log.Logger)

	// Prefer the chat provider for embeddings so stored vectors share one model.
	var embedder providers.Embedder = openaiProvider
	if chatProvider == providers.GeminiName && geminiProvider != nil {
		embedder = geminiProvider
	}
	embeddings := services.NewRouteEmbeddingService(embedder, log.Logger)

	var vision providers.VisionAnalyzer = openaiProvider
	if geminiProvider != nil {
		vision = geminiProvider
	}

	var storageManager services.CloudStorageManager
	if cfg.GCSBucketName != "" {
		gcsService, err := services.NewGCSService(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS service")
		}
		defer gcsService.Close()
		storageManager = gcsService
	}

	media := services.NewMediaService(
		openaiProvider,
		openaiProvider,
		vision,
		conversationService,
		storageManager,
		reporter,
		services.MediaConfig{AudioBucket: cfg.GCSBucketName},
		log.Logger,
	)

	messageBroker := broker.NewBroker()

	agent := services.NewAgentService(services.AgentDeps{
		Gateway:       gateway,
		Moderator:     openaiProvider,
		Users:         userService,
		Conversations: conversationService,
		Drafts:        draftService,
		Trips:         tripService,
		Routines:      routines,
		Embeddings:    embeddings,
		Locales:       locales,
		Events:        messageBroker,
		Reporter:      reporter,
	}, cfg.HistoryWindow, log.Logger)

	calendar := services.NewCalendarService(draftService, cfg.DraftListLimit)
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, userService)

	if cfg.LogFormat != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	wsHandler := wsocket.NewHandler(agent, gateway, upgrader, 30*time.Second, log.Logger)

	api.SetupRoutes(r, api.Deps{
		Auth:           authenticator,
		Agent:          agent,
		Gateway:        gateway,
		Media:          media,
		Routines:       routines,
		Drafts:         draftService,
		Trips:          tripService,
		Documents:      services.NewTripDocumentService("TripMind"),
		Conversations:  conversationService,
		Calendar:       calendar,
		Locales:        locales,
		DraftListLimit: cfg.DraftListLimit,
	})
	auth.SetupRoutes(r, authenticator)

	r.GET("/ws", authenticator.Middleware(), func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		wsHandler.HandleWebSocket(c.Writer, c.Request, user, c.ClientIP(), messageBroker)
	})

	log.Info().
		Str("port", cfg.Port).
		Str("chat_model", chatProvider+"/"+chatModel).
		Str("rate_limit_backend", cfg.RateLimitBackend).
		Msg("Server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/config"
	"github.com/capitalize-ai/assistant-engine/internal/dispatch"
	"github.com/capitalize-ai/assistant-engine/internal/handler"
	"github.com/capitalize-ai/assistant-engine/internal/integrations"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/lock"
	"github.com/capitalize-ai/assistant-engine/internal/middleware"
	natsclient "github.com/capitalize-ai/assistant-engine/internal/nats"
	"github.com/capitalize-ai/assistant-engine/internal/orchestrator"
	"github.com/capitalize-ai/assistant-engine/internal/service"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var (
		log *logger.Logger
		err error
	)
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", "environment", cfg.Environment)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "assistant-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open database
	db, err := store.Open(store.Options{URL: cfg.DatabaseURL, SlowThreshold: cfg.DBSlowQueryThresh})
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(db); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	repos := store.NewRepos(db)
	ping := func(ctx context.Context) error { return store.Ping(ctx, db) }

	// Action journal over NATS JetStream; optional.
	var (
		natsClient *natsclient.Client
		journal    service.Journal
		audit      handler.JournalReader
	)
	if cfg.NATSURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		natsClient, err = natsclient.Connect(connectCtx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			cancel()
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		j := natsclient.NewJournal(natsClient, cfg.NATSStream, log)
		if err := j.EnsureStream(connectCtx); err != nil {
			cancel()
			log.Error("failed to ensure journal stream", "error", err)
			os.Exit(1)
		}
		cancel()
		journal, audit = j, j
	} else {
		log.Info("NATS_URL not set, action journal disabled")
	}

	// Extraction locks; Redis when configured.
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rl, err := lock.NewRedis(ctx, lock.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
		if err != nil {
			log.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rl.Close()
		locker = rl
	}

	// LLM registry and live settings
	initial := cfg.InitialLLMSettings()
	if !hasCredentials(cfg, llm.Provider(initial.Provider)) {
		log.Warn("no API key for LLM provider, using offline mock", "provider", initial.Provider)
		initial.Provider = string(llm.ProviderMock)
		initial.Model = ""
	}
	models := llm.NewRegistry(llm.NewFactory(llm.Credentials{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		Timeout:         cfg.LLMTimeout,
	}))
	if err := models.Validate(initial); err != nil {
		log.Error("invalid LLM settings", "provider", initial.Provider, "error", err)
		os.Exit(1)
	}
	settings := config.NewSettingsCell(initial)
	active := llm.NewActive(models, settings)

	// External collaborators
	weather := integrations.NewWeather(cfg.OpenWeatherMapAPIKey, cfg.DefaultCity, "")
	news := integrations.NewNews(cfg.NewsAPIKey, cfg.NewsDefaultCountry, "")
	search := integrations.NewSearch(cfg.TavilyAPIKey, "")
	mailer := integrations.NewMailer(integrations.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)

	// Initialize services
	gate := service.NewGate(journal, log)
	taskSvc := service.NewTaskService(repos.Tasks, gate, journal, log)
	calendarSvc := service.NewCalendarService(repos.Events, gate, journal, log)
	emailSvc := service.NewEmailService(repos.Emails, mailer, gate, journal, log)
	memorySvc := service.NewMemoryService(repos.Memories, repos.Conversations, active, cfg.MemoryMinImportance, journal, log)
	knowledgeSvc := service.NewKnowledgeService(repos.Notes, journal, log)
	conversationSvc := service.NewConversationService(repos.Conversations, active, service.ConversationOptions{
		AssistantName:      cfg.AssistantName,
		UserName:           cfg.UserName,
		DefaultTimezone:    cfg.DefaultTimezone,
		MaxContextMessages: cfg.MaxContextMessages,
		SummaryThreshold:   cfg.SummaryThreshold,
	}, log)
	briefingSvc := service.NewBriefingService(taskSvc, calendarSvc, emailSvc, weather, news, log)
	diagnosticsSvc := service.NewDiagnosticsService(ping, natsClient.Status, settings, cfg.AssistantName, cfg.UserName)

	dispatcher, err := dispatch.NewRegistry(dispatch.Catalog(), log, dispatch.Handlers(dispatch.Deps{
		Tasks:       taskSvc,
		Calendar:    calendarSvc,
		Emails:      emailSvc,
		Memory:      memorySvc,
		Knowledge:   knowledgeSvc,
		Briefing:    briefingSvc,
		Diagnostics: diagnosticsSvc,
		Weather:     weather,
		News:        news,
		Search:      search,
	})...)
	if err != nil {
		log.Error("function catalog does not match handlers", "error", err)
		os.Exit(1)
	}
	log.Info("function catalog loaded", "version", dispatch.CatalogVersion, "functions", len(dispatcher.Catalog()))

	orch := orchestrator.New(orchestrator.Deps{
		Conversations: conversationSvc,
		Memory:        memorySvc,
		Dispatcher:    dispatcher,
		Catalog:       dispatcher.Catalog(),
		Models:        models,
		Settings:      settings,
		Locker:        locker,
		Journal:       journal,
	}, orchestrator.Options{
		MaxFunctionArgsBytes: cfg.MaxFunctionArgsBytes,
		RecentConversations:  cfg.RecentConversations,
		ExtractEvery:         cfg.ExtractEvery,
		ExtractionTimeout:    cfg.FactExtractionTimeout,
	}, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(ping, natsClient.Status)
	api := &handler.API{
		Stream:        handler.NewStreamHandler(orch, log),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Tasks:         handler.NewTaskHandler(taskSvc),
		Calendar:      handler.NewCalendarHandler(calendarSvc, conversationSvc.ResolveLocation),
		Emails:        handler.NewEmailHandler(emailSvc),
		Memory:        handler.NewMemoryHandler(memorySvc),
		Knowledge:     handler.NewKnowledgeHandler(knowledgeSvc),
		Briefing:      handler.NewBriefingHandler(briefingSvc, conversationSvc.ResolveLocation),
		News:          handler.NewNewsHandler(news),
		Settings:      handler.NewSettingsHandler(settings, models, log),
		Audit:         handler.NewAuditHandler(audit),
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(nil))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIToken, cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		api.Register(r)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// Let in-flight fact extraction finish before closing the database.
	waitBackground(shutdownCtx, orch, log)
	closeDB(db, log)

	log.Info("server stopped")
}

// hasCredentials reports whether provider can authenticate. Ollama and the
// mock need no key.
func hasCredentials(cfg *config.Config, provider llm.Provider) bool {
	switch provider {
	case llm.ProviderAnthropic:
		return cfg.AnthropicAPIKey != ""
	case llm.ProviderOpenAI, llm.ProviderDeepSeek, llm.ProviderOpenRouter:
		return cfg.OpenAIAPIKey != ""
	default:
		return true
	}
}

func waitBackground(ctx context.Context, orch *orchestrator.Orchestrator, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("background work still running at shutdown")
	}
}

func closeDB(db *gorm.DB, log *logger.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
}

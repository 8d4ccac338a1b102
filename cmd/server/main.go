package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"preecode/internal/api"
	"preecode/internal/api/middleware"
	"preecode/internal/app/service"
	"preecode/internal/app/worker"
	"preecode/internal/common/security"
	"preecode/internal/domain/repository"
	"preecode/internal/platform/cache"
	"preecode/internal/platform/config"
	"preecode/internal/platform/database"
	"preecode/internal/platform/llm"
	"preecode/internal/platform/logger"
	"preecode/internal/platform/metrics"
	"preecode/internal/platform/oauth"
	"preecode/internal/platform/queue"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Initialize Logger
	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database
	db, err := database.Connect(ctx, cfg.DBConnStr, zlog)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	applied, err := database.Migrate(ctx, db)
	if err != nil {
		zlog.Fatal("schema migration failed", zap.Error(err))
	}
	zlog.Info("schema up to date", zap.Int("statements", applied))

	// 4. Initialize Redis
	rdb, err := queue.ConnectRedis(ctx, queue.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, zlog)
	if err != nil {
		zlog.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(db)
	submissionRepo := repository.NewPgSubmissionRepository(db)
	practiceRepo := repository.NewPgPracticeRepository(db)

	// 6. Initialize platform adapters
	m := metrics.New()
	tokens := security.NewTokenIssuer(cfg.JWTKey, cfg.JWTExp)
	redirects := security.NewRedirectPolicy(cfg.AllowedRedirectSchemes, service.DefaultRedirectURL(cfg.FrontendURL))
	google := oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		CallbackURL:  cfg.GoogleCallbackURL(),
	})
	if !google.Configured() {
		zlog.Warn("Google sign-in disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET missing")
	}
	statsCache := cache.NewStatsCache(rdb, cfg.StatsCacheTTL)
	revocations := cache.NewRevocationStore(rdb)
	statsQueue := queue.NewStatsQueue(rdb, cfg.StatsQueueName)
	locker := queue.NewLocker(rdb, cfg.StatsLockPrefix, cfg.StatsLockTTL)

	// A nil interface, not a nil *llm.Client, keeps the 503 path working.
	var completer llm.Completer
	llmClient, err := llm.New(llm.Config{
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		BaseURL:           cfg.LLMBaseURL,
		Timeout:           cfg.LLMTimeout,
		RequestsPerMinute: cfg.LLMRequestsPerMinute,
	}, zlog)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		zlog.Warn("AI endpoints disabled: LLM_API_KEY missing")
	case err != nil:
		zlog.Fatal("llm client init failed", zap.Error(err))
	default:
		completer = llmClient
	}

	// 7. Initialize Services
	authService := service.NewAuthService(userRepo, google, tokens, redirects, revocations, service.AuthConfig{
		FrontendURL:       cfg.FrontendURL,
		Development:       cfg.IsDevelopment(),
		EarlyAccessMonths: cfg.EarlyAccessMonths,
	}, m, zlog)
	userService := service.NewUserService(userRepo, tokens, statsCache, cfg.EarlyAccessMonths, m, zlog)
	statsService := service.NewStatsService(userRepo, submissionRepo, practiceRepo, statsCache, zlog)
	submissionService := service.NewSubmissionService(submissionRepo, statsCache, statsQueue, m, zlog)
	practiceService := service.NewPracticeService(practiceRepo, statsCache, statsQueue, zlog)
	aiService := service.NewAIService(completer, m, zlog)
	earlyAccessService := service.NewEarlyAccessService(userRepo, cfg.EarlyAccessMonths, zlog)

	// 8. Initialize background workers
	var wg sync.WaitGroup
	statsWorker := worker.NewStatsWorker(statsQueue, locker, statsService, m, zlog, worker.Options{})
	limiter := middleware.NewIPRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	wg.Add(2)
	go func() {
		defer wg.Done()
		statsWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		limiter.RunSweeper(ctx, cfg.RateLimitWindow)
	}()

	// 9. Initialize Router & HTTP Server
	services := api.Services{
		Auth:        authService,
		Users:       userService,
		Stats:       statsService,
		Devices:     authService,
		Submissions: submissionService,
		Practice:    practiceService,
		AI:          aiService,
		EarlyAccess: earlyAccessService,
	}
	if cfg.EarlyAccessEnforced {
		services.Access = earlyAccessService
	}
	router := api.NewRouter(api.RouterConfig{
		Environment:    cfg.AppEnv,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		TrustProxy:     cfg.TrustProxy,
	}, services, tokens, revocations, limiter, m, zlog)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second, // AI completions are slow
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	go func() {
		zlog.Info("server starting", zap.String("port", cfg.APIPort), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("could not listen", zap.String("port", cfg.APIPort), zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	wg.Wait()
	zlog.Info("server and worker stopped gracefully")
}

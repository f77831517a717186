package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/beaconlabs/deploybeacon/internal/alerting"
	"github.com/beaconlabs/deploybeacon/internal/cache"
	"github.com/beaconlabs/deploybeacon/internal/chat"
	"github.com/beaconlabs/deploybeacon/internal/config"
	"github.com/beaconlabs/deploybeacon/internal/deploy"
	"github.com/beaconlabs/deploybeacon/internal/github"
	"github.com/beaconlabs/deploybeacon/internal/handlers"
	"github.com/beaconlabs/deploybeacon/internal/metrics"
	"github.com/beaconlabs/deploybeacon/internal/middleware"
	"github.com/beaconlabs/deploybeacon/internal/migration"
	"github.com/beaconlabs/deploybeacon/internal/notify"
	"github.com/beaconlabs/deploybeacon/internal/repository"
	"github.com/beaconlabs/deploybeacon/internal/resolver"
	"github.com/beaconlabs/deploybeacon/internal/routes"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config  *config.Config
	db      *sql.DB
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	app := &application{
		config:  cfg,
		db:      db,
		logger:  logger,
		metrics: metrics.New(),
	}

	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	instrumented := middleware.Instrument(app.metrics)(loggedRouter)
	recovered := h.RecoveryHandler(h.PrintRecoveryStack(true))(instrumented)

	app.startServer(recovered, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter wires all collaborators and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	reporter := alerting.NewLogReporter(logger)

	// Installation-token and chat-identity cache.
	var ttlCache cache.Cache
	if app.config.Redis.Addr != "" {
		redisCache, err := cache.NewRedis(app.config.Redis.Addr, app.config.Redis.Password, app.config.Redis.DB, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
			ttlCache = cache.NewMemory()
		} else {
			ttlCache = redisCache
		}
	} else {
		ttlCache = cache.NewMemory()
	}

	// Source-control client, bound per call through the app-auth factory.
	privateKey, err := os.ReadFile(app.config.GitHub.PrivateKeyPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read GitHub App private key")
	}
	appAuth, err := github.NewAppAuth(app.config.GitHub.AppID, privateKey, ttlCache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure GitHub App auth")
	}
	source := github.NewSource(appAuth, app.config.GitHub.WrapperOwner)

	chatClient := chat.NewClient(app.config.Slack.BotToken, ttlCache, app.config.Slack.IdentityTTL, logger)

	repos := resolver.Repos{
		WrapperOwner:  app.config.GitHub.WrapperOwner,
		WrapperRepo:   app.config.GitHub.WrapperRepo,
		UpstreamOwner: app.config.GitHub.UpstreamOwner,
		UpstreamRepo:  app.config.GitHub.UpstreamRepo,
	}
	matcher := resolver.NewBotIdentity(app.config.Deploy.SyncBotUserID, app.config.Deploy.SyncBotEmail)
	commitResolver := resolver.NewCommitResolver(source, repos, reporter, logger)
	rangeResolver := resolver.NewRangeResolver(source, matcher, repos, reporter, logger)

	normalizer := deploy.NewNormalizer(app.config.Deploy.TerminalStages)

	machine := notify.NewStateMachine(notify.StateMachineParams{
		Store:     repository.NewNotificationRepository(app.db),
		Queued:    repository.NewQueuedCommitRepository(app.db),
		Chat:      chatClient,
		Commits:   commitResolver,
		Reporter:  reporter,
		Metrics:   app.metrics,
		Logger:    logger,
		Branch:    app.config.GitHub.DeployBranch,
		QueuedTTL: app.config.Deploy.QueuedTTL,
	})

	webhookHandler := handlers.NewWebhookHandler(machine, normalizer, reporter, app.metrics, logger)
	interactionHandler := handlers.NewInteractionHandler(handlers.InteractionHandlerParams{
		Ranges:       rangeResolver,
		Chat:         chatClient,
		Actions:      machine,
		Source:       source,
		Reporter:     reporter,
		Logger:       logger,
		WrapperOwner: app.config.GitHub.WrapperOwner,
		WrapperRepo:  app.config.GitHub.WrapperRepo,
		DeployBranch: app.config.GitHub.DeployBranch,
	})

	return routes.NewRouter(webhookHandler, interactionHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}

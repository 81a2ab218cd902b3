package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devpulse/sentiment-api/internal/audit"
	"github.com/devpulse/sentiment-api/internal/config"
	"github.com/devpulse/sentiment-api/internal/events"
	"github.com/devpulse/sentiment-api/internal/handlers"
	"github.com/devpulse/sentiment-api/internal/middleware"
	"github.com/devpulse/sentiment-api/internal/migration"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/devpulse/sentiment-api/internal/routes"
	"github.com/devpulse/sentiment-api/internal/trigger"
	"github.com/devpulse/sentiment-api/internal/worker"
	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
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
		config: cfg,
		db:     db,
		logger: logger,
	}

	// Repositories and services shared by the HTTP layer, the event
	// dispatcher and the worker.
	jobRepo := repository.NewJobRepository(db)
	contentRepo := repository.NewContentRepository(db)
	toolRepo := repository.NewToolRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	recorder := audit.NewRecorder(auditRepo, logger)
	triggerService := trigger.NewService(jobRepo, toolRepo, recorder, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Start the batch worker.
	processor := worker.NewProcessor(jobRepo, contentRepo, toolRepo, nil, recorder, worker.Config{
		CheckpointInterval: cfg.Worker.CheckpointInterval,
		AnalysisVersion:    cfg.Worker.AnalysisVersion,
		WriteRetryBase:     cfg.Worker.WriteRetryBase,
		WriteRetryJitter:   cfg.Worker.WriteRetryJitter,
		WriteMaxRetries:    cfg.Worker.WriteMaxRetries,
	}, logger)
	jobWorker := worker.New(jobRepo, processor, cfg.Worker.PollInterval, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := jobWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Worker stopped with error")
		}
	}()

	// Start the lifecycle-event consumer when a broker is configured.
	if cfg.Events.AMQPURL != "" {
		consumer := app.startEventConsumer(ctx, &wg, triggerService, recorder)
		if consumer != nil {
			defer consumer.Close()
		}
	} else {
		logger.Warn().Msg("No AMQP URL configured; automatic triggers disabled")
	}

	// Initialize the HTTP router and middleware.
	jobHandler := handlers.NewJobHandler(triggerService, jobRepo, logger)
	auditHandler := handlers.NewAuditHandler(auditRepo, logger)
	router := routes.NewRouter(db, cfg.JWTSecret, jobHandler, auditHandler)

	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{cfg.AllowedOrigin}),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, cancel, logger)

	wg.Wait()
	logger.Info().Msg("Application terminated.")
}

// startEventConsumer connects to the registry's broker and feeds lifecycle
// events into the automatic-trigger dispatcher.
func (app *application) startEventConsumer(ctx context.Context, wg *sync.WaitGroup, service *trigger.Service, recorder audit.Recorder) *events.Consumer {
	conn, err := amqp.Dial(app.config.Events.AMQPURL)
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
	}

	dispatcher := trigger.NewDispatcher(service, recorder, app.logger)
	consumer, err := events.NewConsumer(
		conn,
		app.config.Events.Exchange,
		app.config.Events.RoutingKey,
		app.config.Events.Queue,
		dispatcher.HandleEvent,
		app.logger,
	)
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to set up event consumer")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		if err := consumer.Start(ctx); err != nil {
			app.logger.Error().Err(err).Msg("Event consumer stopped with error")
		}
	}()
	return consumer
}

// startServer launches the HTTP server and blocks until shutdown.
func (app *application) startServer(handler http.Handler, cancel context.CancelFunc, logger zerolog.Logger) {
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

	// Stop the worker and the event consumer; the worker finishes at its
	// next checkpoint boundary and the job resumes on restart.
	cancel()

	// Gracefully shut down the HTTP server.
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}

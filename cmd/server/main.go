package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"flashdeck/internal/api"
	"flashdeck/internal/config"
	"flashdeck/internal/db"
	"flashdeck/internal/logger"
	"flashdeck/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(realMain())
}

// realMain returns the process exit code so deferred cleanup, including the
// final log flush, runs before the process exits.
func realMain() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conn *sql.DB
	if cfg.HistoryDatabase != "" {
		var err error
		conn, err = db.Open(cfg.HistoryDatabase)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer conn.Close()
		log.Info("history ledger enabled", "path", cfg.HistoryDatabase)
	}
	history := services.NewHistoryService(conn)

	llm, closeLLM, err := newTextGenerator(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLLM()

	ingestion := services.NewIngestion(
		services.NewExtractor(log.With("component", "extractor"), cfg.MaxUploadBytes*services.InflateRatio),
		services.NewGenerator(llm, cfg.GenerationTimeout, log.With("component", "generator")),
		history,
		log.With("component", "ingestion"),
	)
	server := api.NewServer(ingestion, history, api.Options{
		MaxUploadBytes:   cfg.MaxUploadBytes,
		AutoAdvanceDelay: cfg.AutoAdvanceDelay,
	}, log.With("component", "api"))

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
	}).Handler(server.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.GenerationTimeout + 30*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", srv.Addr, "generator", ingestion.GeneratorMode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := server.Drain(shutdownCtx); err != nil {
			log.Warn("upload still running at shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// newTextGenerator prefers Gemini, then OpenAI. With neither key configured it
// returns nil and the generator runs in mock mode.
func newTextGenerator(ctx context.Context, cfg config.Config, log *logger.Logger) (services.TextGenerator, func(), error) {
	if cfg.MockMode() {
		log.Warn("GEMINI_API_KEY and OPENAI_API_KEY are not set, flashcards will be mocked")
		return nil, func() {}, nil
	}
	if cfg.GeminiKey != "" {
		client, err := services.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini: %w", err)
		}
		log.Info("using gemini", "model", cfg.GeminiModel)
		return client, func() { _ = client.Close() }, nil
	}
	client, err := services.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIEndpoint, cfg.OpenAIModel)
	if err != nil {
		return nil, nil, fmt.Errorf("init openai: %w", err)
	}
	log.Info("using openai", "model", cfg.OpenAIModel, "endpoint", cfg.OpenAIEndpoint)
	return client, func() {}, nil
}

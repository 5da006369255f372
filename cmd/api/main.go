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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/smartspark/backend/internal/config"
	"github.com/zhouzirui/smartspark/backend/internal/handler"
	"github.com/zhouzirui/smartspark/backend/internal/logger"
	"github.com/zhouzirui/smartspark/backend/internal/service/ai"
	"github.com/zhouzirui/smartspark/backend/internal/service/chat"
	"github.com/zhouzirui/smartspark/backend/internal/service/health"
	"github.com/zhouzirui/smartspark/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.Log)
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("SmartSpark backend failed", zap.Error(err))
	}
}

// openStore is swapped in tests.
var openStore = storage.Open

// run wires the backend and serves until ctx is done. The completion provider
// is built before the store is opened, and the store is closed on every path
// after that.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("initialize completion provider %s: %w", cfg.AI.Provider, err)
	}
	log.Info("completion provider ready", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := openStore(connectCtx, cfg.Store, log)
	cancel()
	if err != nil {
		return fmt.Errorf("open conversation store %s: %w", cfg.Store.Driver, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("failed to close conversation store", zap.Error(err))
		}
	}()

	chatService := chat.NewService(store, completer, chat.Options{
		SystemPrompt: cfg.AI.SystemPrompt,
		Timeout:      cfg.AI.Timeout,
		HistoryLimit: cfg.AI.HistoryLimit,
	}, log)

	readiness := health.NewService(health.NewStoreChecker(cfg.Store.Driver, store))
	router := handler.NewRouter(chatService, readiness, cfg.CORS.AllowedOrigins, log)

	startServer(ctx, cfg.Server, router, log)
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("SmartSpark backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		log.Error("server error", zap.Error(err))
		return
	}
	log.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

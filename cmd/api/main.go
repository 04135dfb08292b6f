package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/library-service/cmd/api/auth"
	"github.com/library-service/cmd/api/config"
	"github.com/library-service/cmd/api/database"
	libraryhttp "github.com/library-service/cmd/api/http"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/library"
	"github.com/library-service/cmd/api/notifications"
	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

func main() {
	err := run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	repo, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	notifier, err := newNotifier(cfg)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}

	libraryService := library.NewService(repo, notifier, cfg.NotificationsTimeout, library.WithLogger(logger))
	libraryHandler := libraryhttp.NewLibraryHandler(libraryService, logger)

	//create and init http server:
	server := libraryhttp.NewServer(libraryhttp.ServerConfig{
		Port:           cfg.HTTPPort,
		RequestTimeout: cfg.HTTPRequestTimeout,
	}, libraryHandler, auth.NewAuthenticator(cfg.JWTSecret))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr), zap.String("store", cfg.Store))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serverErr)
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sc:
	case err := <-serverErr:
		return err
	}

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	logger.Info("graceful shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Dev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

/* Opens the store the config asks for. Postgres gets its migrations applied before serving. */
func openRepository(cfg *config.Config, logger *zap.Logger) (library.Repository, func(), error) {
	if cfg.Store == config.StoreMemory {
		store, err := inmemory.NewInMemoryStore()
		if err != nil {
			return nil, nil, fmt.Errorf("creating in-memory store: %w", err)
		}
		logger.Warn("using the in-memory store, data is lost on shutdown")
		return store, func() {}, nil
	}

	//connect to db:
	dbObject, err := database.ConnectDb(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting with db: %w", err)
	}

	//apply migrations:
	store := database.NewStore(dbObject)
	err = database.MigrationUp(store, cfg.DatabaseMigrationsPath)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		dbObject.Close()
		return nil, nil, fmt.Errorf("migrating: %w", err)
	}

	return store, func() { dbObject.Close() }, nil
}

func newNotifier(cfg *config.Config) (library.Notifier, error) {
	client := &http.Client{Timeout: cfg.NotificationsTimeout}
	switch cfg.NotificationsProvider {
	case config.NotificationsNtfy:
		return notifications.NewNtfy(cfg.NtfyBaseURL, client), nil
	case config.NotificationsTelegram:
		tg, err := notifications.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, "", client)
		if err != nil {
			return nil, err
		}
		return tg, nil
	default:
		return nil, nil
	}
}

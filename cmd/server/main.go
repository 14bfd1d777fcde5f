package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/estatedesk/listingkeeper/internal/config"
	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/domain/listing"
	"github.com/estatedesk/listingkeeper/internal/imaging"
	"github.com/estatedesk/listingkeeper/internal/mcp"
	"github.com/estatedesk/listingkeeper/internal/rediskv"
	"github.com/estatedesk/listingkeeper/internal/sqlite"
	"github.com/estatedesk/listingkeeper/internal/task"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// slotBackend is what the listing store and catalog watcher need from storage.
type slotBackend interface {
	listing.SlotStore
	listing.ChangeNotifier
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("LISTINGS_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.Storage.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	// The activity log always lives in sqlite; listing slots follow the configured backend.
	db, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slots, closeSlots, err := openSlots(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("failed to open listing storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeSlots()

	activityRepo := sqlite.NewActivityRepository(db)
	activitySvc := activity.NewService(activityRepo, logger)

	encoder := imaging.NewEncoder(logger)
	encoder.MaxDimension = cfg.Images.MaxDimension
	encoder.Quality = cfg.Images.Quality
	encoder.ReencodeThreshold = cfg.Images.ReencodeThreshold

	store := listing.NewStore(slots, logger, listing.StoreOptions{Key: cfg.Storage.SlotKey})
	catalog := listing.NewCatalog(store, logger, time.Now)
	listingSvc := listing.NewService(catalog, encoder, activitySvc, logger)

	if _, err := catalog.Reload(ctx); err != nil {
		// Keep serving: tools report STORAGE_UNAVAILABLE until the slot is readable.
		logger.Warn("initial listing load failed", "error", err)
	}

	go func() {
		if err := catalog.Watch(ctx, slots); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("listing watcher stopped", "error", err)
		}
	}()

	sweeper := task.NewSweepTask(listingSvc, cfg.Lifecycle.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start sweep task", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		sweeper.Stop(stopCtx)
	}()

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Listings: listingSvc,
			Activity: activitySvc,
		},
		TransportMode: cfg.Transport.Mode,
		ToolTimeout:   time.Minute,
		Logger:        logger,
	})

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, cancel, logger, mcpServer)
	} else {
		runHTTPMode(logger, mcpServer, cfg.Server.Host, cfg.Server.Port)
	}
}

func openSlots(ctx context.Context, cfg config.Config, db *sqlite.DB, logger *slog.Logger) (slotBackend, func(), error) {
	switch cfg.Storage.Backend {
	case "redis":
		client := rediskv.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		store := rediskv.New(client, rediskv.Options{
			Namespace:  cfg.Redis.Namespace,
			QuotaBytes: cfg.Storage.QuotaBytes,
		})
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("listing storage ready", "backend", "redis", "addr", cfg.Redis.Addr)
		return store, func() { _ = client.Close() }, nil
	default:
		repo := sqlite.NewSlotRepository(db,
			sqlite.WithQuota(cfg.Storage.QuotaBytes),
			sqlite.WithPollInterval(cfg.Storage.PollInterval),
			sqlite.WithLogger(logger),
		)
		logger.Info("listing storage ready", "backend", "sqlite", "path", cfg.Storage.Path)
		return repo, func() {}, nil
	}
}

func runStdioMode(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport")

	transport := &sdkmcp.StdioTransport{}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-stop:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", "error", err)
	}
}

func runHTTPMode(logger *slog.Logger, mcpServer *sdkmcp.Server, host string, port int) {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terminus-realm/zoneserver/config"
	"terminus-realm/zoneserver/handlers"
	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/persistence"
	"terminus-realm/zoneserver/services"
	"terminus-realm/zoneserver/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize persistence: %v", err)
	}
	defer db.Close()
	logger.Info("persistence initialized", "type", cfg.DBType)

	tel, err := telemetry.Setup(ctx, telemetry.Config{Exporter: cfg.MetricsExporter, Version: version})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	boards, err := loadBoards(cfg, db, logger)
	if err != nil {
		log.Fatalf("Failed to load boards: %v", err)
	}

	opts := []services.ZoneServiceOption{
		services.WithCurve(services.ExponentialCurve{
			Base:  cfg.ConnectionBase,
			Decay: cfg.ConnectionDecay,
			Floor: cfg.ConnectionFloor,
		}),
		services.WithGridCache(cfg.GridCache),
		services.WithPersistence(db, cfg.PersistZones),
		services.WithBoardRegistry(boards),
		services.WithLogger(logger),
		services.WithMeter(tel.Meter()),
	}
	if seed, ok := cfg.Seed(); ok {
		opts = append(opts, services.WithWorldSeed(seed))
		logger.Info("world seed set", "seed", seed)
	}
	zones, err := services.NewZoneService(opts...)
	if err != nil {
		log.Fatalf("Failed to initialize zone service: %v", err)
	}

	server := &handlers.Server{
		Players: services.NewPlayerService(zones, db, logger),
		Zones:   zones,
		Clients: handlers.NewClientManager(logger),
		Logger:  logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", handlers.WebsocketHandler(ctx, server))
	if h := tel.Handler(); h != nil {
		mux.Handle("/metrics", h)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := zones.Flush(shutdownCtx); err != nil {
		logger.Error("failed to flush zones", "error", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
}

func openStorage(cfg config.Config) (persistence.Storage, error) {
	switch cfg.DBType {
	case config.DBTypePostgres:
		return persistence.NewPostgresStore(cfg.DatabaseURL)
	case config.DBTypeSQLite:
		return persistence.NewSQLiteStore(cfg.SQLitePath)
	default:
		return persistence.NewJSONStore(cfg.DBFile)
	}
}

// loadBoards registers stored boards, then boards from BOARDS_FILE. File
// boards are saved so later runs find them in storage.
func loadBoards(cfg config.Config, db persistence.Storage, logger *slog.Logger) (*services.BoardRegistry, error) {
	registry := services.NewBoardRegistry()

	stored, err := db.LoadBoards()
	if err != nil {
		return nil, err
	}
	registry.Load(stored)

	if cfg.BoardsFile != "" {
		fromFile, err := persistence.LoadBoardsFile(cfg.BoardsFile)
		if err != nil {
			return nil, err
		}
		for _, b := range fromFile {
			if err := b.Validate(); err != nil {
				logger.Warn("skipping malformed board", "zone", b.Key.String(), "error", err)
				continue
			}
			registry.Register(b)
			if err := db.SaveBoard(b); err != nil {
				logger.Warn("failed to store board", "zone", b.Key.String(), "error", err)
			}
		}
	}

	logger.Info("boards loaded", "count", registry.Len(), "home_override", registry.HasBoard(models.ZoneKey{Dimension: models.Surface}))
	return registry, nil
}

// Command webtexd serves web-view surfaces as pull-based textures.
//
// Usage:
//
//	webtexd                          # defaults, no transport enabled
//	webtexd -config webtex.yaml      # HTTP and/or MCP per config
//	webtexd -mcp                     # MCP over stdio
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/config"
	"github.com/hazyhaar/webtex/dbopen"
	"github.com/hazyhaar/webtex/httpapi"
	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/internal/browser"
	"github.com/hazyhaar/webtex/kit"
	"github.com/hazyhaar/webtex/mainloop"
	"github.com/hazyhaar/webtex/observability"
	"github.com/hazyhaar/webtex/plugin"
	"github.com/hazyhaar/webtex/texture"
	"github.com/hazyhaar/webtex/webview"
)

const daemonName = "webtexd"

func main() {
	configPath := flag.String("config", "", "path to webtex.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	mcpStdio := flag.Bool("mcp", false, "serve MCP over stdio")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			logger.Error("webtexd: config", "error", err)
			os.Exit(1)
		}
	}
	if *mcpStdio {
		cfg.MCP.Stdio = true
	}

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("webtexd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	db, err := openEventDB(ctx, logger, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	events := observability.NewEventLogger(db, observability.WithEventLogger(logger))
	defer events.Close()
	metrics := observability.NewMetricsManager(db, 100, 5*time.Second)
	defer metrics.Close()

	// The loop outlives ctx so shutdown can still dispose surfaces on it.
	lp := mainloop.New(mainloop.WithLogger(logger))
	go lp.Run(context.Background())
	defer lp.Stop()

	textures := texture.NewRegistry(texture.WithLogger(logger))
	defer textures.Close()

	router := channel.New(
		channel.WithLogger(logger),
		// Recovery sits inside OnLoop so it runs on the loop goroutine.
		channel.WithMiddleware(
			channel.Logging(logger),
			metrics.ChannelMiddleware(),
			channel.OnLoop(lp),
			channel.Recovery(logger),
		),
	)

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		Stealth:          cfg.Browser.Stealth,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		SnapshotTimeout:  cfg.Browser.SnapshotTimeout,
		Logger:           logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	placeholder := cfg.PlaceholderColor()
	registry := webview.NewRegistry(webview.Options{
		Engine:           mgr,
		Loop:             lp,
		Router:           router,
		Textures:         textures,
		Events:           events,
		Width:            cfg.Viewport.Width,
		Height:           cfg.Viewport.Height,
		PlaceholderColor: &placeholder,
		Logger:           logger,
	})
	plug := plugin.New(router, registry, plugin.WithLogger(logger))
	defer func() {
		// Surfaces are loop-owned: dispose them there, then let
		// in-flight snapshots drain before Chrome goes away.
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Invoke(closeCtx, func() { _ = plug.Close() }); err != nil {
			logger.Warn("webtexd: close plugin", "error", err)
		}
		if err := registry.Wait(closeCtx); err != nil {
			logger.Warn("webtexd: snapshot drain", "error", err)
		}
	}()

	if cfg.Heartbeat.Interval > 0 {
		hw := observability.NewHeartbeatWriter(db, daemonName, cfg.Heartbeat.Interval, observability.Gauges{
			Surfaces: registry.Len,
			Textures: textures.Len,
		})
		hw.Start(ctx)
		defer hw.Stop()
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		r := chi.NewRouter()
		for _, mw := range httpapi.DefaultStack(logger, idgen.Request) {
			r.Use(mw)
		}
		httpapi.New(router, textures, httpapi.WithLogger(logger)).RegisterHTTP(r)
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("webtexd: http listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("webtexd: http", "error", err)
			}
		}()
	}

	if cfg.MCP.Stdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: daemonName, Version: "1.0.0"}, nil)
		kit.RegisterInvokeTool(mcpSrv, router, idgen.Request)
		go func() {
			logger.Info("webtexd: mcp on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("webtexd: mcp", "error", err)
			}
		}()
	}

	logger.Info("webtexd: ready",
		"viewport", fmt.Sprintf("%dx%d", cfg.Viewport.Width, cfg.Viewport.Height),
		"channels", router.Names())

	<-ctx.Done()
	logger.Info("webtexd: shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("webtexd: http shutdown", "error", err)
		}
	}
	return nil
}

// openEventDB opens the event database and prunes rows past retention.
func openEventDB(ctx context.Context, logger *slog.Logger, cfg config.DBConfig) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = dbopen.Memory
	}
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	ret := observability.RetentionConfig{
		EventsDays:     cfg.RetentionDays,
		MetricsDays:    cfg.RetentionDays,
		HeartbeatsDays: cfg.RetentionDays,
	}
	if err := observability.Cleanup(ctx, db, ret); err != nil {
		logger.Warn("webtexd: retention cleanup", "error", err)
	}
	return db, nil
}

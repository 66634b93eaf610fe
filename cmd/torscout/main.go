// CLAUDE:SUMMARY CLI entry point for torscout: MCP server over stdio or streamable HTTP, plus a one-shot -q search mode.
// Command torscout serves the torrent_search MCP tool.
//
// Usage:
//
//	torscout                               # MCP over stdio, built-in sites
//	torscout -config torscout.yaml         # sites, pool and timeouts from YAML
//	torscout -transport http -addr :8765   # MCP over streamable HTTP at /mcp
//	torscout -q "debian 12"                # one search, ResultSet JSON on stdout
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hazyhaar/torscout/scout"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to torscout.yaml config file")
	transport := flag.String("transport", "", "MCP transport: stdio or http (overrides config)")
	addr := flag.String("addr", "", "listen address for -transport http (overrides config)")
	query := flag.String("q", "", "run one search, print the ResultSet and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "also write logs to this file, rotated")
	flag.Parse()

	logger := newLogger(*logLevel, *logFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("torscout: config", "error", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := run(ctx, logger, cfg, *query); err != nil {
		logger.Error("torscout: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(levelName, file string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout carries the MCP stdio stream, logs never go there.
	var w io.Writer = os.Stderr
	if file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads path when given, then applies TORSCOUT_* environment
// overrides.
func loadConfig(path string) (*scout.Config, error) {
	cfg := scout.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = scout.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("TORSCOUT_STEALTH"); v != "" {
		cfg.Browser.Stealth = v
	}
	if v := os.Getenv("TORSCOUT_CHROME_URL"); v != "" {
		cfg.Browser.Remote = v
	}
	if v := os.Getenv("TORSCOUT_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("TORSCOUT_POOL_SIZE: %q is not a positive integer", v)
		}
		cfg.Pool.Size = n
	}
	if v := os.Getenv("TORSCOUT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *scout.Config, query string) error {
	svc, err := scout.Open(ctx, cfg, scout.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer svc.Close()

	if query != "" {
		return runQuery(ctx, svc, query)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "torscout", Version: version}, nil)
	svc.RegisterMCP(srv)

	switch cfg.Server.Transport {
	case "stdio":
		logger.Info("torscout: serving MCP on stdio")
		err := srv.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	case "http":
		return serveHTTP(ctx, logger, svc, srv, cfg.Server.Addr)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", cfg.Server.Transport)
	}
}

func runQuery(ctx context.Context, svc *scout.Service, text string) error {
	rs, err := svc.Search(ctx, scout.Query{Text: text})
	if rs == nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(rs); encErr != nil {
		return encErr
	}
	return err
}

func serveHTTP(ctx context.Context, logger *slog.Logger, svc *scout.Service, srv *mcp.Server, addr string) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok", "version": version})
	})
	r.Get("/pool", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, svc.PoolStats())
	})
	r.Get("/sources", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"sources": svc.Sources(), "pool": svc.PoolStats()})
	})
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

	hs := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("torscout: serving MCP over HTTP", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("torscout: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

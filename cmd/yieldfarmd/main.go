package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yieldfarm/config"
	"yieldfarm/core/events"
	"yieldfarm/ledger"
	"yieldfarm/native/farming"
	"yieldfarm/observability"
	"yieldfarm/observability/logging"
	"yieldfarm/observability/otel"
	"yieldfarm/rpc"
	"yieldfarm/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	env := flag.String("env", "", "deployment environment tag for logs and telemetry")
	flag.Parse()

	logger := logging.Setup("yieldfarmd", *env)
	if err := run(*configPath, *env, logger); err != nil {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, env string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "yieldfarmd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	authority, err := parseAddress(cfg.AuthorityAddress)
	if err != nil {
		return fmt.Errorf("parse authority address: %w", err)
	}
	vault, err := parseAddress(cfg.VaultAddress)
	if err != nil {
		return fmt.Errorf("parse vault address: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.Open(filepath.Join(cfg.DataDir, "farm.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	tokens := ledger.NewRegistry()
	var reward ledger.Client
	for _, tokenCfg := range cfg.Tokens {
		token := ledger.NewToken(tokenCfg.Symbol, vault)
		if supply := strings.TrimSpace(tokenCfg.Supply); supply != "" {
			amount, ok := new(big.Int).SetString(supply, 10)
			if !ok {
				return fmt.Errorf("token %s: malformed supply %q", tokenCfg.Symbol, supply)
			}
			token.Mint(vault, amount)
		}
		tokens.Register(tokenCfg.Symbol, token)
		if strings.EqualFold(tokenCfg.Symbol, cfg.RewardToken) {
			reward = token
		}
	}
	if reward == nil {
		return fmt.Errorf("reward token %s not configured", cfg.RewardToken)
	}

	auth := farming.NewSingleAuthority(authority)
	emitter := observability.NewRecorder(&eventLogger{log: logger})

	registry := farming.NewRegistry(store, auth)
	registry.SetEmitter(emitter)
	engine := farming.NewEngine(store, tokens, reward, vault, auth)
	engine.SetEmitter(emitter)

	limiter := rpc.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	server := rpc.New(registry, engine, logger, rpc.NewBearerAuth(cfg.AdminToken), limiter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// eventLogger forwards ledger events to the structured log.
type eventLogger struct {
	log *slog.Logger
}

func (l *eventLogger) Emit(event events.Event) {
	if l == nil || l.log == nil || event == nil {
		return
	}
	attrs := make([]slog.Attr, 0, 8)
	for key, value := range event.Attributes() {
		attrs = append(attrs, slog.String(key, value))
	}
	l.log.LogAttrs(context.Background(), slog.LevelInfo, event.EventType(), attrs...)
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

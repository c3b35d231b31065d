package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantex/mexc-stream/internal/capture"
	"github.com/quantex/mexc-stream/internal/config"
	"github.com/quantex/mexc-stream/internal/connection"
	"github.com/quantex/mexc-stream/internal/database"
	"github.com/quantex/mexc-stream/internal/exchange"
	"github.com/quantex/mexc-stream/internal/model"
	"github.com/quantex/mexc-stream/internal/rest"
	"github.com/quantex/mexc-stream/internal/userdata"
	"github.com/quantex/mexc-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rest_url", cfg.API.RestURL,
		"ws_url", cfg.API.WSURL,
		"symbols", len(cfg.Symbols),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// REST client
	restClient := rest.NewClient(
		cfg.API.RestURL,
		cfg.API.APIKey,
		cfg.API.SecretKey,
		rest.WithLogger(logger),
		rest.WithTimeout(cfg.API.Timeout),
		rest.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Capture store (optional)
	var store *capture.Store
	if cfg.Capture.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store = capture.NewStore(capture.Config{
			BatchSize:     cfg.Capture.BatchSize,
			FlushInterval: cfg.Capture.FlushInterval,
		}, pool, logger)

		if err := store.Start(ctx); err != nil {
			logger.Error("failed to start capture store", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			store.Stop(stopCtx)
		}()
	}

	connCfg := socketConfig(cfg.Stream)

	// User data stream (optional)
	var user *userdata.Manager
	if cfg.UserData.Enabled {
		user = userdata.NewManager(userdata.Config{
			WSBaseURL:            cfg.API.WSURL,
			KeepAliveInterval:    cfg.UserData.KeepAliveInterval,
			HealthCheckInterval:  cfg.Stream.HealthCheckInterval,
			MaxReconnectInterval: cfg.Stream.MaxReconnectInterval,
			Connection:           connCfg,
		}, restClient, logger)
	}

	// Connector
	connectorCfg := exchange.Config{
		WSURL:                cfg.API.WSURL,
		Interval:             cfg.Stream.Interval,
		HealthCheckInterval:  cfg.Stream.HealthCheckInterval,
		MaxReconnectInterval: cfg.Stream.MaxReconnectInterval,
		Connection:           connCfg,
	}
	if store != nil {
		connectorCfg.OnEvent = store.Observe
	}
	connector := exchange.NewConnector(connectorCfg, restClient, user, logger)

	if err := connector.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer connector.Disconnect()

	if cfg.UserData.Enabled {
		if err := connector.ConnectUserDataStream(ctx); err != nil {
			logger.Error("failed to connect user data stream", "error", err)
			os.Exit(1)
		}

		if _, err := connector.SubscribeUserOrders(func(o model.OrderUpdate) {
			logger.Debug("order update",
				"order_id", o.OrderID,
				"symbol", o.Symbol,
				"status", o.Status,
			)
		}); err != nil {
			logger.Error("failed to subscribe order updates", "error", err)
			os.Exit(1)
		}
	}

	// Public subscriptions per configured symbol
	for _, symbol := range cfg.Symbols {
		sym := symbol
		if _, err := connector.SubscribeTicker(sym, func(u model.TickerUpdate) {
			logger.Debug("ticker", "symbol", u.Symbol, "bid", u.Bid, "ask", u.Ask)
		}); err != nil {
			logger.Error("failed to subscribe ticker", "symbol", sym, "error", err)
			os.Exit(1)
		}
		if _, err := connector.SubscribeTrades(sym, func(trades []model.TradeUpdate) {
			for _, tr := range trades {
				logger.Debug("trade", "symbol", tr.Symbol, "price", tr.Price, "qty", tr.Qty, "side", tr.Side)
			}
		}); err != nil {
			logger.Error("failed to subscribe trades", "symbol", sym, "error", err)
			os.Exit(1)
		}
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, connector, store),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	if err := g.Wait(); err != nil {
		logger.Error("streamer error", "error", err)
	}

	logger.Info("streamer stopped")
}

// socketConfig maps stream settings onto the connection template.
func socketConfig(s config.StreamConfig) connection.Config {
	cc := connection.DefaultConfig()
	cc.HandshakeTimeout = s.HandshakeTimeout
	cc.WriteTimeout = s.WriteTimeout
	cc.PingInterval = s.PingInterval
	cc.PongTimeout = s.PongTimeout
	return cc
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, connector *exchange.Connector, store *capture.Store) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		health.Components["market_data"] = connector.WebSocketStatus().String()
		if !connector.IsConnected() {
			health.Status = "unhealthy"
		}

		if connector.IsUserDataStreamConnected() {
			health.Components["user_data"] = "connected"
		}

		if store != nil {
			stats := store.Stats()
			health.Components["capture"] = map[string]int64{
				"inserts":   stats.Inserts,
				"conflicts": stats.Conflicts,
				"errors":    stats.Errors,
				"flushes":   stats.Flushes,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

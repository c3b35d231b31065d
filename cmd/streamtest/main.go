// streamtest connects to the MEXC WebSocket and prints decoded events to
// the console.
// Usage: go run ./cmd/streamtest --config configs/streamer.local.yaml
//
// Environment variables (only needed with --user-data):
//
//	MEXC_API_KEY    - API key from the MEXC dashboard
//	MEXC_SECRET_KEY - HMAC secret for signed endpoints
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantex/mexc-stream/internal/config"
	"github.com/quantex/mexc-stream/internal/connection"
	"github.com/quantex/mexc-stream/internal/exchange"
	"github.com/quantex/mexc-stream/internal/model"
	"github.com/quantex/mexc-stream/internal/rest"
	"github.com/quantex/mexc-stream/internal/userdata"
)

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	withUserData := flag.Bool("user-data", false, "also stream private order updates")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	restClient := rest.NewClient(
		cfg.API.RestURL,
		cfg.API.APIKey,
		cfg.API.SecretKey,
		rest.WithLogger(logger),
	)

	connCfg := connection.DefaultConfig()
	connCfg.PingInterval = cfg.Stream.PingInterval
	connCfg.PongTimeout = cfg.Stream.PongTimeout

	var user *userdata.Manager
	if *withUserData {
		if cfg.API.APIKey == "" || cfg.API.SecretKey == "" {
			logger.Error("API credentials required for user data",
				"api_key_set", cfg.API.APIKey != "",
				"secret_key_set", cfg.API.SecretKey != "",
			)
			logger.Info("Set environment variables: MEXC_API_KEY and MEXC_SECRET_KEY")
			os.Exit(1)
		}
		user = userdata.NewManager(userdata.Config{
			WSBaseURL:  cfg.API.WSURL,
			Connection: connCfg,
		}, restClient, logger)
	}

	connector := exchange.NewConnector(exchange.Config{
		WSURL:      cfg.API.WSURL,
		Interval:   cfg.Stream.Interval,
		Connection: connCfg,
	}, restClient, user, logger)

	logger.Info("connecting", "ws_url", cfg.API.WSURL)
	if err := connector.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer connector.Disconnect()

	if *withUserData {
		if err := connector.ConnectUserDataStream(ctx); err != nil {
			logger.Error("failed to connect user data stream", "error", err)
			os.Exit(1)
		}
		connector.SubscribeUserOrders(func(o model.OrderUpdate) {
			printOrder(o, *verbose)
		})
	}

	for _, symbol := range cfg.Symbols {
		sym := symbol
		if _, err := connector.SubscribeTicker(sym, func(u model.TickerUpdate) {
			printTicker(u, *verbose)
		}); err != nil {
			logger.Error("failed to subscribe ticker", "symbol", sym, "error", err)
			os.Exit(1)
		}
		if _, err := connector.SubscribeTrades(sym, func(trades []model.TradeUpdate) {
			for _, tr := range trades {
				printTrade(tr, *verbose)
			}
		}); err != nil {
			logger.Error("failed to subscribe trades", "symbol", sym, "error", err)
			os.Exit(1)
		}
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"market_data", connector.WebSocketStatus(),
					"user_data_connected", connector.IsUserDataStreamConnected(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop",
		"symbols", cfg.Symbols,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutdown complete")
}

func printTicker(u model.TickerUpdate, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(u, "", "  ")
		fmt.Printf("[TICKER] %s\n", data)
		return
	}
	fmt.Printf("[TICKER] symbol=%s bid=%s ask=%s bid_qty=%s ask_qty=%s\n",
		u.Symbol, u.Bid, u.Ask, u.BidQty, u.AskQty)
}

func printTrade(tr model.TradeUpdate, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(tr, "", "  ")
		fmt.Printf("[TRADE] %s\n", data)
		return
	}
	fmt.Printf("[TRADE] symbol=%s price=%s qty=%s side=%s\n",
		tr.Symbol, tr.Price, tr.Qty, tr.Side)
}

func printOrder(o model.OrderUpdate, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(o, "", "  ")
		fmt.Printf("[ORDER] %s\n", data)
		return
	}
	fmt.Printf("[ORDER] id=%s symbol=%s status=%s filled=%s/%s\n",
		o.OrderID, o.Symbol, o.Status, o.FilledQty, o.Qty)
}

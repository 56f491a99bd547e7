// papertrader - a paper-trading simulator with a random-walk market.
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"papertrader/config"
	"papertrader/internal/handlers"
	"papertrader/internal/observability"
	"papertrader/internal/services"
)

var (
	version = "0.1.0"
	envFile string
)

const (
	usersCollection   = "users"
	journalCollection = "paper_transactions"
	janitorInterval   = time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "papertrader",
		Short:        "Paper-trading simulator",
		SilenceUsage: true,
		Long: `papertrader simulates a small stock market with random-walk prices and
lets users practise trading against it with virtual cash.`,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file to load before reading the environment")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "papertrader version %s\n", version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.UsingDevSecret() {
		logger.Warn("JWT_SECRET is not set; using the development secret")
	}

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}
	market := services.NewMarketDataService(cfg.AlphaVantageKey, cfg.AlphaVantageURL, logger)
	if market.Enabled() {
		seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		catalog = market.SeedCatalog(seedCtx, catalog)
		cancel()
	}

	metrics := observability.NewMetrics("papertrader")

	var (
		users   services.UserRepository
		journal services.TransactionJournal
	)
	if cfg.MongoURI != "" {
		db, err := config.ConnectDB(ctx, cfg.MongoURI, cfg.DatabaseName, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Disconnect(); err != nil {
				logger.Error("mongo disconnect", zap.Error(err))
			}
		}()
		mj := services.NewMongoJournal(db.Collection(journalCollection))
		if err := mj.EnsureIndexes(ctx); err != nil {
			logger.Warn("journal index creation failed", zap.Error(err))
		}
		users = services.NewMongoUserRepository(db.Collection(usersCollection))
		journal = mj
	} else {
		logger.Warn("MONGODB_URI is not set; users and journal are kept in memory")
		users = services.NewMemoryUserRepository()
		journal = services.NewMemoryJournal()
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := services.NewWebSocketHub(logger, metrics)
	go hub.Run(hubCtx)

	sessions, err := services.NewSessionService(services.SessionOptions{
		Catalog:       catalog,
		EngineOptions: cfg.EngineOptions(),
		IdleTTL:       cfg.SessionIdleTTL,
		AutoStart:     true,
	}, journal, hub, metrics, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()
	go sessions.RunJanitor(ctx, janitorInterval)

	authService := services.NewAuthService(users, logger)
	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:    handlers.NewAuthHandler(authService, cfg.JWTSecret, cfg.JWTTTL),
		Orders:  handlers.NewOrderHandler(sessions),
		Market:  handlers.NewMarketHandler(sessions, catalog),
		WS:      handlers.NewWebSocketHandler(hub, sessions, logger),
		Metrics: metrics.Handler(),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("papertrader listening",
			zap.String("addr", srv.Addr),
			zap.Int("instruments", len(catalog)),
			zap.Duration("tick_interval", cfg.TickInterval))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	return nil
}

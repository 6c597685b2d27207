// Package app wires the signal store, pattern evaluation, strategy lifecycle
// and order execution together and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"moomoo-strategy-bot/config"
	"moomoo-strategy-bot/database"
	"moomoo-strategy-bot/execution"
	"moomoo-strategy-bot/lifecycle"
	"moomoo-strategy-bot/notifications"
	"moomoo-strategy-bot/oracle"
	"moomoo-strategy-bot/patterns"
	"moomoo-strategy-bot/signalstore"
	"moomoo-strategy-bot/venue"
)

// App represents the main application
type App struct {
	config   *config.Config
	store    *signalstore.Store
	db       *database.Database
	repo     *database.StrategyRepository
	analytic *database.Analytics
	webhooks *notifications.Manager
	manager  *lifecycle.Manager
	accounts *execution.Registry
	streams  []*venue.OrderStream
	reporter *PerformanceReporter
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:   cfg,
		accounts: execution.NewRegistry(),
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	store, err := signalstore.New(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	a.store = store

	// 2. Database Connection
	fmt.Println("🗄️  Connecting to database...")
	db, err := database.Connect(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	a.repo = database.NewStrategyRepository(db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	analytic, err := database.NewAnalytics(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
		a.config.DatabaseName,
	)
	if err != nil {
		return fmt.Errorf("analytics connection failed: %w", err)
	}
	a.analytic = analytic

	// 3. Webhook Manager
	a.webhooks = notifications.NewManager(a.config.Webhooks)

	// 4. Pattern evaluation and lifecycle manager
	oracleClient := oracle.NewClient(a.config.Oracle.Endpoint, a.config.Oracle.APIKey, a.config.Oracle.Timeout)
	registry := patterns.DefaultRegistry(a.store)
	blender := patterns.NewBlender(oracleClient)
	evaluator := patterns.NewEvaluator(registry, blender)

	a.manager = lifecycle.NewManager(a.store, evaluator, a.repo, a.webhooks, lifecycle.Config{
		EntryProbability:      a.config.Lifecycle.EntryProbability,
		TargetATRMultiple:     a.config.Lifecycle.TargetATRMultiple,
		TargetFallbackPercent: a.config.Lifecycle.TargetFallbackPercent,
		StopVWAPATRMultiple:   a.config.Lifecycle.StopVWAPATRMultiple,
		StopATRMultiple:       a.config.Lifecycle.StopATRMultiple,
		TapeWindow:            time.Duration(a.config.Lifecycle.TapeWindowSeconds) * time.Second,
	})

	// Setup WaitGroup for goroutines
	var wg sync.WaitGroup

	// 5. Trading accounts and order streams
	if err := a.startAccounts(ctx, &wg); err != nil {
		return err
	}

	// 6. Per-ticker evaluation loops
	engine := NewEngine(a.store, a.manager, a.config.Tickers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	// 7. Trade signal bridge: entry signals trigger buys
	bridge := NewSignalBridge(a.store, a.accounts)
	wg.Add(1)
	go func() {
		defer wg.Done()
		bridge.Run(ctx)
	}()

	// 8. Periodic pattern performance reporting
	a.reporter = NewPerformanceReporter(a.analytic)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reporter.Run(ctx)
	}()

	log.Printf("🚀 Strategy engine running for %d tickers", len(a.config.Tickers))

	// 9. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// startAccounts unlocks each configured trading account and connects its
// order push stream.
func (a *App) startAccounts(ctx context.Context, wg *sync.WaitGroup) error {
	cfg := execution.DefaultConfig()
	cfg.TradingEnabled = a.config.Execution.TradingEnabled
	cfg.TradingAmount = a.config.Execution.TradingAmount
	cfg.ProfitATRMultiple = a.config.Execution.ProfitATRMultiple
	cfg.ProfitMinPercent = a.config.Execution.ProfitMinPercent
	cfg.TrailStrongADX = a.config.Execution.TrailStrongADX
	cfg.TrailWeakADX = a.config.Execution.TrailWeakADX
	cfg.CircuitBreakerRatio = a.config.Execution.CircuitBreakerRatio

	for _, acct := range a.config.Venue.Accounts {
		client := venue.NewClient(a.config.Venue.BaseURL, acct.ID, 0)
		account := execution.NewAccount(acct.ID, client, a.store, cfg)

		if err := account.Unlock(ctx, acct.TradePassword); err != nil {
			return fmt.Errorf("failed to unlock account %s: %w", acct.ID, err)
		}
		a.accounts.Add(account)

		stream := venue.NewOrderStream(a.config.Venue.WSURL, acct.ID, func(accountID string, order venue.Order) {
			if target, ok := a.accounts.Get(accountID); ok {
				target.HandleOrderPush(ctx, order)
			}
		})
		if err := stream.Connect(); err != nil {
			return fmt.Errorf("order stream connection failed for %s: %w", acct.ID, err)
		}
		stream.StartPing(25 * time.Second)
		a.streams = append(a.streams, stream)

		wg.Add(2)
		go func(s *venue.OrderStream) {
			defer wg.Done()
			s.Run(ctx)
		}(stream)
		go func(s *venue.OrderStream) {
			defer wg.Done()
			s.RunHealthMonitor(ctx)
		}(stream)

		log.Printf("✅ Account %s unlocked and order stream connected", acct.ID)
	}
	return nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		// Let in-flight order monitors and webhook deliveries drain
		for _, account := range a.accounts.All() {
			account.Wait()
		}
		if a.webhooks != nil {
			a.webhooks.Wait()
		}

		// Close order streams
		for _, stream := range a.streams {
			fmt.Println("📡 Closing order stream...")
			if err := stream.Close(); err != nil {
				log.Printf("Error closing order stream: %v", err)
			}
		}

		// Close database connections
		if a.analytic != nil {
			if err := a.analytic.Close(); err != nil {
				log.Printf("Error closing analytics: %v", err)
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		// Close Redis connection
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/speedrun-hq/railsettle/pkg/aggregator"
	"github.com/speedrun-hq/railsettle/pkg/api"
	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/circuitbreaker"
	"github.com/speedrun-hq/railsettle/pkg/config"
	"github.com/speedrun-hq/railsettle/pkg/coordinator"
	"github.com/speedrun-hq/railsettle/pkg/events"
	"github.com/speedrun-hq/railsettle/pkg/health"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/oracle"
	"github.com/speedrun-hq/railsettle/pkg/taskstore"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, httpLog := newLoggers(cfg.LoggerConfig)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cfg, log, httpLog); err != nil {
		log.Error("Service stopped: %v", err)
		os.Exit(1)
	}
	log.Info("Service stopped")
}

// newLoggers builds the service logger and the logrus logger used for HTTP access logs
func newLoggers(cfg config.LoggerConfig) (logger.Logger, *logrus.Logger) {
	if cfg.Format == "json" {
		l := logger.NewLogrusLogger(os.Stdout, cfg.Level)
		return l, l.Logrus()
	}
	httpLog := logrus.New()
	httpLog.SetOutput(os.Stdout)
	httpLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: !cfg.Coloring})
	if cfg.Level == logger.DebugLevel {
		httpLog.SetLevel(logrus.DebugLevel)
	}
	return logger.NewStdLogger(cfg.Coloring, cfg.Level), httpLog
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, httpLog *logrus.Logger) error {
	store, closeStore, err := openLedgerStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.NATSURL != "" {
		nats, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, log)
		if err != nil {
			return err
		}
		publisher = nats
		log.Info("Publishing transition events to NATS under %s.*", cfg.Events.SubjectPrefix)
	}
	defer publisher.Close()

	l := ledger.New(store,
		ledger.WithObserver(events.Observer(publisher, log)),
		ledger.WithLogger(log),
	)

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		log,
	)

	var (
		collaborator chain.Collaborator
		client       *chain.Client
	)
	if cfg.ChainConfigured() {
		client, err = chain.Dial(ctx, chain.ClientConfig{
			ChainID:       cfg.Chain.ChainID,
			RPCURL:        cfg.Chain.RPCURL,
			ZKRailAddress: cfg.Chain.ZKRailAddress,
			PrivateKey:    cfg.Chain.PrivateKey,
			GasMultiplier: cfg.Chain.GasMultiplier,
			BondBps:       cfg.Chain.BondBps,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to chain %d: %w", cfg.Chain.ChainID, err)
		}
		defer client.Close()
		collaborator = chain.NewGuarded(client, breaker, log)
		if !client.CanTransact() {
			log.Notice("No operator key configured, operator endpoints are disabled and only recorded transitions are accepted")
		}
	} else {
		log.Notice("No chain configured, recorded transactions are not verified")
	}

	poll := coordinator.PollConfig{MaxAttempts: cfg.Poll.MaxAttempts, Interval: cfg.Poll.Interval}
	commitment := coordinator.NewCommitment(l, collaborator, poll, log)
	settlement := coordinator.NewSettlement(l, collaborator, poll, cfg.EmergencyPeriod, log)

	tasks, taskPinger, closeTasks, err := openTaskStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeTasks()

	var source oracle.SolutionSource = l
	if cfg.AggregatorURL != "" {
		source = aggregator.New(cfg.AggregatorURL, log)
		log.Info("Oracle reads intents from aggregator %s", cfg.AggregatorURL)
	}
	validator, err := oracle.New(tasks, source,
		oracle.WithFreshnessWindow(cfg.Oracle.FreshnessWindow),
		oracle.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to create oracle: %w", err)
	}

	deps := api.Deps{
		Ledger:      l,
		Commitment:  commitment,
		Settlement:  settlement,
		Executor:    oracle.NewExecutor(source, tasks, log),
		Oracle:      validator,
		RateLimiter: api.NewSolverRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Logger:      httpLog,
	}

	var committer *coordinator.AutoCommitter
	if cfg.Auction.AutoCommit && !cfg.ChainEnabled() {
		log.Notice("Auto-commit needs an operator key, intents are only committed through recorded accepts")
	}
	if cfg.Auction.AutoCommit && cfg.ChainEnabled() {
		committer = coordinator.NewAutoCommitter(commitment, breaker, cfg.Auction.Window, cfg.Auction.WorkerCount, log)
		committer.Start(ctx)
		deps.Queue = committer
		log.Info("Auto-commit enabled with %d workers and a %s auction window", cfg.Auction.WorkerCount, cfg.Auction.Window)
	}

	healthOpts := health.Options{
		Port:          cfg.MetricsPort,
		MetricsAPIKey: cfg.MetricsAPIKey,
		Ledger:        l,
		LedgerBackend: store.Backend(),
		TaskBackend:   tasks.Backend(),
		TaskStore:     taskPinger,
		ChainID:       cfg.Chain.ChainID,
		RPCURL:        cfg.Chain.RPCURL,
		ZKRailAddress: cfg.Chain.ZKRailAddress,
		Logger:        log,
	}
	if client != nil {
		healthOpts.Blocks = client
		healthOpts.Breaker = breaker
		healthOpts.Operator = client.CanTransact()
	}

	// either server failing stops the other
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		runErr error
	)
	serve := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errMu.Lock()
				if runErr == nil {
					runErr = fmt.Errorf("%s: %w", name, err)
				}
				errMu.Unlock()
				stop()
			}
		}()
	}

	serve("health server", func() error { return health.NewServer(healthOpts).Run(ctx) })
	serve("api server", func() error { return api.NewServer(deps).Run(ctx, ":"+cfg.APIPort) })

	log.Info("Settlement service started on port %s", cfg.APIPort)
	wg.Wait()
	if committer != nil {
		committer.Wait()
	}
	return runErr
}

func openLedgerStore(ctx context.Context, cfg *config.Config, log logger.Logger) (ledger.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Notice("DATABASE_URL not set, intents are kept in memory only")
		return ledger.NewMemoryStore(), func() {}, nil
	}
	store, err := ledger.OpenSQLStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create schema: %w", err)
	}
	log.Info("Ledger backed by Postgres")
	return store, func() { _ = store.Close() }, nil
}

func openTaskStore(ctx context.Context, cfg *config.Config, log logger.Logger) (taskstore.Store, health.Pinger, func(), error) {
	if cfg.RedisURL == "" {
		return taskstore.NewMemoryStore(), nil, func() {}, nil
	}
	store, err := taskstore.OpenRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("Execution tasks stored in Redis")
	return store, store, func() { _ = store.Close() }, nil
}

// Package main is the lendkit command line client: it connects a JSON-RPC
// wallet, reads lending positions and submits deposit transactions.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/archon-research/lendkit/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/lendkit/internal/adapters/outbound/leveldb"
	"github.com/archon-research/lendkit/internal/adapters/outbound/redis"
	"github.com/archon-research/lendkit/internal/adapters/outbound/rpcwallet"
	"github.com/archon-research/lendkit/internal/adapters/outbound/telemetry"
	"github.com/archon-research/lendkit/internal/application"
	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/chainconfig"
	"github.com/archon-research/lendkit/internal/pkg/env"
	"github.com/archon-research/lendkit/internal/ports/outbound"
	"github.com/archon-research/lendkit/internal/services/borrow_capacity"
	"github.com/archon-research/lendkit/internal/services/connection"
	"github.com/archon-research/lendkit/internal/services/position_reader"
	"github.com/archon-research/lendkit/internal/services/tx_submitter"
)

const usage = `usage: lendkit [flags] <command> [args]

commands:
  connect [-chain id]          connect the wallet (primary chain by default)
  disconnect                   forget the session
  status                       show the session and any pending action
  switch <chain id>            switch the wallet to another supported chain
  assets                       list deposit assets on the active chain
  strategies <asset>           list yield strategies accepting asset
  position <asset> [-strategy i]
  balance <asset>              balance and allowance
  max-borrow <asset> [amount]  borrow limit after depositing amount
  deposit <asset> <amount> [-strategy i] [-borrow amount|max] [-wait]

flags:
`

// newModal builds the wallet picker. The process-wide instance is used
// outside tests.
var newModal = connection.InitModal

// options are the global flags, each defaulting to an environment variable.
type options struct {
	chainConfig  string
	storePath    string
	redisAddr    string
	walletURL    string
	otlpEndpoint string
	traceStdout  bool
	pollInterval time.Duration
}

func parseOptions(args []string, stderr io.Writer) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("lendkit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.chainConfig, "chains", env.Get("CHAIN_CONFIG", ""), "YAML file overriding the chain registry")
	fs.StringVar(&opts.storePath, "store", env.Get("LENDKIT_STORE_PATH", leveldb.ConfigDefaults().Path), "LevelDB session directory")
	fs.StringVar(&opts.redisAddr, "redis", env.Get("REDIS_ADDR", ""), "Redis address; stores the session in Redis instead of LevelDB")
	fs.StringVar(&opts.walletURL, "wallet", env.Get("WALLET_RPC_URL", rpcwallet.ConfigDefaults().URL), "wallet JSON-RPC endpoint")
	fs.StringVar(&opts.otlpEndpoint, "otel", env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP gRPC collector endpoint")
	fs.BoolVar(&opts.traceStdout, "trace-stdout", env.GetBool("TRACE_STDOUT", false), "print spans to stderr")
	fs.DurationVar(&opts.pollInterval, "receipt-poll", env.GetDuration("RECEIPT_POLL_INTERVAL", tx_submitter.ConfigDefaults().ReceiptPollInterval), "receipt polling interval")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return opts, nil, errors.New("no command given")
	}
	return opts, fs.Args(), nil
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := env.NewLogger(stderr, slog.LevelWarn)
	slog.SetDefault(logger)

	opts, cmdArgs, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cli, cleanup, err := wire(ctx, opts, stdin, stderr, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer cleanup()

	cli.out = stdout
	if err := cli.dispatch(ctx, cmdArgs); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// wire builds the object graph. cleanup flushes telemetry and closes the
// session store.
func wire(ctx context.Context, opts options, stdin io.Reader, stderr io.Writer, logger *slog.Logger) (*cli, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*cli, func(), error) {
		cleanup()
		return nil, nil, err
	}

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  "lendkit",
		Environment:  env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint: opts.otlpEndpoint,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to init metrics: %w", err))
	}
	closers = append(closers, func() { flush(shutdownMetrics, logger) })

	tracerConfig := telemetry.TracerConfigDefaults()
	tracerConfig.OTLPEndpoint = opts.otlpEndpoint
	tracerConfig.Stdout = opts.traceStdout
	tracerConfig.Writer = stderr
	shutdownTracer, err := telemetry.InitTracer(ctx, tracerConfig)
	if err != nil {
		return fail(fmt.Errorf("failed to init tracer: %w", err))
	}
	closers = append(closers, func() { flush(shutdownTracer, logger) })

	metrics, err := telemetry.NewMetrics("github.com/archon-research/lendkit")
	if err != nil {
		return fail(fmt.Errorf("failed to create metrics: %w", err))
	}

	registry := entity.DefaultRegistry()
	if opts.chainConfig != "" {
		file, err := chainconfig.Load(opts.chainConfig)
		if err != nil {
			return fail(err)
		}
		if registry, err = file.Apply(registry); err != nil {
			return fail(fmt.Errorf("failed to apply chain config: %w", err))
		}
	}

	store, err := openStore(ctx, opts, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	})

	walletConfig := rpcwallet.ConfigDefaults()
	walletConfig.URL = opts.walletURL
	connector, err := rpcwallet.NewConnector(walletConfig, logger)
	if err != nil {
		return fail(err)
	}
	modal := newModal(store, stdinSelector(stdin, stderr), logger, connector)

	manager, err := connection.NewManager(connection.Config{
		Registry: registry,
		Store:    store,
		Dialer:   ethrpc.NewDialer(ethrpc.ConfigDefaults(), logger),
		Modal:    modal,
		Metrics:  metrics,
		Notify:   func(msg string) { fmt.Fprintln(stderr, "notice:", msg) },
		Logger:   logger,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() {
		// Leaves the persisted session in place for the next run.
		manager.Release()
	})

	reader, err := position_reader.NewService(position_reader.Config{Metrics: metrics, Logger: logger})
	if err != nil {
		return fail(err)
	}
	calc, err := borrow_capacity.NewCalculator(borrow_capacity.Config{Metrics: metrics, Logger: logger})
	if err != nil {
		return fail(err)
	}
	submitter, err := tx_submitter.NewService(tx_submitter.Config{
		Registry:            registry,
		ReceiptPollInterval: opts.pollInterval,
		Metrics:             metrics,
		Logger:              logger,
	})
	if err != nil {
		return fail(err)
	}

	app, err := application.NewLendingApp(application.LendingConfig{Registry: registry, Logger: logger}, manager, reader, calc, submitter)
	if err != nil {
		return fail(err)
	}

	return &cli{app: app, conn: manager, registry: registry, logger: logger}, cleanup, nil
}

func openStore(ctx context.Context, opts options, logger *slog.Logger) (outbound.SessionStore, error) {
	if opts.redisAddr != "" {
		cfg := redis.ConfigDefaults()
		cfg.Addr = opts.redisAddr
		cfg.Password = env.Get("REDIS_PASSWORD", "")
		cfg.DB = env.GetInt("REDIS_DB", cfg.DB)
		store, err := redis.NewSessionStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis session store: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
		}
		return store, nil
	}

	cfg := leveldb.ConfigDefaults()
	cfg.Path = opts.storePath
	store, err := leveldb.NewSessionStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

// stdinSelector prompts on stderr and reads the choice from stdin.
func stdinSelector(stdin io.Reader, stderr io.Writer) connection.Selector {
	scanner := bufio.NewScanner(stdin)
	return func(_ context.Context, ids []string) (string, error) {
		fmt.Fprintln(stderr, "Select a wallet:")
		for i, id := range ids {
			fmt.Fprintf(stderr, "  %d) %s\n", i+1, id)
		}
		fmt.Fprint(stderr, "> ")
		if !scanner.Scan() {
			return "", fmt.Errorf("%w: no wallet selected", entity.ErrUserRejected)
		}
		choice := strings.TrimSpace(scanner.Text())
		for i, id := range ids {
			if choice == id || choice == fmt.Sprint(i+1) {
				return id, nil
			}
		}
		return "", fmt.Errorf("unknown wallet %q", choice)
	}
}

func flush(shutdown func(context.Context) error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
}

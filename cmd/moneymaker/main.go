package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdielMag/MoneyMaker/config"
	"github.com/AdielMag/MoneyMaker/internal/adapters/cache"
	"github.com/AdielMag/MoneyMaker/internal/adapters/notify"
	"github.com/AdielMag/MoneyMaker/internal/adapters/polymarket"
	"github.com/AdielMag/MoneyMaker/internal/adapters/ranking"
	"github.com/AdielMag/MoneyMaker/internal/adapters/storage"
	"github.com/AdielMag/MoneyMaker/internal/application/trigger"
	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	workflow := flag.String("workflow", "", "run one workflow and exit: discovery|monitor")
	mode := flag.String("mode", "fake", "ledger mode: fake|real")
	serve := flag.Bool("serve", false, "start the HTTP trigger server")
	addr := flag.String("addr", "", "listen address for -serve (overrides config)")
	initLedger := flag.Bool("init", false, "create wallets and workflow states from config, then exit")
	report := flag.Bool("report", false, "print ledger report for -mode and workflow states")
	enable := flag.Bool("enable", false, "enable -workflow for -mode")
	disable := flag.Bool("disable", false, "disable -workflow for -mode")
	closeID := flag.String("close", "", "close position ID at market price (manual)")
	table := flag.Bool("table", false, "print position tables after each run")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	m, err := domain.ParseMode(*mode)
	if err != nil {
		slog.Error("invalid -mode", "err", err)
		os.Exit(2)
	}
	if *enable && *disable {
		slog.Error("-enable and -disable are mutually exclusive")
		os.Exit(2)
	}

	// Registrado primero para que corra último, después de cerrar store y clientes.
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(*table)

	slog.Debug("moneymaker starting",
		"config", *configPath,
		"environment", cfg.Environment,
		"mode", m,
		"workflow", *workflow,
		"serve", *serve,
	)

	switch {
	case *initLedger:
		err = runInit(ctx, cfg, store, console)
	case *report:
		err = runReport(ctx, store, console, m)
	case *enable || *disable:
		err = runToggle(ctx, store, *workflow, m, *enable)
	case *closeID != "":
		h, closeClients := newHandler(ctx, cfg, store)
		defer closeClients()
		err = runClose(ctx, h, console, m, *closeID)
	case *serve:
		if *addr != "" {
			cfg.Server.Addr = *addr
		}
		h, closeClients := newHandler(ctx, cfg, store)
		defer closeClients()
		err = runServer(ctx, cfg, h.WithNotifier(console), store)
	case *workflow != "":
		h, closeClients := newHandler(ctx, cfg, store)
		defer closeClients()
		err = runOnce(ctx, h.WithNotifier(console), *workflow, m)
	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -workflow, -serve, -init, -report, -enable/-disable or -close")
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("moneymaker exited with error", "err", err)
		exitCode = 1
	}
}

// newHandler conecta los clientes externos y el caché opcional de cotizaciones.
// El closer libera las conexiones que abrió (Redis); llamarlo siempre.
func newHandler(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) (*trigger.Handler, func()) {
	closer := func() {}
	gamma := polymarket.NewClient(cfg.API.GammaBase, cfg.APITimeout()).WithMarketLimit(cfg.API.MarketLimit)
	ranker := ranking.NewClient(cfg.Ranking.URL, cfg.Ranking.APIKey, cfg.RankingTimeout())

	var prices ports.PriceFeed = gamma
	if cfg.Cache.RedisAddr != "" {
		rdb, err := cache.New(ctx, cache.ClientConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			slog.Warn("redis unavailable, quotes served uncached", "addr", cfg.Cache.RedisAddr, "err", err)
		} else {
			prices = cache.NewQuoteCache(rdb, gamma, cfg.QuoteTTL())
			slog.Info("quote cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.QuoteTTL())
			closer = func() {
				if err := rdb.Close(); err != nil {
					slog.Warn("redis close failed", "err", err)
				}
			}
		}
	}

	return trigger.New(cfg, store, trigger.Clients{
		Markets: gamma,
		Ranking: ranker,
		Prices:  prices,
	}), closer
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bandbot/internal/audit"
	"bandbot/internal/broker"
	"bandbot/internal/config"
	"bandbot/internal/engine"
	"bandbot/internal/logging"
	"bandbot/internal/md"
	"bandbot/internal/metrics"
	"bandbot/internal/state"
	"bandbot/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "console")
		bootLog.Error().Err(err).Msg("config error")
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	cal, err := cfg.Calendar()
	if err != nil {
		log.Error().Err(err).Msg("session calendar")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := state.NewLedger()
	restoreCheckpoint(log, ledger, cfg.CheckpointPath, cal.Day(time.Now()))

	sink, err := openAudit(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("audit sink")
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close audit sink")
		}
	}()

	runID := uuid.NewString()
	instruments := make([]engine.Instrument, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		instruments = append(instruments, engine.Instrument{Token: inst.Token, Symbol: inst.Symbol, Qty: inst.Quantity})
	}
	eng, err := engine.New(
		engine.Settings{
			Indicators:      cfg.IndicatorParams(),
			Calendar:        cal,
			Cooldown:        cfg.Trading.Cooldown,
			MinHold:         cfg.Trading.MinHold,
			CooldownOnEntry: cfg.Trading.CooldownOnEntry,
			KillSwitch:      cfg.Trading.KillSwitch,
			OrderTimeout:    cfg.Broker.OrderTimeout,
			CheckInterval:   cfg.Session.CheckInterval,
		},
		instruments,
		strategy.NewBandReversion(cfg.Trading.Oversold, cfg.Trading.Overbought),
		newGateway(cfg, log),
		ledger,
		sink,
		log,
		engine.WithRunID(runID),
	)
	if err != nil {
		log.Error().Err(err).Msg("engine setup")
		return err
	}

	source := newSource(cfg, log)
	ticks := make(chan md.Tick, 1024)
	metricsServer := metrics.NewServer(cfg.MetricsAddr)

	log.Info().
		Str("run_id", runID).
		Str("mode", string(cfg.Mode)).
		Str("feed", cfg.Feed.Provider).
		Int("instruments", len(instruments)).
		Bool("kill_switch", cfg.Trading.KillSwitch).
		Msg("starting bot")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Run(gctx, ticks)
	})
	g.Go(func() error {
		return eng.Run(gctx, ticks)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics up")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped with error")
	}

	if saveErr := ledger.Save(cfg.CheckpointPath, cal.Day(time.Now())); saveErr != nil {
		log.Error().Err(saveErr).Msg("failed to save checkpoint")
	}
	log.Info().Int("open_positions", len(ledger.OpenPositions())).Msg("bot shutdown complete")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// restoreCheckpoint loads the ledger only if it was saved on the current
// trading day; positions never carry over a session.
func restoreCheckpoint(log zerolog.Logger, ledger *state.Ledger, path, today string) {
	snap, err := state.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("ignoring unreadable checkpoint")
		}
		return
	}
	if snap.Day != today {
		log.Info().Str("checkpoint_day", snap.Day).Str("today", today).Msg("discarding stale checkpoint")
		return
	}
	ledger.Restore(snap)
	log.Info().Str("path", path).Int("positions", len(snap.Positions)).Msg("loaded checkpoint")
}

func newGateway(cfg config.Config, log zerolog.Logger) engine.Gateway {
	if cfg.Mode == config.ModeLive {
		return broker.New(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL, log)
	}
	return broker.NewPaper(log)
}

func newSource(cfg config.Config, log zerolog.Logger) md.Source {
	switch cfg.Feed.Provider {
	case config.FeedAlpaca:
		symbolTokens := make(map[string]string, len(cfg.Instruments))
		for _, inst := range cfg.Instruments {
			symbolTokens[inst.Symbol] = inst.Token
		}
		return md.NewAlpacaSource(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Feed.AlpacaFeed, symbolTokens, log)
	case config.FeedWebsocket:
		return md.NewWebsocketSource(cfg.Feed.URL, log)
	default:
		tokens := make([]string, 0, len(cfg.Instruments))
		for _, inst := range cfg.Instruments {
			tokens = append(tokens, inst.Token)
		}
		return md.NewStubSource(tokens, cfg.Feed.StubInterval, time.Now().UnixNano())
	}
}

// openAudit builds the CSV sink plus any configured Redis and Postgres sinks
// behind a single asynchronous writer.
func openAudit(ctx context.Context, cfg config.Config, log zerolog.Logger) (audit.Sink, error) {
	csvSink, err := audit.NewCSVSink(cfg.Audit.Dir)
	if err != nil {
		return nil, err
	}
	sinks := audit.Multi{csvSink}

	if cfg.Audit.RedisAddr != "" {
		redisSink, err := audit.NewRedisSink(ctx, audit.RedisOptions{
			Addr:     cfg.Audit.RedisAddr,
			Password: cfg.Audit.RedisPassword,
			DB:       cfg.Audit.RedisDB,
			Prefix:   cfg.Audit.RedisPrefix,
			TTL:      cfg.Audit.RedisTTL,
		})
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, redisSink)
		log.Info().Str("addr", cfg.Audit.RedisAddr).Msg("redis audit enabled")
	}
	if cfg.Audit.PostgresDSN != "" {
		pgSink, err := audit.NewPostgresSink(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, pgSink)
		log.Info().Msg("postgres audit enabled")
	}

	return audit.NewAsync(sinks, cfg.Audit.QueueSize, log, audit.WithErrorHandler(func(error) {
		metrics.AuditFailuresTotal.Inc()
	})), nil
}

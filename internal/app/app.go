package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/openai"

	"xchain-radar/internal/alerting"
	"xchain-radar/internal/config"
	"xchain-radar/internal/flows"
	"xchain-radar/internal/narrative"
	"xchain-radar/internal/scheduler"
	"xchain-radar/internal/server"
	"xchain-radar/internal/service"
	"xchain-radar/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNarrator() service.Narrator {
	if a.Config.Genai.APIKey == "" {
		a.Logger.Warn().Msg("genai.api_key not configured; narratives fall back to deterministic text")
		return nil
	}

	llm, err := openai.New(
		openai.WithToken(a.Config.Genai.APIKey),
		openai.WithBaseURL(a.Config.Genai.BaseURL),
		openai.WithModel(a.Config.Genai.Model),
	)
	if err != nil {
		a.Logger.Error().Err(err).Msg("model client init failed; narratives fall back to deterministic text")
		return nil
	}

	return narrative.New(llm, narrative.Options{
		Temperature: a.Config.Genai.Temperature,
		MaxTokens:   a.Config.Genai.MaxTokens,
		Timeout:     a.Config.Genai.Timeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService builds the briefing pipeline around an open store. The store
// may be nil; every dependent step then degrades at runtime.
func (a *App) newService(store *storage.Store) *service.Service {
	var warehouse service.Warehouse
	var briefings service.BriefingWriter
	if store != nil {
		warehouse = store
		briefings = store
	} else {
		warehouse = emptyWarehouse{}
	}

	return service.New(warehouse, briefings, a.newNarrator(), a.newNotifier(), service.Options{
		Model:          a.Config.Genai.Model,
		SendOnFallback: a.Config.Radar.SendOnFallback,
		Rev:            a.Config.App.Environment,
	}, a.Logger)
}

// Serve runs the HTTP entrypoint until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; warehouse reads and persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	handlers := &server.Handlers{
		Pipeline:     a.newService(store),
		DefaultChain: a.Config.Radar.Chain,
		Location:     loc,
		Logger:       a.Logger,
	}
	srv := server.New(handlers, a.Config.Server.Addr, a.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down http server")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Run executes the long-running scheduled briefing service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot run the briefing service")
	}
	if closeStore != nil {
		defer closeStore()
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Radar.Interval,
		Location:     loc,
		AlignToStart: true,
	}, a.Logger)

	svc := a.newService(store)
	chain := a.Config.Radar.Chain
	lockKey := a.Config.Radar.AdvisoryLockKey

	a.Logger.Info().Str("chain", chain).Dur("interval", a.Config.Radar.Interval).Msg("starting briefing service")

	err = sched.Run(ctx, func(ctx context.Context, day time.Time) error {
		// One writer per day across replicas.
		release, acquired, err := store.TryAdvisoryLock(ctx, lockKey)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			a.Logger.Info().Msg("another instance holds the briefing lock; skipping run")
			return nil
		}
		defer release()

		res := svc.Explain(ctx, day, chain)
		a.Logger.Info().
			Str("day", res.Day).
			Bool("wrote", res.Wrote).
			Bool("fallback", res.Fallback).
			Str("reason", res.Reason).
			Int("rows", res.Rows).
			Msg("briefing run finished")
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("briefing service terminated with error")
		return err
	}

	a.Logger.Info().Msg("briefing service stopped")
	return nil
}

// resolveDay defaults to the previous calendar day in the configured
// timezone when no explicit day was given.
func (a *App) resolveDay(day *time.Time) (time.Time, error) {
	if day != nil {
		return *day, nil
	}
	loc, err := a.Config.Location()
	if err != nil {
		return time.Time{}, err
	}
	return flows.Yesterday(loc), nil
}

// emptyWarehouse stands in when no database is configured: every read comes
// back empty so the pipeline degrades instead of crashing.
type emptyWarehouse struct{}

func (emptyWarehouse) AnomalousBridges(ctx context.Context, day time.Time, chain string) ([]string, error) {
	return nil, nil
}

func (emptyWarehouse) BridgeEvidence(ctx context.Context, day time.Time, chain string, bridges []string, limit int) ([]flows.EvidenceRow, error) {
	return nil, nil
}

func (emptyWarehouse) ContrastRows(ctx context.Context, day time.Time, chain string) ([]flows.ContrastRow, error) {
	return nil, nil
}

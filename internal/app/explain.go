package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ExplainOptions configure a one-shot pipeline run.
type ExplainOptions struct {
	Day   *time.Time
	Chain string
}

// Explain runs the briefing pipeline once and prints the result as JSON.
func (a *App) Explain(ctx context.Context, opts ExplainOptions) error {
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

	day, err := a.resolveDay(opts.Day)
	if err != nil {
		return err
	}

	chain := opts.Chain
	if chain == "" {
		chain = a.Config.Radar.Chain
	}

	res := a.newService(store).Explain(ctx, day, chain)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

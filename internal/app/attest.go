package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"xchain-radar/internal/attest"
	"xchain-radar/internal/flows"
	"xchain-radar/internal/storage"
)

// AttestOptions configure attestation submission. Day and Start/End are
// mutually exclusive; with neither the previous calendar day is attested.
type AttestOptions struct {
	Chain    string
	Day      *time.Time
	Start    *time.Time
	End      *time.Time
	Location *time.Location
	DryRun   bool
}

// Attest loads stored briefings and publishes their digests on chain, or
// prints what would be published when DryRun is set.
func (a *App) Attest(ctx context.Context, opts AttestOptions) error {
	if opts.Day != nil && (opts.Start != nil || opts.End != nil) {
		return errors.New("--day cannot be combined with --start/--end")
	}
	if (opts.Start == nil) != (opts.End == nil) {
		return errors.New("--start and --end must be given together")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot attest")
	}
	if closeStore != nil {
		defer closeStore()
	}

	chain := opts.Chain
	if chain == "" {
		chain = a.Config.Radar.Chain
	}

	briefings, err := a.loadAttestBriefings(ctx, store, opts)
	if err != nil {
		return err
	}
	if len(briefings) == 0 {
		fmt.Fprintln(os.Stdout, "no briefings found for the requested window")
		return nil
	}

	atts := make([]attest.Attestation, 0, len(briefings))
	for _, b := range briefings {
		atts = append(atts, attest.Derive(b, chain, a.Config.Attest.URI))
	}

	pub, err := attest.NewPublisher(attest.Options{
		RPCURL:     a.Config.Attest.RPCURL,
		PrivateKey: a.Config.Attest.PrivateKey,
		ChainID:    a.Config.Attest.ChainID,
		Contract:   a.Config.Attest.Contract,
		GasLimit:   a.Config.Attest.GasLimit,
	}, a.Logger)
	if err != nil {
		return err
	}

	if opts.DryRun {
		pub.DryRun(os.Stdout, atts)
		return nil
	}

	// A submission failure aborts the remaining batch but is reported on the
	// console rather than through the exit code; only precondition failures
	// abort the command itself.
	if err := pub.Publish(ctx, os.Stdout, atts); err != nil {
		a.Logger.Error().Err(err).Msg("attestation batch aborted")
		fmt.Fprintf(os.Stderr, "attestation aborted: %v\n", err)
	}
	return nil
}

func (a *App) loadAttestBriefings(ctx context.Context, store *storage.Store, opts AttestOptions) ([]storage.Briefing, error) {
	if opts.Start != nil {
		if opts.End.Before(*opts.Start) {
			return nil, errors.New("--end must not precede --start")
		}
		return store.BriefingsBetween(ctx, *opts.Start, *opts.End)
	}

	day := time.Time{}
	if opts.Day != nil {
		day = *opts.Day
	} else {
		loc := opts.Location
		if loc == nil {
			var err error
			loc, err = a.Config.Location()
			if err != nil {
				return nil, err
			}
		}
		day = flows.Yesterday(loc)
	}

	b, err := store.BriefingByDay(ctx, day)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []storage.Briefing{b}, nil
}

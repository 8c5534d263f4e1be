// Package narrative turns aggregated flow evidence into briefing text via a
// generative model, with a deterministic template as the failure path.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"xchain-radar/internal/flows"
)

const (
	maxAnomalyBridges = 12
	maxEvidenceRows   = 100
)

// ErrEmptyOutput indicates the model responded but produced no text; callers
// treat it like any other generation failure.
var ErrEmptyOutput = errors.New("narrative: model returned empty text")

// Options tune the generation call. The model itself is fixed on the client
// at construction time.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Requester packages evidence into prompts for an llms.Model.
type Requester struct {
	llm    llms.Model
	opts   Options
	logger zerolog.Logger
}

// New builds a Requester around an existing model client.
func New(llm llms.Model, opts Options, logger zerolog.Logger) *Requester {
	if opts.Temperature <= 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 900
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Requester{llm: llm, opts: opts, logger: logger.With().Str("component", "narrative").Logger()}
}

// AnomalyBriefing narrates a day with anomalous bridges from focused evidence.
func (r *Requester) AnomalyBriefing(ctx context.Context, day, chain string, bridges []string, evidence []flows.EvidenceRow) (string, error) {
	if len(bridges) > maxAnomalyBridges {
		bridges = bridges[:maxAnomalyBridges]
	}
	if len(evidence) > maxEvidenceRows {
		evidence = evidence[:maxEvidenceRows]
	}
	payload := map[string]any{
		"date":            day,
		"chain":           chain,
		"anomaly_bridges": bridges,
		"evidence":        evidence,
	}
	return r.generate(ctx, promptAnomaly, payload)
}

// RoutineBriefing narrates a quiet day from comparative contrast rows.
func (r *Requester) RoutineBriefing(ctx context.Context, day, chain string, rows []flows.ContrastRow) (string, error) {
	payload := map[string]any{
		"date":     day,
		"chain":    chain,
		"contrast": rows,
	}
	return r.generate(ctx, promptRoutine, payload)
}

func (r *Requester) generate(ctx context.Context, instruction string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal narrative payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, r.llm,
		instruction+"\n\n"+string(body),
		llms.WithTemperature(r.opts.Temperature),
		llms.WithMaxTokens(r.opts.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyOutput
	}

	r.logger.Debug().Int("chars", len(out)).Msg("narrative generated")
	return out, nil
}

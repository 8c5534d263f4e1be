// Package service orchestrates the daily briefing pipeline: evidence
// aggregation, anomaly routing, narrative generation, persistence, and
// notification. Every external failure degrades; the pipeline itself never
// errors out towards the caller.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xchain-radar/internal/alerting"
	"xchain-radar/internal/flows"
	"xchain-radar/internal/narrative"
	"xchain-radar/internal/storage"
)

const anomalyEvidenceLimit = 200

// Fallback reasons surfaced in the explain response.
const (
	ReasonNoAnomaly         = "no_anomaly"
	ReasonModelFailed       = "model_failed"
	ReasonNoAnomalyFallback = "no_anomaly_fallback"
)

// Warehouse is the read side of the flow warehouse the pipeline depends on.
type Warehouse interface {
	AnomalousBridges(ctx context.Context, day time.Time, chain string) ([]string, error)
	BridgeEvidence(ctx context.Context, day time.Time, chain string, bridges []string, limit int) ([]flows.EvidenceRow, error)
	ContrastRows(ctx context.Context, day time.Time, chain string) ([]flows.ContrastRow, error)
}

// BriefingWriter persists the day's narrative and evidence snapshot.
type BriefingWriter interface {
	UpsertBriefing(ctx context.Context, b storage.Briefing) error
}

// Narrator produces narrative text from evidence.
type Narrator interface {
	AnomalyBriefing(ctx context.Context, day, chain string, bridges []string, evidence []flows.EvidenceRow) (string, error)
	RoutineBriefing(ctx context.Context, day, chain string, rows []flows.ContrastRow) (string, error)
}

// ExplainResult is the transport-level response of one pipeline run. OK is
// always true: degraded runs are reported through Fallback and Reason.
type ExplainResult struct {
	OK       bool   `json:"ok"`
	Day      string `json:"day"`
	Chain    string `json:"chain"`
	Rev      string `json:"rev"`
	Wrote    bool   `json:"wrote"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason"`
	Rows     int    `json:"rows"`
	Model    string `json:"model"`
}

// Options carry pipeline-wide settings fixed at startup.
type Options struct {
	Model          string
	SendOnFallback bool
	Rev            string
}

// Service wires the pipeline's collaborators together.
type Service struct {
	warehouse Warehouse
	briefings BriefingWriter
	narrator  Narrator
	notifier  alerting.Notifier
	opts      Options
	logger    zerolog.Logger
}

// New constructs the briefing service. Narrator, briefings, and notifier may
// be nil; the corresponding step then degrades the same way a runtime failure
// would.
func New(warehouse Warehouse, briefings BriefingWriter, narrator Narrator, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		warehouse: warehouse,
		briefings: briefings,
		narrator:  narrator,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Explain runs the full pipeline for (day, chain) and reports what happened.
func (s *Service) Explain(ctx context.Context, day time.Time, chain string) ExplainResult {
	chain = strings.ToLower(chain)
	dayISO := day.Format(flows.DayFormat)

	res := ExplainResult{
		OK:    true,
		Day:   dayISO,
		Chain: chain,
		Rev:   s.opts.Rev,
		Model: s.opts.Model,
	}

	s.logger.Info().Str("day", dayISO).Str("chain", chain).Str("rev", s.opts.Rev).Msg("explain invoked")

	bridges, err := s.warehouse.AnomalousBridges(ctx, day, chain)
	if err != nil {
		// Upstream-unavailable: treated as "no anomaly signal".
		s.logger.Error().Err(err).Str("day", dayISO).Msg("anomaly signal unavailable")
		bridges = nil
	}

	if len(bridges) > 0 {
		s.explainAnomalous(ctx, day, dayISO, chain, bridges, &res)
	} else {
		s.explainRoutine(ctx, day, dayISO, chain, &res)
	}

	return res
}

func (s *Service) explainAnomalous(ctx context.Context, day time.Time, dayISO, chain string, bridges []string, res *ExplainResult) {
	ev, err := s.warehouse.BridgeEvidence(ctx, day, chain, bridges, anomalyEvidenceLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("day", dayISO).Msg("fetch bridge evidence failed")
		ev = nil
	}

	text, err := s.narrate(func(n Narrator) (string, error) {
		return n.AnomalyBriefing(ctx, dayISO, chain, bridges, ev)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("day", dayISO).Msg("anomaly narrative failed, using fallback")
		text = narrative.Fallback(dayISO, ev, "Anomaly detected but model failed (fallback)")
		res.Fallback = true
		res.Reason = ReasonModelFailed
	}

	res.Rows = len(ev)
	s.persist(ctx, day, text, marshalSnapshot(s.logger, ev), res)
	s.notify(ctx, text, res.Fallback)
}

func (s *Service) explainRoutine(ctx context.Context, day time.Time, dayISO, chain string, res *ExplainResult) {
	rows, err := s.warehouse.ContrastRows(ctx, day, chain)
	if err != nil {
		s.logger.Error().Err(err).Str("day", dayISO).Msg("fetch contrast rows failed")
		rows = nil
	}

	text, err := s.narrate(func(n Narrator) (string, error) {
		return n.RoutineBriefing(ctx, dayISO, chain, rows)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("day", dayISO).Msg("routine narrative failed, using fallback")

		tops, topErr := s.warehouse.BridgeEvidence(ctx, day, chain, nil, 20)
		if topErr != nil {
			s.logger.Error().Err(topErr).Str("day", dayISO).Msg("fetch fallback evidence failed")
			tops = nil
		}
		text = narrative.Fallback(dayISO, tops, "No significant anomaly")
		res.Fallback = true
		res.Reason = ReasonNoAnomalyFallback

		// Persist whatever evidence we have; the contrast rows win when both
		// exist.
		if len(rows) > 0 {
			res.Rows = len(rows)
			s.persist(ctx, day, text, marshalSnapshot(s.logger, rows), res)
		} else {
			res.Rows = len(tops)
			s.persist(ctx, day, text, marshalSnapshot(s.logger, tops), res)
		}
		s.notify(ctx, text, res.Fallback)
		return
	}

	res.Reason = ReasonNoAnomaly
	res.Rows = len(rows)
	s.persist(ctx, day, text, marshalSnapshot(s.logger, rows), res)
	s.notify(ctx, text, res.Fallback)
}

// narrate guards against a missing narrator so the caller's fallback path
// handles both "not configured" and "call failed" identically.
func (s *Service) narrate(call func(Narrator) (string, error)) (string, error) {
	if s.narrator == nil {
		return "", narrative.ErrEmptyOutput
	}
	return call(s.narrator)
}

// marshalSnapshot renders the evidence rows the narrative was built from,
// keeping the snapshot under the storage byte budget. A marshal failure
// degrades to an empty array so the briefing row still lands.
func marshalSnapshot[T any](logger zerolog.Logger, rows []T) json.RawMessage {
	snapshot, err := storage.MarshalEvidence(rows, storage.EvidenceByteBudget)
	if err != nil {
		logger.Error().Err(err).Msg("marshal evidence snapshot failed")
		return json.RawMessage("[]")
	}
	return snapshot
}

// persist writes the briefing row; a failure is logged and swallowed, the
// narrative response stays available. Wrote reports what actually happened so
// callers can see the durability gap.
func (s *Service) persist(ctx context.Context, day time.Time, text string, snapshot json.RawMessage, res *ExplainResult) {
	if s.briefings == nil {
		s.logger.Warn().Msg("briefing store not configured; skipping persist")
		return
	}

	b := storage.Briefing{
		Day:            day,
		Model:          s.opts.Model,
		SummaryText:    text,
		SourceRowsJSON: snapshot,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.briefings.UpsertBriefing(ctx, b); err != nil {
		s.logger.Error().Err(err).Str("day", res.Day).Msg("persist briefing failed")
		return
	}
	res.Wrote = true
}

// notify pushes the briefing to the configured channel; failures are logged
// and swallowed. Fallback texts are held back unless send_on_fallback is set.
func (s *Service) notify(ctx context.Context, text string, fallback bool) {
	if s.notifier == nil {
		return
	}
	if fallback && !s.opts.SendOnFallback {
		s.logger.Info().Msg("skipping notification for fallback narrative")
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Error().Err(err).Msg("notification failed")
	}
}

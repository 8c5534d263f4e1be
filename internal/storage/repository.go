package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"xchain-radar/internal/flows"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	flowsWindowSQL = `SELECT
        day,
        bridge,
        token_symbol,
        COALESCE(SUM(in_amount_usd),  0)::text,
        COALESCE(SUM(out_amount_usd), 0)::text,
        COALESCE(SUM(net_amount_usd), 0)::text,
        COALESCE(SUM(tx_count), 0),
        COALESCE(SUM(unique_wallets), 0)
    FROM flows_daily
    WHERE chain = $1
      AND day BETWEEN $2 AND $3
    GROUP BY day, bridge, token_symbol;`

	bridgeEvidenceSQL = `SELECT
        bridge,
        token_symbol,
        ROUND(SUM(in_amount_usd),  2)::text,
        ROUND(SUM(out_amount_usd), 2)::text,
        ROUND(SUM(net_amount_usd), 2)::text,
        COALESCE(SUM(tx_count), 0),
        COALESCE(SUM(unique_wallets), 0)
    FROM flows_daily
    WHERE day = $1
      AND chain = $2
      AND ($3::text[] IS NULL OR bridge = ANY($3))
    GROUP BY bridge, token_symbol
    ORDER BY ABS(SUM(net_amount_usd)) DESC
    LIMIT $4;`

	anomalousBridgesSQL = `SELECT bridge
    FROM bridge_flow_anomalies
    WHERE day = $1
      AND chain = $2
      AND is_anom_bridge
    ORDER BY ABS(zscore_30d) DESC, ABS(net_usd) DESC
    LIMIT $3;`

	upsertBriefingSQL = `INSERT INTO daily_briefings (
        day,
        model,
        summary_text,
        source_rows_json,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (day) DO UPDATE
    SET
        model            = EXCLUDED.model,
        summary_text     = EXCLUDED.summary_text,
        source_rows_json = EXCLUDED.source_rows_json,
        created_at       = EXCLUDED.created_at;`

	briefingByDaySQL = `SELECT day, model, summary_text, source_rows_json, created_at
    FROM daily_briefings
    WHERE day = $1;`

	briefingsBetweenSQL = `SELECT day, model, summary_text, source_rows_json, created_at
    FROM daily_briefings
    WHERE day BETWEEN $1 AND $2
    ORDER BY day;`

	listRecentBriefingsSQL = `SELECT day, model, summary_text, source_rows_json, created_at
    FROM daily_briefings
    ORDER BY day DESC
    LIMIT $1;`

	chainDailyNetSQL = `SELECT
        day,
        COALESCE(SUM(net_amount_usd), 0)::text
    FROM flows_daily
    WHERE chain = $1
      AND day BETWEEN $2 AND $3
    GROUP BY day
    ORDER BY day;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

const anomalyBridgeLimit = 12

// undefinedTable is the Postgres error code for a missing relation; the
// anomaly view is optional and its absence is not an error.
const undefinedTable = "42P01"

// FlowWarehouse defines read access to aggregated flow data.
type FlowWarehouse interface {
	AnomalousBridges(ctx context.Context, day time.Time, chain string) ([]string, error)
	BridgeEvidence(ctx context.Context, day time.Time, chain string, bridges []string, limit int) ([]flows.EvidenceRow, error)
	ContrastRows(ctx context.Context, day time.Time, chain string) ([]flows.ContrastRow, error)
	ChainDailyNet(ctx context.Context, chain string, from, to time.Time) ([]FlowPoint, error)
}

// BriefingStore defines operations for briefing persistence.
type BriefingStore interface {
	UpsertBriefing(ctx context.Context, b Briefing) error
	BriefingByDay(ctx context.Context, day time.Time) (Briefing, error)
	BriefingsBetween(ctx context.Context, from, to time.Time) ([]Briefing, error)
	ListRecentBriefings(ctx context.Context, limit int) ([]Briefing, error)
}

// AdvisoryLocker exposes advisory lock helpers for single-writer discipline.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the flow warehouse and the briefing table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AnomalousBridges returns the bridges flagged by the upstream z-score view
// for (day, chain), strongest signal first, capped at 12. A missing view is
// the "no anomaly data" branch: empty set, nil error.
func (s *Store) AnomalousBridges(ctx context.Context, day time.Time, chain string) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, anomalousBridgesSQL, day, chain, anomalyBridgeLimit)
	if queryErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(queryErr, &pgErr) && pgErr.Code == undefinedTable {
			return nil, nil
		}
		return nil, fmt.Errorf("query anomalous bridges: %w", queryErr)
	}
	defer rows.Close()

	bridges := make([]string, 0, anomalyBridgeLimit)
	for rows.Next() {
		var bridge string
		if err := rows.Scan(&bridge); err != nil {
			return nil, err
		}
		bridges = append(bridges, bridge)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bridges, nil
}

// BridgeEvidence returns per-bridge×token aggregates for (day, chain),
// optionally filtered to the given bridges, ordered by |net| descending.
func (s *Store) BridgeEvidence(ctx context.Context, day time.Time, chain string, bridges []string, limit int) ([]flows.EvidenceRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}

	var filter any
	if len(bridges) > 0 {
		filter = bridges
	}

	rows, queryErr := pool.Query(ctx, bridgeEvidenceSQL, day, chain, filter, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("query bridge evidence: %w", queryErr)
	}
	defer rows.Close()

	dayISO := day.Format(flows.DayFormat)
	out := make([]flows.EvidenceRow, 0, limit)
	for rows.Next() {
		var (
			row                   flows.EvidenceRow
			inStr, outStr, netStr string
		)
		if err := rows.Scan(&row.Bridge, &row.Token, &inStr, &outStr, &netStr, &row.TxCount, &row.UniqueWallets); err != nil {
			return nil, err
		}
		row.Chain = chain
		row.Day = dayISO
		if row.InUSD, err = decimal.NewFromString(inStr); err != nil {
			return nil, fmt.Errorf("parse in_usd: %w", err)
		}
		if row.OutUSD, err = decimal.NewFromString(outStr); err != nil {
			return nil, fmt.Errorf("parse out_usd: %w", err)
		}
		if row.NetUSD, err = decimal.NewFromString(netStr); err != nil {
			return nil, fmt.Errorf("parse net_usd: %w", err)
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ContrastRows fetches the raw trailing window for (day, chain) and derives
// the comparative row set in process.
func (s *Store) ContrastRows(ctx context.Context, day time.Time, chain string) ([]flows.ContrastRow, error) {
	window, err := s.flowsWindow(ctx, chain, day.AddDate(0, 0, -7), day)
	if err != nil {
		return nil, err
	}
	return flows.BuildContrast(day, chain, window), nil
}

func (s *Store) flowsWindow(ctx context.Context, chain string, from, to time.Time) ([]flows.DailyFlow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, flowsWindowSQL, chain, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("query flows window: %w", queryErr)
	}
	defer rows.Close()

	var out []flows.DailyFlow
	for rows.Next() {
		var (
			f                     flows.DailyFlow
			inStr, outStr, netStr string
		)
		if err := rows.Scan(&f.Day, &f.Bridge, &f.Token, &inStr, &outStr, &netStr, &f.TxCount, &f.UniqueWallets); err != nil {
			return nil, err
		}
		f.Chain = chain
		if f.InUSD, err = decimal.NewFromString(inStr); err != nil {
			return nil, fmt.Errorf("parse in_amount_usd: %w", err)
		}
		if f.OutUSD, err = decimal.NewFromString(outStr); err != nil {
			return nil, fmt.Errorf("parse out_amount_usd: %w", err)
		}
		if f.NetUSD, err = decimal.NewFromString(netStr); err != nil {
			return nil, fmt.Errorf("parse net_amount_usd: %w", err)
		}
		out = append(out, f)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertBriefing persists or replaces the briefing for its day.
func (s *Store) UpsertBriefing(ctx context.Context, b Briefing) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, execErr := pool.Exec(ctx, upsertBriefingSQL,
		b.Day,
		b.Model,
		b.SummaryText,
		[]byte(b.SourceRowsJSON),
		createdAt,
	); execErr != nil {
		return fmt.Errorf("upsert briefing: %w", execErr)
	}
	return nil
}

// ErrNotFound reports an absent briefing day.
var ErrNotFound = errors.New("storage: briefing not found")

// BriefingByDay loads a single briefing; ErrNotFound when absent.
func (s *Store) BriefingByDay(ctx context.Context, day time.Time) (Briefing, error) {
	pool, err := s.getPool()
	if err != nil {
		return Briefing{}, err
	}

	var b Briefing
	row := pool.QueryRow(ctx, briefingByDaySQL, day)
	if scanErr := row.Scan(&b.Day, &b.Model, &b.SummaryText, &b.SourceRowsJSON, &b.CreatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Briefing{}, ErrNotFound
		}
		return Briefing{}, fmt.Errorf("load briefing: %w", scanErr)
	}
	return b, nil
}

// BriefingsBetween lists briefings in [from, to] ordered by day.
func (s *Store) BriefingsBetween(ctx context.Context, from, to time.Time) ([]Briefing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, briefingsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list briefings between: %w", queryErr)
	}
	defer rows.Close()

	return scanBriefings(rows)
}

// ListRecentBriefings lists the most recent briefings, newest first.
func (s *Store) ListRecentBriefings(ctx context.Context, limit int) ([]Briefing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentBriefingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent briefings: %w", queryErr)
	}
	defer rows.Close()

	return scanBriefings(rows)
}

// ChainDailyNet returns the chain-level net flow series for the export chart.
func (s *Store) ChainDailyNet(ctx context.Context, chain string, from, to time.Time) ([]FlowPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, chainDailyNetSQL, chain, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("query chain daily net: %w", queryErr)
	}
	defer rows.Close()

	var out []FlowPoint
	for rows.Next() {
		var (
			p      FlowPoint
			netStr string
		)
		if err := rows.Scan(&p.Day, &netStr); err != nil {
			return nil, err
		}
		if p.NetUSD, err = decimal.NewFromString(netStr); err != nil {
			return nil, fmt.Errorf("parse net_amount_usd: %w", err)
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. Used by the daily run loop to enforce one writer per day-key.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: releasing the connection drops the lock regardless.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func scanBriefings(rows pgx.Rows) ([]Briefing, error) {
	var out []Briefing
	for rows.Next() {
		var b Briefing
		if err := rows.Scan(&b.Day, &b.Model, &b.SummaryText, &b.SourceRowsJSON, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

package flows

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayFormat is the ISO calendar-date layout used everywhere a day crosses a
// boundary (HTTP params, CLI flags, warehouse keys, on-chain payloads).
const DayFormat = "2006-01-02"

// Level discriminates chain-level from bridge-level contrast rows.
type Level string

const (
	LevelChain  Level = "_CHAIN"
	LevelBridge Level = "_BRIDGE"
)

// Placeholder identifiers carried by the chain-level row.
const (
	TotalBridge = "_TOTAL"
	AllTokens   = "_ALL"
)

// DailyFlow is one warehouse row: aggregated flow for a single
// (day, chain, bridge, token) key. Duplicate keys are pre-summed by the
// warehouse query.
type DailyFlow struct {
	Day           time.Time
	Chain         string
	Bridge        string
	Token         string
	InUSD         decimal.Decimal
	OutUSD        decimal.Decimal
	NetUSD        decimal.Decimal
	TxCount       int64
	UniqueWallets int64
}

// EvidenceRow is the flat per-bridge evidence shape fed to the model and
// persisted inside briefing snapshots.
type EvidenceRow struct {
	Chain         string          `json:"chain"`
	Day           string          `json:"day"`
	Bridge        string          `json:"bridge"`
	Token         string          `json:"token_symbol"`
	InUSD         decimal.Decimal `json:"in_usd"`
	OutUSD        decimal.Decimal `json:"out_usd"`
	NetUSD        decimal.Decimal `json:"net_usd"`
	TxCount       int64           `json:"tx_count"`
	UniqueWallets int64           `json:"unique_wallets"`
}

// ContrastRow carries today / yesterday / trailing-7d comparisons for one
// level of aggregation. Optional fields are explicit nulls, never zero
// stand-ins: a percentage with a zero or absent reference stays null.
type ContrastRow struct {
	Level  Level  `json:"level"`
	Bridge string `json:"bridge"`
	Token  string `json:"token_symbol"`
	Day    string `json:"day"`
	Chain  string `json:"chain"`

	InUSD   decimal.Decimal `json:"in_usd_d"`
	OutUSD  decimal.Decimal `json:"out_usd_d"`
	NetUSD  decimal.Decimal `json:"net_usd_d"`
	Txs     int64           `json:"txs_d"`
	Wallets int64           `json:"uw_d"`

	PrevInUSD   decimal.NullDecimal `json:"in_usd_p1"`
	PrevOutUSD  decimal.NullDecimal `json:"out_usd_p1"`
	PrevNetUSD  decimal.NullDecimal `json:"net_usd_p1"`
	PrevTxs     *int64              `json:"txs_p1"`
	PrevWallets *int64              `json:"uw_p1"`

	AvgInUSD7   decimal.NullDecimal `json:"in_usd_7avg"`
	AvgOutUSD7  decimal.NullDecimal `json:"out_usd_7avg"`
	AvgNetUSD7  decimal.NullDecimal `json:"net_usd_7avg"`
	AvgTxs7     decimal.NullDecimal `json:"txs_7avg"`
	AvgWallets7 decimal.NullDecimal `json:"uw_7avg"`

	NetDoDPct       decimal.NullDecimal `json:"net_dod_pct"`
	NetVs7dPct      decimal.NullDecimal `json:"net_vs7d_pct"`
	NetShareOfChain decimal.NullDecimal `json:"net_share_of_chain"`
}

// ParseDay parses an ISO calendar date at UTC midnight.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DayFormat, s)
}

// Yesterday returns the previous calendar day in the given location,
// normalised to UTC midnight.
func Yesterday(loc *time.Location) time.Time {
	y, m, d := time.Now().In(loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

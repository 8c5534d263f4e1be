package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Briefing is the persisted narrative plus evidence snapshot for one calendar
// day. The day is the unique key; a rewrite replaces every field.
type Briefing struct {
	Day            time.Time
	Model          string
	SummaryText    string
	SourceRowsJSON json.RawMessage
	CreatedAt      time.Time
}

// EvidenceRowCount returns the number of rows in the stored snapshot. A
// snapshot that fails to parse counts as zero rather than erroring, matching
// the attestation contract.
func (b Briefing) EvidenceRowCount() int {
	var rows []json.RawMessage
	if err := json.Unmarshal(b.SourceRowsJSON, &rows); err != nil {
		return 0
	}
	return len(rows)
}

// FlowPoint is one day of chain-level net flow, used by the export chart.
type FlowPoint struct {
	Day    time.Time
	NetUSD decimal.Decimal
}

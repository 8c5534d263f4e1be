package storage

import (
	"encoding/json"
	"fmt"
)

// EvidenceByteBudget caps the serialized snapshot stored per briefing.
const EvidenceByteBudget = 900_000

// MarshalEvidence serializes a row slice to a JSON array no larger than
// budget bytes. Rows are dropped from the tail until the array fits, so the
// stored snapshot is always valid JSON: truncation happens at the container
// boundary, never mid-record.
func MarshalEvidence[T any](rows []T, budget int) (json.RawMessage, error) {
	if budget <= 2 {
		return json.RawMessage("[]"), nil
	}

	buf := make([]byte, 0, 4096)
	buf = append(buf, '[')
	for i, row := range rows {
		item, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("marshal evidence row %d: %w", i, err)
		}
		// +1 for the closing bracket, +1 for a separating comma.
		need := len(item) + 1
		if len(buf) > 1 {
			need++
		}
		if len(buf)+need > budget {
			break
		}
		if len(buf) > 1 {
			buf = append(buf, ',')
		}
		buf = append(buf, item...)
	}
	buf = append(buf, ']')
	return json.RawMessage(buf), nil
}

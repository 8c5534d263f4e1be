package storage

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fatRow struct {
	ID      int    `json:"id"`
	Padding string `json:"padding"`
}

func TestMarshalEvidenceFitsWithinBudget(t *testing.T) {
	rows := []fatRow{{ID: 1, Padding: "a"}, {ID: 2, Padding: "b"}}

	out, err := MarshalEvidence(rows, EvidenceByteBudget)
	require.NoError(t, err)

	var decoded []fatRow
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, rows, decoded)
}

func TestMarshalEvidenceTruncatesAtRowBoundary(t *testing.T) {
	pad := strings.Repeat("x", 100)
	rows := make([]fatRow, 50)
	for i := range rows {
		rows[i] = fatRow{ID: i, Padding: pad}
	}

	full, err := MarshalEvidence(rows, 1<<20)
	require.NoError(t, err)
	budget := len(full) / 2

	out, err := MarshalEvidence(rows, budget)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), budget)

	// The truncated snapshot must still parse, with whole rows only.
	var decoded []fatRow
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.NotEmpty(t, decoded)
	assert.Less(t, len(decoded), len(rows))
	for i, r := range decoded {
		assert.Equal(t, i, r.ID)
		assert.Equal(t, pad, r.Padding)
	}
}

func TestMarshalEvidenceTinyBudget(t *testing.T) {
	rows := []fatRow{{ID: 1, Padding: strings.Repeat("y", 1000)}}

	out, err := MarshalEvidence(rows, 10)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestMarshalEvidenceEmptyInput(t *testing.T) {
	out, err := MarshalEvidence([]fatRow(nil), EvidenceByteBudget)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestBriefingEvidenceRowCount(t *testing.T) {
	b := Briefing{SourceRowsJSON: json.RawMessage(`[{"a":1},{"a":2},{"a":3}]`)}
	assert.Equal(t, 3, b.EvidenceRowCount())

	b = Briefing{SourceRowsJSON: json.RawMessage(`not json`)}
	assert.Equal(t, 0, b.EvidenceRowCount())

	b = Briefing{}
	assert.Equal(t, 0, b.EvidenceRowCount())
}

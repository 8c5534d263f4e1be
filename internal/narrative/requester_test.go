package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"xchain-radar/internal/flows"
)

// stubModel satisfies llms.Model with canned behaviour.
type stubModel struct {
	reply      string
	err        error
	lastPrompt string
}

func (s *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				s.lastPrompt = t.Text
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.reply}}}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func evidenceFixture() []flows.EvidenceRow {
	return []flows.EvidenceRow{
		{Chain: "ethereum", Day: "2024-01-15", Bridge: "stargate", Token: "USDC",
			NetUSD: decimal.NewFromInt(123456), TxCount: 42, UniqueWallets: 17},
		{Chain: "ethereum", Day: "2024-01-15", Bridge: "across", Token: "WETH",
			NetUSD: decimal.NewFromFloat(-9876.5), TxCount: 8, UniqueWallets: 6},
	}
}

func TestAnomalyBriefingIncludesEvidence(t *testing.T) {
	stub := &stubModel{reply: "A significant anomaly was observed."}
	r := New(stub, Options{}, zerolog.Nop())

	out, err := r.AnomalyBriefing(context.Background(), "2024-01-15", "ethereum",
		[]string{"stargate"}, evidenceFixture())
	require.NoError(t, err)
	assert.Equal(t, "A significant anomaly was observed.", out)
	assert.Contains(t, stub.lastPrompt, "anomaly_bridges")
	assert.Contains(t, stub.lastPrompt, "stargate")
	assert.Contains(t, stub.lastPrompt, "2024-01-15")
}

func TestAnomalyBriefingCapsInputs(t *testing.T) {
	bridges := make([]string, 30)
	for i := range bridges {
		bridges[i] = "bx9"
	}
	rows := make([]flows.EvidenceRow, 150)

	stub := &stubModel{reply: "ok"}
	r := New(stub, Options{}, zerolog.Nop())
	_, err := r.AnomalyBriefing(context.Background(), "2024-01-15", "ethereum", bridges, rows)
	require.NoError(t, err)
	// 12 bridges and 100 evidence rows at most end up in the payload.
	assert.Equal(t, 12, strings.Count(stub.lastPrompt, `"bx9"`))
	assert.Equal(t, 100, strings.Count(stub.lastPrompt, `"tx_count"`))
}

func TestRoutineBriefingEmptyOutputIsError(t *testing.T) {
	stub := &stubModel{reply: "   \n"}
	r := New(stub, Options{}, zerolog.Nop())

	_, err := r.RoutineBriefing(context.Background(), "2024-01-15", "ethereum", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestRoutineBriefingModelError(t *testing.T) {
	stub := &stubModel{err: errors.New("rpc unreachable")}
	r := New(stub, Options{}, zerolog.Nop())

	_, err := r.RoutineBriefing(context.Background(), "2024-01-15", "ethereum", nil)
	require.Error(t, err)
}

func TestFallbackDeterministicWithReason(t *testing.T) {
	rows := evidenceFixture()
	first := Fallback("2024-01-15", rows, "No significant anomaly")
	second := Fallback("2024-01-15", rows, "No significant anomaly")

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
	assert.Contains(t, first, "No significant anomaly")
	assert.Contains(t, first, "ethereum/stargate USDC")
	assert.Contains(t, first, "tx=42")
}

func TestFallbackNoRows(t *testing.T) {
	out := Fallback("2024-01-15", nil, "Anomaly detected but model failed (fallback)")
	assert.Contains(t, out, "Top flows: none.")
	assert.Contains(t, out, "Anomaly detected but model failed (fallback)")
}

func TestFallbackCapsAtFiveRows(t *testing.T) {
	rows := make([]flows.EvidenceRow, 9)
	for i := range rows {
		rows[i] = flows.EvidenceRow{Chain: "ethereum", Bridge: "hop", Token: "USDC"}
	}
	out := Fallback("2024-01-15", rows, "reason")
	assert.Equal(t, 5, strings.Count(out, "ethereum/hop"))
}

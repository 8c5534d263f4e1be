package attest

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xchain-radar/internal/storage"
)

// Well-known throwaway key, never funded.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func briefingFixture() storage.Briefing {
	day, _ := time.Parse("2006-01-02", "2024-01-15")
	return storage.Briefing{
		Day:            day,
		Model:          "google/gemini-flash-1.5",
		SummaryText:    "No significant anomaly detected today.",
		SourceRowsJSON: json.RawMessage(`[{"bridge":"stargate"},{"bridge":"across"}]`),
	}
}

func TestDerive(t *testing.T) {
	b := briefingFixture()
	a := Derive(b, "ethereum", "")

	assert.Equal(t, "2024-01-15", a.Day)
	assert.Equal(t, "ethereum", a.Chain)
	assert.Equal(t, crypto.Keccak256Hash([]byte(b.SummaryText)), a.SummaryHash)
	assert.False(t, a.HasAnomaly, "negation phrase must win")
	assert.Equal(t, 2, a.EvidenceRows)
	assert.Equal(t, b.Model, a.Model)
}

func TestDeriveAnomalousText(t *testing.T) {
	b := briefingFixture()
	b.SummaryText = "We observed a significant anomaly in bridge flows."
	a := Derive(b, "ethereum", "")
	assert.True(t, a.HasAnomaly)
}

func TestNewPublisherPreconditions(t *testing.T) {
	base := Options{RPCURL: "http://localhost:8545", PrivateKey: testKey, ChainID: 7001, Contract: testContract}

	_, err := NewPublisher(base, zerolog.Nop())
	require.NoError(t, err)

	missingKey := base
	missingKey.PrivateKey = ""
	_, err = NewPublisher(missingKey, zerolog.Nop())
	require.Error(t, err)

	missingContract := base
	missingContract.Contract = ""
	_, err = NewPublisher(missingContract, zerolog.Nop())
	require.Error(t, err)

	badContract := base
	badContract.Contract = "not-an-address"
	_, err = NewPublisher(badContract, zerolog.Nop())
	require.Error(t, err)

	badKey := base
	badKey.PrivateKey = "zzzz"
	_, err = NewPublisher(badKey, zerolog.Nop())
	require.Error(t, err)
}

func TestNewPublisherAcceptsPrefixedKey(t *testing.T) {
	p, err := NewPublisher(Options{
		RPCURL:     "http://localhost:8545",
		PrivateKey: "0x" + testKey,
		ChainID:    7001,
		Contract:   testContract,
	}, zerolog.Nop())
	require.NoError(t, err)
	// Address derived from the well-known key above.
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", p.From().Hex())
}

func TestCallDataRoundTrip(t *testing.T) {
	p, err := NewPublisher(Options{
		RPCURL:     "http://localhost:8545",
		PrivateKey: testKey,
		ChainID:    7001,
		Contract:   testContract,
	}, zerolog.Nop())
	require.NoError(t, err)

	a := Derive(briefingFixture(), "ethereum", "https://example.org/briefings/2024-01-15")
	data, err := p.callData(a)
	require.NoError(t, err)

	method := publishABI.Methods["publish"]
	assert.Equal(t, method.ID, data[:4])

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, values, 7)
	assert.Equal(t, "2024-01-15", values[0])
	assert.Equal(t, "ethereum", values[1])
	assert.Equal(t, [32]byte(a.SummaryHash), values[2])
	assert.Equal(t, false, values[3])
	assert.Equal(t, big.NewInt(2), values[4])
	assert.Equal(t, a.Model, values[5])
	assert.Equal(t, "https://example.org/briefings/2024-01-15", values[6])
}

func TestDryRunOutput(t *testing.T) {
	p, err := NewPublisher(Options{
		RPCURL:     "http://localhost:8545",
		PrivateKey: testKey,
		ChainID:    7001,
		Contract:   testContract,
	}, zerolog.Nop())
	require.NoError(t, err)

	a := Derive(briefingFixture(), "ethereum", "")
	var buf bytes.Buffer
	p.DryRun(&buf, []Attestation{a})

	out := buf.String()
	assert.Contains(t, out, "[DRY] 2024-01-15")
	assert.Contains(t, out, "hash="+a.SummaryHash.Hex())
	assert.Contains(t, out, "rows=2")
	assert.Contains(t, out, "anom=false")
}

package flows

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	require.NoError(t, err)
	return d
}

func flow(day time.Time, bridge, token string, in, out, net float64, txs, wallets int64) DailyFlow {
	return DailyFlow{
		Day:           day,
		Chain:         "ethereum",
		Bridge:        bridge,
		Token:         token,
		InUSD:         decimal.NewFromFloat(in),
		OutUSD:        decimal.NewFromFloat(out),
		NetUSD:        decimal.NewFromFloat(net),
		TxCount:       txs,
		UniqueWallets: wallets,
	}
}

func TestBuildContrastChainRowReconciles(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day, "stargate", "USDC", 1000, 400, 600, 10, 5),
		flow(day, "stargate", "WETH", 200, 500, -300, 4, 3),
		flow(day, "across", "USDC", 300, 100, 200, 6, 2),
	}

	rows := BuildContrast(day, "ethereum", window)
	require.Len(t, rows, 4)

	chain := rows[0]
	assert.Equal(t, LevelChain, chain.Level)
	assert.Equal(t, TotalBridge, chain.Bridge)
	assert.Equal(t, AllTokens, chain.Token)

	sum := decimal.Zero
	for _, r := range rows[1:] {
		assert.Equal(t, LevelBridge, r.Level)
		sum = sum.Add(r.NetUSD)
	}
	assert.True(t, chain.NetUSD.Equal(sum), "chain net %s != bridge sum %s", chain.NetUSD, sum)
	assert.EqualValues(t, 20, chain.Txs)
	assert.EqualValues(t, 10, chain.Wallets)
}

func TestBuildContrastOrderingAndTieBreak(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day, "hop", "USDC", 0, 0, 100, 1, 1),
		flow(day, "across", "USDC", 0, 0, -100, 1, 1),
		flow(day, "stargate", "USDT", 0, 0, 900, 1, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	require.Len(t, rows, 4)
	assert.Equal(t, "stargate", rows[1].Bridge)
	// |100| == |-100|: deterministic bridge-name tie-break.
	assert.Equal(t, "across", rows[2].Bridge)
	assert.Equal(t, "hop", rows[3].Bridge)
}

func TestBuildContrastSharesSumToOne(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day, "stargate", "USDC", 0, 0, 750, 1, 1),
		flow(day, "across", "USDC", 0, 0, 150, 1, 1),
		flow(day, "hop", "WETH", 0, 0, 100, 1, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	require.Len(t, rows, 4)
	assert.False(t, rows[0].NetShareOfChain.Valid, "chain-level share must stay null")

	sum := decimal.Zero
	for _, r := range rows[1:] {
		require.True(t, r.NetShareOfChain.Valid)
		sum = sum.Add(r.NetShareOfChain.Decimal)
	}
	diff := sum.Sub(decimal.NewFromInt(1)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(1e-9)), "shares sum to %s", sum)
}

func TestBuildContrastShareNullWhenChainNetZero(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day, "stargate", "USDC", 0, 0, 500, 1, 1),
		flow(day, "across", "USDC", 0, 0, -500, 1, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	require.Len(t, rows, 3)
	for _, r := range rows[1:] {
		assert.False(t, r.NetShareOfChain.Valid)
	}
}

func TestBuildContrastPctRules(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	prev := day.AddDate(0, 0, -1)
	window := []DailyFlow{
		flow(day, "stargate", "USDC", 0, 0, 300, 1, 1),
		flow(prev, "stargate", "USDC", 0, 0, 200, 1, 1),
		// Bridge present yesterday with zero net: DoD must stay null, not Inf.
		flow(day, "across", "USDC", 0, 0, 50, 1, 1),
		flow(prev, "across", "USDC", 0, 0, 0, 1, 1),
		// Bridge with no history at all.
		flow(day, "hop", "WETH", 0, 0, 10, 1, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	byBridge := map[string]ContrastRow{}
	for _, r := range rows[1:] {
		byBridge[r.Bridge] = r
	}

	sg := byBridge["stargate"]
	require.True(t, sg.NetDoDPct.Valid)
	assert.True(t, sg.NetDoDPct.Decimal.Equal(decimal.NewFromFloat(0.5)), "got %s", sg.NetDoDPct.Decimal)

	ac := byBridge["across"]
	assert.True(t, ac.PrevNetUSD.Valid)
	assert.False(t, ac.NetDoDPct.Valid, "zero reference must yield null, got %v", ac.NetDoDPct)

	hp := byBridge["hop"]
	assert.False(t, hp.PrevNetUSD.Valid)
	assert.False(t, hp.NetDoDPct.Valid)
	assert.False(t, hp.NetVs7dPct.Valid)
}

func TestBuildContrastTrailingAverageOverPresentDays(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day, "stargate", "USDC", 0, 0, 100, 2, 2),
		// Only two of the seven trailing days have data.
		flow(day.AddDate(0, 0, -2), "stargate", "USDC", 0, 0, 40, 3, 1),
		flow(day.AddDate(0, 0, -5), "stargate", "USDC", 0, 0, 60, 5, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	chain := rows[0]
	require.True(t, chain.AvgNetUSD7.Valid)
	assert.True(t, chain.AvgNetUSD7.Decimal.Equal(decimal.NewFromInt(50)), "got %s", chain.AvgNetUSD7.Decimal)
	require.True(t, chain.AvgTxs7.Valid)
	assert.True(t, chain.AvgTxs7.Decimal.Equal(decimal.NewFromInt(4)))

	require.True(t, chain.NetVs7dPct.Valid)
	assert.True(t, chain.NetVs7dPct.Decimal.Equal(decimal.NewFromInt(1)), "got %s", chain.NetVs7dPct.Decimal)

	// Yesterday itself had no rows.
	assert.False(t, chain.PrevNetUSD.Valid)
	assert.Nil(t, chain.PrevTxs)
	assert.False(t, chain.NetDoDPct.Valid)
}

func TestBuildContrastEmptyDayKeepsChainRow(t *testing.T) {
	day := mustDay(t, "2024-01-15")

	rows := BuildContrast(day, "ethereum", nil)
	require.Len(t, rows, 1)
	chain := rows[0]
	assert.Equal(t, LevelChain, chain.Level)
	assert.True(t, chain.NetUSD.IsZero())
	assert.False(t, chain.PrevNetUSD.Valid)
	assert.False(t, chain.AvgNetUSD7.Valid)
	assert.False(t, chain.NetDoDPct.Valid)
	assert.False(t, chain.NetVs7dPct.Valid)
	assert.False(t, chain.NetShareOfChain.Valid)
}

func TestBuildContrastNoFlowsTodayWithHistory(t *testing.T) {
	// End-to-end shape of the quiet-day scenario: history exists, today does
	// not. The chain row survives with zero today-aggregates and a DoD of -1.
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day.AddDate(0, 0, -1), "stargate", "USDC", 500, 100, 400, 7, 3),
		flow(day.AddDate(0, 0, -3), "stargate", "USDC", 100, 50, 50, 2, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	require.Len(t, rows, 1)
	chain := rows[0]
	assert.True(t, chain.NetUSD.IsZero())
	require.True(t, chain.PrevNetUSD.Valid)
	assert.True(t, chain.PrevNetUSD.Decimal.Equal(decimal.NewFromInt(400)))
	require.True(t, chain.NetDoDPct.Valid)
	assert.True(t, chain.NetDoDPct.Decimal.Equal(decimal.NewFromInt(-1)), "got %s", chain.NetDoDPct.Decimal)
	require.True(t, chain.AvgNetUSD7.Valid)
	assert.True(t, chain.AvgNetUSD7.Decimal.Equal(decimal.NewFromInt(225)))
}

func TestBuildContrastIgnoresRowsOutsideWindow(t *testing.T) {
	day := mustDay(t, "2024-01-15")
	window := []DailyFlow{
		flow(day, "stargate", "USDC", 0, 0, 100, 1, 1),
		flow(day.AddDate(0, 0, -8), "stargate", "USDC", 0, 0, 9999, 1, 1),
		flow(day.AddDate(0, 0, 1), "stargate", "USDC", 0, 0, 9999, 1, 1),
	}

	rows := BuildContrast(day, "ethereum", window)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].AvgNetUSD7.Valid)
	assert.True(t, rows[0].NetUSD.Equal(decimal.NewFromInt(100)))
}

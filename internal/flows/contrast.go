package flows

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// bridgeKey identifies one bridge×token series inside a chain.
type bridgeKey struct {
	Bridge string
	Token  string
}

type totals struct {
	In      decimal.Decimal
	Out     decimal.Decimal
	Net     decimal.Decimal
	Txs     int64
	Wallets int64
	Seen    bool
}

func (t *totals) add(f DailyFlow) {
	t.In = t.In.Add(f.InUSD)
	t.Out = t.Out.Add(f.OutUSD)
	t.Net = t.Net.Add(f.NetUSD)
	t.Txs += f.TxCount
	t.Wallets += f.UniqueWallets
	t.Seen = true
}

// BuildContrast derives the full contrast row set for (day, chain) from raw
// warehouse rows covering [day-7, day]. Rows outside that window are ignored.
//
// The result always contains exactly one chain-level row (first), followed by
// bridge-level rows ordered by descending |today net|, ties broken by bridge
// then token. The reference windows follow the warehouse convention: yesterday
// is day-1, the trailing average spans [day-7, day-1] and averages over the
// days that actually have data.
func BuildContrast(day time.Time, chain string, window []DailyFlow) []ContrastRow {
	dayISO := day.Format(DayFormat)
	prevDay := day.AddDate(0, 0, -1)
	windowStart := day.AddDate(0, 0, -7)

	var chainToday, chainPrev totals
	chainByDay := map[string]*totals{}

	bridgeToday := map[bridgeKey]*totals{}
	bridgePrev := map[bridgeKey]*totals{}
	bridgeByDay := map[bridgeKey]map[string]*totals{}

	for _, f := range window {
		if f.Day.Before(windowStart) || f.Day.After(day) {
			continue
		}
		key := bridgeKey{Bridge: f.Bridge, Token: f.Token}

		switch {
		case sameDay(f.Day, day):
			chainToday.add(f)
			upsertTotals(bridgeToday, key).add(f)
		case sameDay(f.Day, prevDay):
			chainPrev.add(f)
			upsertTotals(bridgePrev, key).add(f)
		}

		// Trailing window excludes the subject day itself.
		if !sameDay(f.Day, day) {
			dk := f.Day.Format(DayFormat)
			upsertTotals(chainByDay, dk).add(f)
			series, ok := bridgeByDay[key]
			if !ok {
				series = map[string]*totals{}
				bridgeByDay[key] = series
			}
			upsertTotals(series, dk).add(f)
		}
	}

	chainAvg := averageTotals(chainByDay)

	chainRow := ContrastRow{
		Level:   LevelChain,
		Bridge:  TotalBridge,
		Token:   AllTokens,
		Day:     dayISO,
		Chain:   chain,
		InUSD:   chainToday.In,
		OutUSD:  chainToday.Out,
		NetUSD:  chainToday.Net,
		Txs:     chainToday.Txs,
		Wallets: chainToday.Wallets,
	}
	if chainPrev.Seen {
		chainRow.PrevInUSD = valid(chainPrev.In)
		chainRow.PrevOutUSD = valid(chainPrev.Out)
		chainRow.PrevNetUSD = valid(chainPrev.Net)
		txs, wallets := chainPrev.Txs, chainPrev.Wallets
		chainRow.PrevTxs = &txs
		chainRow.PrevWallets = &wallets
	}
	if chainAvg != nil {
		chainRow.AvgInUSD7 = valid(chainAvg.In)
		chainRow.AvgOutUSD7 = valid(chainAvg.Out)
		chainRow.AvgNetUSD7 = valid(chainAvg.Net)
		chainRow.AvgTxs7 = valid(chainAvg.AvgTxs)
		chainRow.AvgWallets7 = valid(chainAvg.AvgWallets)
	}
	chainRow.NetDoDPct = pctChange(chainToday.Net, chainRow.PrevNetUSD)
	chainRow.NetVs7dPct = pctChange(chainToday.Net, chainRow.AvgNetUSD7)

	// Share denominators come from the bridge rows themselves rather than the
	// chain aggregate, so the two levels cannot drift apart.
	chainNet := decimal.Zero
	for _, t := range bridgeToday {
		chainNet = chainNet.Add(t.Net)
	}

	bridgeRows := make([]ContrastRow, 0, len(bridgeToday))
	for key, today := range bridgeToday {
		row := ContrastRow{
			Level:   LevelBridge,
			Bridge:  key.Bridge,
			Token:   key.Token,
			Day:     dayISO,
			Chain:   chain,
			InUSD:   today.In,
			OutUSD:  today.Out,
			NetUSD:  today.Net,
			Txs:     today.Txs,
			Wallets: today.Wallets,
		}
		if prev, ok := bridgePrev[key]; ok {
			row.PrevInUSD = valid(prev.In)
			row.PrevOutUSD = valid(prev.Out)
			row.PrevNetUSD = valid(prev.Net)
		}
		if avg := averageTotals(bridgeByDay[key]); avg != nil {
			row.AvgInUSD7 = valid(avg.In)
			row.AvgOutUSD7 = valid(avg.Out)
			row.AvgNetUSD7 = valid(avg.Net)
		}
		row.NetDoDPct = pctChange(today.Net, row.PrevNetUSD)
		row.NetVs7dPct = pctChange(today.Net, row.AvgNetUSD7)
		row.NetShareOfChain = shareOf(today.Net, chainNet)
		bridgeRows = append(bridgeRows, row)
	}

	sort.Slice(bridgeRows, func(i, j int) bool {
		a, b := bridgeRows[i], bridgeRows[j]
		cmp := a.NetUSD.Abs().Cmp(b.NetUSD.Abs())
		if cmp != 0 {
			return cmp > 0
		}
		if a.Bridge != b.Bridge {
			return a.Bridge < b.Bridge
		}
		return a.Token < b.Token
	})

	return append([]ContrastRow{chainRow}, bridgeRows...)
}

// pctChange returns (today-ref)/ref, null when the reference is null or zero.
func pctChange(today decimal.Decimal, ref decimal.NullDecimal) decimal.NullDecimal {
	if !ref.Valid || ref.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return valid(today.Sub(ref.Decimal).Div(ref.Decimal))
}

// shareOf returns net/chainNet, null when the chain net is zero.
func shareOf(net, chainNet decimal.Decimal) decimal.NullDecimal {
	if chainNet.IsZero() {
		return decimal.NullDecimal{}
	}
	return valid(net.Div(chainNet))
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func upsertTotals[K comparable](m map[K]*totals, key K) *totals {
	t, ok := m[key]
	if !ok {
		t = &totals{}
		m[key] = t
	}
	return t
}

type averaged struct {
	In         decimal.Decimal
	Out        decimal.Decimal
	Net        decimal.Decimal
	AvgTxs     decimal.Decimal
	AvgWallets decimal.Decimal
}

// averageTotals averages per-day totals over the days present. Returns nil
// when the window holds no data at all, so callers keep the fields null.
func averageTotals(byDay map[string]*totals) *averaged {
	if len(byDay) == 0 {
		return nil
	}
	n := decimal.NewFromInt(int64(len(byDay)))
	var in, out, net decimal.Decimal
	var txs, wallets int64
	for _, t := range byDay {
		in = in.Add(t.In)
		out = out.Add(t.Out)
		net = net.Add(t.Net)
		txs += t.Txs
		wallets += t.Wallets
	}
	return &averaged{
		In:         in.Div(n),
		Out:        out.Div(n),
		Net:        net.Div(n),
		AvgTxs:     decimal.NewFromInt(txs).Div(n),
		AvgWallets: decimal.NewFromInt(wallets).Div(n),
	}
}

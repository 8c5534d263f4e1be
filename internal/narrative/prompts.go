package narrative

// Fixed instruction templates, one per branch. Output length is bounded by
// the model's own token budget, not post-hoc truncation.

const promptAnomaly = "You are a risk analyst for cross-chain monitoring. Based on the provided anomalous bridges and evidence, " +
	"write a concise English 'Cross-Chain Flow Briefing'. Include:\n" +
	"1) One-line conclusion: which chain/bridge shows a significant anomaly;\n" +
	"2) Bullet points: bridge×token net flow, tx count, unique wallets;\n" +
	"3) 2–3 cautious hypotheses (e.g., arbitrage, asset migration, bridge rebalancing);\n" +
	"4) Action items. Tone: factual, concise, 150–220 words."

const promptRoutine = "You are a risk analyst for cross-chain monitoring. You are given chain-level totals and top bridge×token net flows " +
	"with comparisons (today vs yesterday vs 7d avg). Produce an English 'No Significant Anomaly' note:\n" +
	"1) Chain-level: in/out/net vs yesterday and 7d avg (direction, magnitude, typical range);\n" +
	"2) Top 2–3 bridge×token items: net flow, share of chain net, diffs vs yesterday/7d avg;\n" +
	"3) Why this is 'no anomaly' (e.g., within historical band, routine settlement/routing);\n" +
	"4) One actionable note. Tone: factual, 150–220 words."

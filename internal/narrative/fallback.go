package narrative

import (
	"fmt"
	"strings"

	"xchain-radar/internal/flows"
)

const fallbackTopFlows = 5

// Fallback renders a deterministic briefing from evidence already in hand.
// It has no external dependency and must never fail; the reason string is
// reproduced verbatim in the conclusion line so callers can grep for it.
func Fallback(day string, rows []flows.EvidenceRow, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Cross-Chain Flow Briefing | %s]\n", day)
	fmt.Fprintf(&b, "Conclusion: %s.\n", reason)

	if len(rows) == 0 {
		b.WriteString("Top flows: none.\n")
	} else {
		b.WriteString("Top flows:\n")
		top := rows
		if len(top) > fallbackTopFlows {
			top = top[:fallbackTopFlows]
		}
		for _, r := range top {
			fmt.Fprintf(&b, "- %s/%s %s: net≈%s, tx=%d, wallets=%d\n",
				r.Chain, r.Bridge, r.Token, r.NetUSD.String(), r.TxCount, r.UniqueWallets)
		}
	}

	b.WriteString("Action: keep watching major bridges/tokens; set threshold alerts for large addresses.")
	return b.String()
}

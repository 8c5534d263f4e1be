package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"xchain-radar/internal/app"
	"xchain-radar/internal/flows"
)

var (
	attestChain string
	attestDay   string
	attestStart string
	attestEnd   string
	attestTZ    string
	attestDry   bool
)

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Publish briefing digests on chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AttestOptions{
			Chain:  attestChain,
			DryRun: attestDry,
		}

		if attestDay != "" {
			day, err := flows.ParseDay(attestDay)
			if err != nil {
				return fmt.Errorf("invalid --day value: %w", err)
			}
			opts.Day = &day
		}

		if attestStart != "" {
			start, err := flows.ParseDay(attestStart)
			if err != nil {
				return fmt.Errorf("invalid --start value: %w", err)
			}
			opts.Start = &start
		}

		if attestEnd != "" {
			end, err := flows.ParseDay(attestEnd)
			if err != nil {
				return fmt.Errorf("invalid --end value: %w", err)
			}
			opts.End = &end
		}

		if attestTZ != "" {
			loc, err := time.LoadLocation(attestTZ)
			if err != nil {
				return fmt.Errorf("invalid --tz value: %w", err)
			}
			opts.Location = loc
		}

		return getApp().Attest(cmd.Context(), opts)
	},
}

func init() {
	attestCmd.Flags().StringVar(&attestChain, "chain", "", "Chain label recorded in the attestation (defaults to config)")
	attestCmd.Flags().StringVar(&attestDay, "day", "", "Day to attest (YYYY-MM-DD)")
	attestCmd.Flags().StringVar(&attestStart, "start", "", "First day of an attestation range (YYYY-MM-DD, inclusive)")
	attestCmd.Flags().StringVar(&attestEnd, "end", "", "Last day of an attestation range (YYYY-MM-DD, inclusive)")
	attestCmd.Flags().StringVar(&attestTZ, "tz", "", "Timezone for the default yesterday (defaults to config)")
	attestCmd.Flags().BoolVar(&attestDry, "dry", false, "Print what would be published without sending transactions")
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"xchain-radar/internal/app"
	"xchain-radar/internal/flows"
)

var (
	explainDay   string
	explainChain string
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Run the briefing pipeline once and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExplainOptions{
			Chain: explainChain,
		}

		if explainDay != "" {
			day, err := flows.ParseDay(explainDay)
			if err != nil {
				return fmt.Errorf("invalid --day value: %w", err)
			}
			opts.Day = &day
		}

		return getApp().Explain(cmd.Context(), opts)
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainDay, "day", "", "Day to brief (YYYY-MM-DD, defaults to yesterday)")
	explainCmd.Flags().StringVar(&explainChain, "chain", "", "Chain to brief (defaults to config)")
}

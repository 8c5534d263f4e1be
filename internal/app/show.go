package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"xchain-radar/internal/anomaly"
	"xchain-radar/internal/flows"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints recent briefings.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show briefings")
	}
	if closeStore != nil {
		defer closeStore()
	}

	briefings, err := store.ListRecentBriefings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(briefings) == 0 {
		fmt.Fprintln(os.Stdout, "no briefings found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tModel\tRows\tAnomaly\tCreated (UTC)\tSummary")

	for _, b := range briefings {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%v\t%s\t%s\n",
			b.Day.Format(flows.DayFormat),
			b.Model,
			b.EvidenceRowCount(),
			anomaly.FromText(b.SummaryText),
			b.CreatedAt.UTC().Format(time.RFC3339),
			summaryPreview(b.SummaryText, 80),
		)
	}

	writer.Flush()
	return nil
}

func summaryPreview(v string, max int) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	runes := []rune(cleaned)
	if len(runes) <= max {
		return cleaned
	}
	return string(runes[:max]) + "…"
}

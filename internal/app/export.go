package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"xchain-radar/internal/flows"
	"xchain-radar/internal/storage"
)

// ExportOptions hold parameters for exporting chain-level flow history.
type ExportOptions struct {
	Chain     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders historical daily net flow as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	chain := opts.Chain
	if chain == "" {
		chain = a.Config.Radar.Chain
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	to := flows.Yesterday(loc)
	if opts.To != nil {
		to = *opts.To
	}

	from := to.AddDate(0, 0, -(opts.MaxPoints - 1))
	if opts.From != nil {
		from = *opts.From
	}

	if from.After(to) {
		return errors.New("from must not be after to")
	}

	points, err := store.ChainDailyNet(ctx, chain, from, to)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Msg("no flow history found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting flow history")

	if opts.CSVPath != "" {
		if err := writeFlowsCSV(opts.CSVPath, chain, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeFlowsPNG(opts.PNGPath, chain, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePoints(points []storage.FlowPoint, max int) []storage.FlowPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]storage.FlowPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeFlowsCSV(path, chain string, points []storage.FlowPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"day", "chain", "net_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Day.Format(flows.DayFormat),
			chain,
			p.NetUSD.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeFlowsPNG(path, chain string, points []storage.FlowPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	net := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Day
		net[i] = p.NetUSD.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Net flow (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    chain + " net",
				XValues: x,
				YValues: net,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

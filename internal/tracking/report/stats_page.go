package report

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// WriteStatsPage renders per-event cycle statistics as a standalone HTML
// page: stacked stage counts per event, with aborted events marked.
func WriteStatsPage(w io.Writer, results []pipeline.Result) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(countsChart(results), overlapChart(results))
	return page.Render(w)
}

func eventLabels(results []pipeline.Result) []string {
	x := make([]string, len(results))
	for i, r := range results {
		x[i] = strconv.FormatInt(r.EventID, 10)
	}
	return x
}

func countsChart(results []pipeline.Result) *charts.Bar {
	n := len(results)
	segs := make([]opts.BarData, n)
	cands := make([]opts.BarData, n)
	tracks := make([]opts.BarData, n)
	aborts := make([]opts.BarData, n)
	var totals pipeline.Summary
	for i, r := range results {
		totals.Add(r)
		segs[i] = opts.BarData{Value: r.Stats.SurvivingSegments}
		cands[i] = opts.BarData{Value: r.Stats.Candidates}
		tracks[i] = opts.BarData{Value: len(r.Tracks)}
		aborts[i] = opts.BarData{Value: r.Stats.Aborts, Name: r.AbortReason}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track finder", Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Cycle stages",
			Subtitle: strconv.Itoa(totals.Events) + " events, " + strconv.Itoa(totals.Totals.Tracks) + " tracks, " + strconv.Itoa(totals.Totals.Aborts) + " aborted",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "event"}),
	)
	bar.SetXAxis(eventLabels(results)).
		AddSeries("segments", segs, charts.WithBarChartOpts(opts.BarChart{Stack: "stages"})).
		AddSeries("candidates", cands, charts.WithBarChartOpts(opts.BarChart{Stack: "stages"})).
		AddSeries("tracks", tracks, charts.WithBarChartOpts(opts.BarChart{Stack: "stages"})).
		AddSeries("aborted", aborts)
	return bar
}

func overlapChart(results []pipeline.Result) *charts.Bar {
	n := len(results)
	overlapping := make([]opts.BarData, n)
	cleaned := make([]opts.BarData, n)
	residual := make([]opts.BarData, n)
	for i, r := range results {
		overlapping[i] = opts.BarData{Value: r.Stats.Overlapping}
		cleaned[i] = opts.BarData{Value: r.Stats.Cleaned}
		residual[i] = opts.BarData{Value: r.Stats.ResidualOverlap}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Overlap resolution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(eventLabels(results)).
		AddSeries("overlapping", overlapping).
		AddSeries("cleaned", cleaned).
		AddSeries("residual", residual)
	return bar
}

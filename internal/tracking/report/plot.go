package report

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/trackfinder/internal/monitoring"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

// PlotEvent draws the tracks of one cycle in the transverse (XY) plane and
// saves the plot to path. The image format follows the file extension.
func PlotEvent(r pipeline.Result, path string) error {
	p := plot.New()
	if r.Aborted {
		p.Title.Text = fmt.Sprintf("Event %d - aborted: %s", r.EventID, r.AbortReason)
	} else {
		p.Title.Text = fmt.Sprintf("Event %d - %d tracks", r.EventID, len(r.Tracks))
	}
	p.X.Label.Text = "X (cm)"
	p.Y.Label.Text = "Y (cm)"

	colors := generateColors(len(r.Tracks))
	for i, t := range r.Tracks {
		if len(t.Hits) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(t.Hits))
		for _, h := range t.Hits {
			pts = append(pts, plotter.XY{X: h.Position.X, Y: h.Position.Y})
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("track %d: %w", t.ID, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		points.Color = colors[i]
		points.Shape = draw.CircleGlyph{}
		points.Radius = vg.Points(2)
		p.Add(line, points)
		p.Legend.Add(fmt.Sprintf("%s #%d pT=%.2f", t.Pass, t.ID, t.PT), line, points)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plot directory: %w", err)
		}
	}
	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

// PlotExporter writes one PNG per cycle into Dir.
type PlotExporter struct {
	Dir string
}

// Path returns the file an event is plotted to.
func (e PlotExporter) Path(eventID int64) string {
	return filepath.Join(e.Dir, fmt.Sprintf("event_%06d.png", eventID))
}

// Export implements pipeline.Exporter.
func (e PlotExporter) Export(ctx context.Context, r pipeline.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := e.Path(r.EventID)
	if err := PlotEvent(r, path); err != nil {
		return fmt.Errorf("event %d: %w", r.EventID, err)
	}
	monitoring.Logf("[report] wrote %s (%d tracks)", path, len(r.Tracks))
	return nil
}

// generateColors returns n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

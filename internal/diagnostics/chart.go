package diagnostics

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/storyboard.xr/internal/fsutil"
)

// series is one plotted line.
type series struct {
	name  string
	value func(Sample) float64
	color color.RGBA
	// dashed lines distinguish distances from angles in the static plot.
	dashed bool
}

var angleSeries = []series{
	{"left angle", func(s Sample) float64 { return s.LeftAngleDeg }, color.RGBA{R: 31, G: 119, B: 180, A: 255}, false},
	{"right angle", func(s Sample) float64 { return s.RightAngleDeg }, color.RGBA{R: 255, G: 127, B: 14, A: 255}, false},
}

var tapSeries = []series{
	{"left tap", func(s Sample) float64 { return s.LeftTapM * 100 }, color.RGBA{R: 31, G: 119, B: 180, A: 255}, true},
	{"right tap", func(s Sample) float64 { return s.RightTapM * 100 }, color.RGBA{R: 255, G: 127, B: 14, A: 255}, true},
}

// lineData converts a series to echarts points. Unmeasured frames become
// gaps.
func lineData(samples []Sample, value func(Sample) float64) []opts.LineData {
	data := make([]opts.LineData, len(samples))
	for i, s := range samples {
		v := value(s)
		if math.IsNaN(v) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: v}
	}
	return data
}

func newLineChart(title, yName string, samples []Sample, set []series) *charts.Line {
	x := make([]string, len(samples))
	for i, s := range samples {
		x[i] = strconv.FormatUint(s.Frame, 10)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gesture history", Width: "100%", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x)
	for _, s := range set {
		line.AddSeries(s.name, lineData(samples, s.value),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

// RenderChart writes an HTML page with the angle and tap-distance
// histories.
func RenderChart(w io.Writer, samples []Sample) error {
	page := components.NewPage()
	page.SetPageTitle("Gesture history")
	page.AddCharts(
		newLineChart("Thumb/index angle", "degrees", samples, angleSeries),
		newLineChart("Tap distance", "cm", samples, tapSeries),
	)
	return page.Render(w)
}

// NewPlot builds a static plot of the angle history with tap distance in
// centimetres on the same axis. Unmeasured frames are left out.
func NewPlot(samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Gesture history"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "angle (deg) / tap distance (cm)"
	p.Add(plotter.NewGrid())

	for _, s := range append(append([]series(nil), angleSeries...), tapSeries...) {
		pts := make(plotter.XYs, 0, len(samples))
		for _, sm := range samples {
			v := s.value(sm)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(sm.Frame), Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s line: %w", s.name, err)
		}
		l.Color = s.color
		l.Width = vg.Points(1)
		if s.dashed {
			l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(l)
		p.Legend.Add(s.name, l)
	}
	return p, nil
}

// WritePlotPNG renders the plot as a PNG.
func WritePlotPNG(w io.Writer, samples []Sample) error {
	p, err := NewPlot(samples)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePlot writes the plot as a PNG to path, creating parent directories.
func SavePlot(fsys fsutil.FileSystem, path string, samples []Sample) error {
	return save(fsys, path, func(w io.Writer) error { return WritePlotPNG(w, samples) })
}

// SaveChart writes the HTML chart to path, creating parent directories.
func SaveChart(fsys fsutil.FileSystem, path string, samples []Sample) error {
	return save(fsys, path, func(w io.Writer) error { return RenderChart(w, samples) })
}

func save(fsys fsutil.FileSystem, path string, render func(io.Writer) error) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (h *History) handleChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := RenderChart(&buf, h.Samples()); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (h *History) handlePlot(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := WritePlotPNG(&buf, h.Samples()); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// AttachDebugRoutes mounts the chart and plot under /debug/gesture/.
func (h *History) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("gesture/chart", "Gesture angle and tap history (interactive)", http.HandlerFunc(h.handleChart))
	debug.Handle("gesture/plot.png", "Gesture angle and tap history (PNG)", http.HandlerFunc(h.handlePlot))
}

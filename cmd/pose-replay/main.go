// Command pose-replay runs recorded hand-tracking traffic through the
// gesture engine offline.
//
// The capture is a pcap of the UDP pose datagrams the headset bridge sends.
// Frames are evaluated on capture-time boundaries, so a replay produces the
// same events the live service would have.
//
// Usage:
//
//	go run ./cmd/pose-replay -pcap session.pcap [flags]
//
// Flags:
//
//	-pcap      Path to the capture (required)
//	-port      UDP destination port to replay, 0 for all (default: 5560)
//	-rate      Frame rate in Hz (default: tuning file or 90)
//	-config    Tuning JSON file for thresholds
//	-events    Print every event as it is emitted
//	-plot      Write the angle/tap history to a PNG
//	-chart     Write the angle/tap history to an HTML chart
//
// Output paths must lie under the working directory or the temp directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/config"
	"github.com/banshee-data/storyboard.xr/internal/diagnostics"
	"github.com/banshee-data/storyboard.xr/internal/fsutil"
	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/monitoring"
	"github.com/banshee-data/storyboard.xr/internal/security"
	"github.com/banshee-data/storyboard.xr/internal/tracking"
)

// replayConfig holds the settings of one replay.
type replayConfig struct {
	PCAPFile   string
	Port       int
	FrameRate  float64
	Tuning     *config.TuningConfig
	Events     bool
	PlotPath   string
	ChartPath  string
	HistoryCap int

	// FS receives the plot and chart; nil writes to disk.
	FS fsutil.FileSystem
}

func main() {
	pcapFile := flag.String("pcap", "", "Path to the pose capture (required)")
	port := flag.Int("port", 5560, "UDP destination port to replay (0 for all)")
	rate := flag.Float64("rate", 0, "Frame rate in Hz (0 uses the tuning file)")
	tuningPath := flag.String("config", "", "Tuning JSON file for thresholds")
	events := flag.Bool("events", false, "Print every event")
	plotPath := flag.String("plot", "", "Write the angle/tap history to this PNG")
	chartPath := flag.String("chart", "", "Write the angle/tap history to this HTML file")
	historyCap := flag.Int("history", 100000, "Maximum frames kept for -plot and -chart")
	quiet := flag.Bool("quiet", false, "Suppress component logs")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := replayConfig{
		PCAPFile:   *pcapFile,
		Port:       *port,
		FrameRate:  *rate,
		Tuning:     tuning,
		Events:     *events,
		PlotPath:   *plotPath,
		ChartPath:  *chartPath,
		HistoryCap: *historyCap,
	}
	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
}

// run reads the capture and replays it.
func run(ctx context.Context, cfg replayConfig, out io.Writer) error {
	datagrams, err := tracking.ReadPCAPFile(cfg.PCAPFile, cfg.Port)
	if err != nil {
		return err
	}
	log.Printf("read %d datagrams from %s", len(datagrams), cfg.PCAPFile)
	_, err = replay(ctx, datagrams, cfg, out)
	return err
}

// replay drives a fresh engine over datagrams, prints a summary and writes
// the requested history outputs.
func replay(ctx context.Context, datagrams []tracking.Datagram, cfg replayConfig, out io.Writer) (tracking.ReplaySummary, error) {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	interval := tuning.GetFrameInterval()
	if cfg.FrameRate > 0 {
		interval = time.Duration(float64(time.Second) / cfg.FrameRate)
	}

	var sink gesture.Sink = gesture.SinkFunc(func(gesture.Event) {})
	if cfg.Events {
		sink = gesture.SinkFunc(func(ev gesture.Event) {
			fmt.Fprintf(out, "frame %6d  %-13s %-5s  t=%d\n", ev.Frame, ev.Kind, ev.Chirality, ev.TimestampNanos)
		})
	}
	engine := gesture.NewEngine(gesture.Thresholds{
		LShapeAngleDeg: tuning.GetLShapeAngleDeg(),
		TapDistanceM:   tuning.GetTapDistanceM(),
	}, sink)

	history := diagnostics.NewHistory(cfg.HistoryCap)
	stats := tracking.NewPoseStats()
	r := &tracking.Replayer{
		Engine:    engine,
		Interval:  interval,
		Observers: []tracking.Observer{history},
		Stats:     stats,
	}
	sum, err := r.Replay(ctx, datagrams)
	if err != nil {
		return sum, err
	}
	printSummary(out, sum, stats.GetAndReset())

	fsys := cfg.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	outputs := []struct {
		path string
		save func(fsutil.FileSystem, string, []diagnostics.Sample) error
	}{
		{cfg.PlotPath, diagnostics.SavePlot},
		{cfg.ChartPath, diagnostics.SaveChart},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := security.ValidateOutputPath(o.path); err != nil {
			return sum, err
		}
		if err := o.save(fsys, o.path, history.Samples()); err != nil {
			return sum, err
		}
		log.Printf("wrote %s", o.path)
	}
	return sum, nil
}

func printSummary(out io.Writer, sum tracking.ReplaySummary, poses tracking.Snapshot) {
	fmt.Fprintf(out, "datagrams:     %d (%d decode errors)\n", sum.Datagrams, sum.DecodeErrors)
	fmt.Fprintf(out, "poses:         %d left, %d right\n", poses.Left, poses.Right)
	fmt.Fprintf(out, "frames:        %d over %v\n", sum.Frames, sum.Duration)

	kinds := make([]string, 0, len(sum.Events))
	for k := range sum.Events {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "%-14s %d\n", k+":", sum.Events[gesture.EventKind(k)])
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/api"
	"github.com/banshee-data/storyboard.xr/internal/config"
	"github.com/banshee-data/storyboard.xr/internal/db"
	"github.com/banshee-data/storyboard.xr/internal/diagnostics"
	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/preview"
	"github.com/banshee-data/storyboard.xr/internal/storyboard"
	"github.com/banshee-data/storyboard.xr/internal/stream"
	"github.com/banshee-data/storyboard.xr/internal/timeutil"
	"github.com/banshee-data/storyboard.xr/internal/tracking"
	"github.com/banshee-data/storyboard.xr/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode with synthetic hand poses instead of UDP")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	udpAddr     = flag.String("udp", tracking.DefaultAddress, "UDP address for pose datagrams (ignored in dev mode)")
	udpRcvBuf   = flag.Int("udp-rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	grpcAddr    = flag.String("grpc", stream.DefaultConfig().ListenAddr, "gRPC gesture event stream address")
	dbPath      = flag.String("db", "storyboard.db", "SQLite database path")
	tuningPath  = flag.String("config", config.DefaultConfigPath, "Tuning config JSON file")
	watchConfig = flag.Bool("watch-config", true, "Reload the tuning file when it changes")
	startScene  = flag.Int("scene", 1, "Scene to storyboard at startup")
	staleAfter  = flag.Duration("stale-after", 0, "Treat poses older than this as missing (0 keeps the last pose indefinitely)")
)

// appOptions are the startup settings that cannot change at runtime.
type appOptions struct {
	Scene      int
	StaleAfter time.Duration
	GRPCAddr   string
	Clock      timeutil.Clock
}

// app owns every long-running component of the service.
type app struct {
	db        *db.DB
	clock     timeutil.Clock
	slots     *tracking.PoseSlots
	engine    *gesture.Engine
	gate      *preview.Gate
	placeQ    *gesture.ChannelSink
	placer    *storyboard.Placer
	publisher *stream.Publisher
	runner    *tracking.Runner
	history   *diagnostics.History
	api       *api.Server
}

// newApp wires the event pipeline: the runner evaluates the engine, whose
// events fan out to the preview gate, the placer queue and the gRPC
// publisher.
func newApp(database *db.DB, tuning *config.TuningConfig, opts appOptions) *app {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.GRPCAddr == "" {
		opts.GRPCAddr = stream.DefaultConfig().ListenAddr
	}

	a := &app{db: database, clock: opts.Clock, slots: &tracking.PoseSlots{}}
	a.gate = preview.NewGate(tuning.GetShotForwardOffsetM())
	a.placeQ = gesture.NewChannelSink(tuning.GetEventBuffer(), gesture.EventPlace)
	a.publisher = stream.NewPublisher(stream.Config{
		ListenAddr:    opts.GRPCAddr,
		MaxClients:    tuning.GetMaxStreamClients(),
		ClientBuffer:  tuning.GetEventBuffer(),
		StatsInterval: tuning.GetStatsLogInterval(),
	})
	sink := gesture.Fanout{a.gate, a.placeQ, a.publisher}

	a.engine = gesture.NewEngine(thresholdsFrom(tuning), sink)
	session := storyboard.NewSession(opts.Scene)
	a.placer = storyboard.NewPlacer(database, session, storyboard.PlacerConfig{
		ForwardOffsetM: tuning.GetShotForwardOffsetM(),
		Clock:          opts.Clock,
	})
	a.history = diagnostics.NewHistory(tuning.GetHistoryLength())
	a.runner = tracking.NewRunner(tracking.RunnerConfig{
		Engine:     a.engine,
		Slots:      a.slots,
		Clock:      opts.Clock,
		Interval:   tuning.GetFrameInterval(),
		StaleAfter: opts.StaleAfter,
		Observers:  []tracking.Observer{a.history},
	})
	a.api = api.NewServer(api.Config{
		DB:              database,
		Engine:          a.engine,
		Gate:            a.gate,
		Session:         session,
		Sink:            sink,
		Clock:           opts.Clock,
		BlockerForwardM: tuning.GetBlockerForwardM(),
		BlockerDownM:    tuning.GetBlockerDownM(),
	})
	stream.RegisterService(a.publisher.GRPCServer(), stream.NewServer(a.publisher, a.api.RemoveFrame))
	return a
}

func thresholdsFrom(tuning *config.TuningConfig) gesture.Thresholds {
	return gesture.Thresholds{
		LShapeAngleDeg: tuning.GetLShapeAngleDeg(),
		TapDistanceM:   tuning.GetTapDistanceM(),
	}
}

// applyTuning pushes a reloaded tuning file into the running components.
// Buffer sizes, client limits and history length apply on restart.
func (a *app) applyTuning(tuning *config.TuningConfig) {
	th := thresholdsFrom(tuning)
	a.engine.SetThresholds(th)
	a.runner.SetInterval(tuning.GetFrameInterval())
	a.gate.SetForwardOffset(tuning.GetShotForwardOffsetM())
	a.placer.SetForwardOffset(tuning.GetShotForwardOffsetM())
	a.api.SetBlockerOffsets(tuning.GetBlockerForwardM(), tuning.GetBlockerDownM())
	log.Printf("applied tuning: l_shape=%.1f° tap=%.3fm rate=%.0fHz",
		th.LShapeAngleDeg, th.TapDistanceM, tuning.GetFrameRateHz())
}

// handler builds the HTTP surface: the JSON API plus debug routes.
func (a *app) handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/api/", a.api.ServeMux())

	// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
	if err := a.db.AttachAdminRoutes(mux); err != nil {
		return nil, fmt.Errorf("failed to attach admin routes: %w", err)
	}
	a.history.AttachDebugRoutes(mux)

	return api.LoggingMiddleware(mux), nil
}

// runOptions select the pose source and the listen addresses.
type runOptions struct {
	Dev        bool
	Listen     string
	UDPAddr    string
	UDPRcvBuf  int
	TuningPath string
	Watch      bool
}

// run starts every routine and blocks until ctx is cancelled and they
// have all stopped.
func (a *app) run(ctx context.Context, opts runOptions) error {
	h, err := a.handler()
	if err != nil {
		return err
	}
	if err := a.publisher.Start(); err != nil {
		return fmt.Errorf("failed to start gRPC publisher: %w", err)
	}

	var wg sync.WaitGroup

	// pose source: synthetic script in dev mode, UDP bridge otherwise
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if opts.Dev {
			log.Printf("dev mode: generating synthetic poses")
			err = tracking.NewSyntheticGenerator(a.slots, a.clock).Run(ctx, a.runner.Interval())
		} else {
			listener := tracking.NewUDPListener(tracking.UDPListenerConfig{
				Address: opts.UDPAddr,
				RcvBuf:  opts.UDPRcvBuf,
				Stats:   tracking.NewPoseStats(),
				Slots:   a.slots,
				Clock:   a.clock,
			})
			err = listener.Start(ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pose source failed: %v", err)
		}
		log.Print("pose source routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("frame loop failed: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.placer.Run(ctx, a.placeQ.Events()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("placer failed: %v", err)
		}
		placed, failed := a.placer.Stats()
		log.Printf("placer routine terminated: %d placed, %d failed", placed, failed)
	}()

	if opts.Watch && opts.TuningPath != "" {
		watcher, err := config.NewWatcher(opts.TuningPath, a.applyTuning)
		if err != nil {
			log.Printf("tuning hot reload disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = watcher.Run(ctx)
			}()
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    opts.Listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("HTTP API listening on %s", opts.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	a.publisher.Stop()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}

// loadTuning reads the tuning file, falling back to built-in defaults
// when it is missing or invalid.
func loadTuning(path string) *config.TuningConfig {
	if path == "" {
		return config.EmptyTuningConfig()
	}
	tuning, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Printf("using default tuning: %v", err)
		return config.EmptyTuningConfig()
	}
	log.Printf("loaded tuning from %s", path)
	return tuning
}

// Main
func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *startScene < 1 {
		log.Fatalf("scene must be at least 1, got %d", *startScene)
	}

	v := version.Current()
	log.Printf("storyboard %s (%s, built %s)", v.Version, v.GitSHA, v.BuildTime)

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(database, loadTuning(*tuningPath), appOptions{
		Scene:      *startScene,
		StaleAfter: *staleAfter,
		GRPCAddr:   *grpcAddr,
	})
	if err := a.run(ctx, runOptions{
		Dev:        *devMode,
		Listen:     *listen,
		UDPAddr:    *udpAddr,
		UDPRcvBuf:  *udpRcvBuf,
		TuningPath: *tuningPath,
		Watch:      *watchConfig,
	}); err != nil {
		log.Fatalf("storyboard failed: %v", err)
	}
}

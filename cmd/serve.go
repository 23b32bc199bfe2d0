package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/lookout/internal/alert"
	"github.com/andresmejia3/lookout/internal/camera"
	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/pipeline"
	"github.com/andresmejia3/lookout/internal/query"
	"github.com/andresmejia3/lookout/internal/registry"
	"github.com/andresmejia3/lookout/internal/server"
	"github.com/andresmejia3/lookout/internal/state"
	"github.com/andresmejia3/lookout/internal/utils"
	"github.com/andresmejia3/lookout/internal/worker"
)

// ServeOptions overrides configuration values for the serve command
type ServeOptions struct {
	Listen       string
	CameraDriver string
	Camera       string
	MQTTBroker   string
	Engines      int
	Threshold    float64
}

var serveOpts ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the camera and serve the annotated stream and API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyServeFlags(cmd, cfg, serveOpts); err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveOpts.Listen, "listen", "l", "0.0.0.0:8000", "HTTP listen address")
	f.StringVar(&serveOpts.CameraDriver, "camera-driver", "ffmpeg", "Capture driver (ffmpeg, opencv, still)")
	f.StringVar(&serveOpts.Camera, "camera", "/dev/video0", "Camera device, stream URL, index or image path")
	f.StringVar(&serveOpts.MQTTBroker, "mqtt-broker", "", "MQTT broker URL for alert publishing (e.g. tcp://localhost:1883)")
	f.IntVarP(&serveOpts.Engines, "engines", "e", 2, "Number of detection engine processes")
	f.Float64VarP(&serveOpts.Threshold, "threshold", "t", 0.5, "Similarity threshold for a suspect match")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, c *config.Config, opts ServeOptions) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		c.Listen = opts.Listen
	}
	if flags.Changed("camera-driver") {
		c.Camera.Driver = opts.CameraDriver
	}
	if flags.Changed("camera") {
		c.Camera.Device = opts.Camera
	}
	if flags.Changed("mqtt-broker") {
		c.Alerts.MQTT.Broker = opts.MQTTBroker
	}
	if flags.Changed("engines") {
		c.Detector.Engines = opts.Engines
	}
	if flags.Changed("threshold") {
		c.Recognition.SimilarityThreshold = opts.Threshold
	}
	if err := config.Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// startPool launches the detection engines described by the configuration.
func startPool(ctx context.Context, c *config.Config, size int) (*worker.Pool, error) {
	factory := worker.PythonFactory(worker.EngineConfig{
		Python:       c.Detector.Python,
		Script:       c.Detector.Script,
		DetThreshold: c.Detector.DetThreshold,
		ReadTimeout:  c.Detector.Timeout,
	})
	return worker.NewPool(ctx, size, c.Detector.AcquireWait, factory)
}

// loadRegistry opens the suspect directory and embeds every photo, showing progress on stderr.
func loadRegistry(ctx context.Context, dir string, pool *worker.Pool) (*registry.Registry, error) {
	reg, err := registry.New(dir, pool)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	n, err := reg.Load(ctx, func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("🧬 Loading suspects"),
				progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(done)
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "✅ %d suspect photo(s) loaded from %s\n", n, dir)
	return reg, nil
}

func runServe(parent context.Context, c *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	fmt.Fprintln(os.Stderr, "🚀 Starting detection engines...")
	pool, err := startPool(ctx, c, c.Detector.Engines)
	if err != nil {
		utils.ShowError("Failed to start detection engines", err, nil)
		return err
	}
	defer pool.Close()

	reg, err := loadRegistry(ctx, c.SuspectsDir, pool)
	if err != nil {
		utils.ShowError("Failed to load suspect directory", err, nil)
		return err
	}

	// Alert sinks. The database degrades to in-memory history when unreachable.
	sinks := []alert.Sink{alert.LogSink{}}
	var history alert.History
	db, err := openStore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("alert database unavailable, keeping history in memory")
	}
	if db != nil {
		defer db.Close()
		sinks = append(sinks, db)
		history = db
	} else {
		ring := alert.NewRing(c.Alerts.History)
		sinks = append(sinks, ring)
		history = ring
	}

	if c.Alerts.MQTT.Broker != "" {
		mq := alert.NewMQTTSink(c.Alerts.MQTT)
		if err := mq.Connect(ctx); err != nil {
			log.Warn().Err(err).Str("broker", c.Alerts.MQTT.Broker).Msg("MQTT unavailable, alerts will not be published")
		} else {
			defer mq.Disconnect()
			sinks = append(sinks, mq)
		}
	}

	hub := server.NewHub()
	defer hub.Close()
	sinks = append(sinks, hub)

	dispatcher := alert.NewDispatcher(alert.DefaultBuffer, alert.DefaultSendTimeout, sinks...)

	src, err := camera.New(c.Camera)
	if err != nil {
		utils.ShowError("Invalid camera configuration", err, nil)
		return err
	}

	frames := state.NewFrameState()
	dets := state.NewDetectionState()
	tracker := alert.NewTracker(c.Recognition.ConfirmFrames, c.Recognition.AlertCooldown)

	capture := pipeline.NewCaptureLoop(src, frames, c.Camera.RetryDelay)
	inference := pipeline.NewInferenceLoop(pipeline.InferenceConfig{
		SimilarityThreshold: c.Recognition.SimilarityThreshold,
		MinFaceSize:         c.Recognition.MinFaceSize,
		Yield:               c.Recognition.Yield,
	}, frames, dets, pool, reg, tracker, dispatcher)
	compositor := pipeline.NewCompositor(frames, dets, c.Stream.FPS, c.Stream.JPEGQuality)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		pool.RunHealthCheck(ctx, c.Detector.HealthCheck)
	}()
	go func() {
		defer wg.Done()
		// A missing camera leaves the API up; /check keeps answering WAITING.
		if err := capture.Run(ctx); err != nil {
			log.Error().Err(err).Msg("capture disabled")
		}
	}()
	go func() {
		defer wg.Done()
		inference.Run(ctx)
	}()

	srv := server.New(server.Deps{
		Registry:  reg,
		Query:     query.NewService(dets, pool, reg, c.Recognition.SimilarityThreshold),
		History:   history,
		Hub:       hub,
		NewStream: func() server.Streamer { return compositor },
		Health: func() any {
			return healthReport(capture, inference, compositor, dets, dispatcher, pool, reg)
		},
		OnRemove: tracker.Forget,
	})

	fmt.Fprintf(os.Stderr, "👁️  Watching %s, serving on http://%s\n", src.Name(), c.Listen)
	serveErr := srv.ListenAndServe(ctx, c.Listen)

	// The loops only stop on cancellation; a failed listener must stop them too.
	if serveErr != nil && ctx.Err() == nil {
		utils.ShowError("HTTP server failed", serveErr, nil)
		cancel()
		return errors.Join(serveErr, waitTimeout(&wg, 10*time.Second))
	}

	if err := waitTimeout(&wg, 10*time.Second); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	fmt.Fprintln(os.Stderr, "👋 Lookout stopped.")
	return serveErr
}

type healthStats struct {
	FramesCaptured uint64                  `json:"frames_captured"`
	CaptureErrors  uint64                  `json:"capture_errors"`
	Inference      pipeline.InferenceStats `json:"inference"`
	LastCycle      *time.Time              `json:"last_cycle,omitempty"`
	Viewers        int64                   `json:"viewers"`
	Suspects       int                     `json:"suspects"`
	Alerts         alert.DispatcherStats   `json:"alerts"`
	Pool           worker.PoolMetrics      `json:"pool"`
}

func healthReport(
	capture *pipeline.CaptureLoop,
	inference *pipeline.InferenceLoop,
	compositor *pipeline.Compositor,
	dets *state.DetectionState,
	dispatcher *alert.Dispatcher,
	pool *worker.Pool,
	reg *registry.Registry,
) healthStats {
	h := healthStats{
		FramesCaptured: capture.Captured(),
		CaptureErrors:  capture.Failures(),
		Inference:      inference.Stats(),
		Viewers:        compositor.Viewers(),
		Suspects:       reg.Len(),
		Alerts:         dispatcher.Stats(),
		Pool:           pool.Metrics(),
	}
	if snap := dets.Snapshot(); !snap.UpdatedAt.IsZero() {
		h.LastCycle = &snap.UpdatedAt
	}
	return h
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(d):
		return fmt.Errorf("background loops still running after %s", d)
	}
}

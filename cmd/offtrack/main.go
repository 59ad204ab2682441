// Package main provides the offtrack entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/app/cache"
	"github.com/mkaschke/offtrack/internal/app/library"
	"github.com/mkaschke/offtrack/internal/app/notify"
	"github.com/mkaschke/offtrack/internal/app/playback"
	"github.com/mkaschke/offtrack/internal/app/playlists"
	"github.com/mkaschke/offtrack/internal/app/reconcile"
	"github.com/mkaschke/offtrack/internal/infra/audio"
	"github.com/mkaschke/offtrack/internal/infra/catalog"
	"github.com/mkaschke/offtrack/internal/infra/config"
	"github.com/mkaschke/offtrack/internal/infra/intake"
	"github.com/mkaschke/offtrack/internal/infra/logger"
	"github.com/mkaschke/offtrack/internal/infra/metrics"
	"github.com/mkaschke/offtrack/internal/infra/store"
	"github.com/mkaschke/offtrack/internal/infra/transfer"
)

var (
	app         = kingpin.New("offtrack", "offtrack offline music engine")
	configPath  = app.Flag("config", "Path to config file").Default("config/offtrack.yaml").String()
	verbose     = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile     = app.Flag("logfile", "Path to log file (default: stdout)").String()
	metricsAddr = app.Flag("metrics-addr", "Address for the Prometheus metrics endpoint (empty disables it)").String()

	// download command
	downloadCmd = app.Command("download", "Download a single track and exit")
	downloadID  = downloadCmd.Arg("track-id", "Catalog track ID").Required().String()

	// play command
	playCmd     = app.Command("play", "Play a stored playlist until interrupted")
	playID      = playCmd.Arg("playlist-id", "Playlist ID").Required().String()
	playShuffle = playCmd.Flag("shuffle", "Shuffle the queue").Bool()
	playRepeat  = playCmd.Flag("repeat", "Repeat the whole queue").Bool()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the engine (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	switch command {
	case downloadCmd.FullCommand():
		err = runDownload(cfg, *downloadID)
	case playCmd.FullCommand():
		err = runPlay(cfg, *playID)
	default:
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Engine error: %v", err)
		os.Exit(1)
	}
}

// engine bundles the wired components for one process lifetime.
type engine struct {
	store     store.Store
	cache     *cache.Cache
	library   *library.Registry
	playlists *playlists.Registry
	player    *playback.Engine
	queue     *playback.Controller
	outbox    *reconcile.Outbox
	loop      *reconcile.Loop
	metrics   *metrics.Metrics
}

// wire builds the component graph from the configuration.
func wire(ctx context.Context, cfg *config.Config) (*engine, error) {
	st, err := store.New(cfg.Storage.Backend, cfg.Storage.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	cacheOpts := []cache.Option{cache.WithMetrics(m)}
	if cfg.Cache.Mirror {
		cacheOpts = append(cacheOpts, cache.WithMirror(st))
	}
	ephemeral := cache.New(cacheOpts...)

	resolver, err := catalog.New(ctx, cfg.Catalog.Backend, cfg.Catalog.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog resolver: %w", err)
	}
	resolver = catalog.NewCachedResolver(resolver, ephemeral, cfg.CacheTTL())

	intakeClient := intake.NewClient(cfg.Intake.BaseURL, time.Duration(cfg.Intake.TimeoutSec)*time.Second)

	outbox, err := reconcile.NewOutbox(st, intakeClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox: %w", err)
	}

	lib, err := library.NewRegistry(library.Config{
		Store:        st,
		Resolver:     resolver,
		Fetcher:      transfer.New(cfg.DownloadTimeout()),
		AddRequester: outbox,
		Metrics:      m,
		Dir:          cfg.Download.Dir,
		Timeout:      cfg.DownloadTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create library: %w", err)
	}

	pl, err := playlists.NewRegistry(st)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlists: %w", err)
	}

	player := playback.NewEngine(
		audio.NewBeepDevice(),
		time.Duration(cfg.Playback.PollIntervalMs)*time.Millisecond,
	)
	queue := playback.NewController(player, time.Duration(cfg.Playback.RestartThresholdMs)*time.Millisecond)

	loop := reconcile.NewLoop(outbox, intakeClient, ephemeral, notify.LogSink{},
		reconcile.WithInterval(time.Duration(cfg.Reconcile.IntervalSec)*time.Second),
		reconcile.WithInitialDelay(time.Duration(cfg.Reconcile.InitialDelaySec)*time.Second),
		reconcile.WithNotifiedTTL(time.Duration(cfg.Reconcile.NotifiedTTLSec)*time.Second),
		reconcile.WithMetrics(m),
	)

	return &engine{
		store:     st,
		cache:     ephemeral,
		library:   lib,
		playlists: pl,
		player:    player,
		queue:     queue,
		outbox:    outbox,
		loop:      loop,
		metrics:   m,
	}, nil
}

func (e *engine) shutdown() {
	e.loop.Stop()
	e.player.Close()
	if err := e.store.Close(); err != nil {
		zlog.Error().Msgf("Failed to close store: %v", err)
	}
}

// run starts the engine and blocks until a shutdown signal arrives.
// Using a separate function ensures defer statements are executed even
// when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	eng, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	eng.loop.Start()

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			zlog.Info().Msgf("Serving metrics: addr=%s", *metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Error().Msgf("Metrics server error: %v", err)
			}
		}()
	}

	zlog.Info().
		Int("tracks", len(eng.library.ListAll())).
		Int("playlists", len(eng.playlists.GetAllPlaylists())).
		Msg("Engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown metrics server: %v", err)
		}
	}

	zlog.Info().Msg("Engine stopped")
	return nil
}

// runDownload downloads one track and exits.
func runDownload(cfg *config.Config, trackID string) error {
	ctx := context.Background()

	eng, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	res := eng.library.Download(ctx, trackID)
	switch res.Status {
	case library.StatusCompleted:
		zlog.Info().Msgf("Downloaded %s - %s", res.Track.Artist, res.Track.Name)
	case library.StatusAlreadyDownloaded:
		zlog.Info().Msgf("Track %s is already downloaded", trackID)
	default:
		return fmt.Errorf("download failed: %s", res.Message)
	}
	return nil
}

// runPlay plays a stored playlist through the speaker until interrupted.
func runPlay(cfg *config.Config, playlistID string) error {
	ctx := context.Background()

	eng, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	p, ok := eng.playlists.GetPlaylist(playlistID)
	if !ok {
		return fmt.Errorf("unknown playlist: %s", playlistID)
	}
	if len(p.Songs) == 0 {
		return fmt.Errorf("playlist %s is empty", playlistID)
	}

	eng.player.AddListener(func(s playback.StatusSnapshot) {
		if s.State == playback.StatePlaying && s.PositionMs == 0 && s.CurrentTrack != nil {
			zlog.Info().Msgf("Now playing: %s - %s", s.CurrentTrack.Artist, s.CurrentTrack.Name)
		}
	})

	if *playRepeat {
		eng.queue.SetRepeatMode(playback.RepeatAll)
	}
	if !eng.queue.PlayPlaylist(ctx, p, 0) {
		return fmt.Errorf("failed to start playlist %s", playlistID)
	}
	if *playShuffle {
		// Must follow PlayPlaylist, which resets the queue to playlist order.
		eng.queue.ToggleShuffle()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	eng.queue.Stop()
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/puck/internal/config"
	"github.com/banshee-data/puck/internal/lidar/l1packets/network"
	"github.com/banshee-data/puck/internal/lidar/l1packets/parse"
	"github.com/banshee-data/puck/internal/lidar/l2frames"
	"github.com/banshee-data/puck/internal/lidar/monitor"
	"github.com/banshee-data/puck/internal/lidar/pipeline"
	"github.com/banshee-data/puck/internal/lidardb"
	"github.com/banshee-data/puck/internal/monitoring"
	"github.com/banshee-data/puck/internal/version"
)

var (
	listen       = flag.String("listen", ":8081", "HTTP listen address (empty disables the monitor)")
	udpPort      = flag.Int("udp-port", network.DefaultPort, "UDP port to listen for lidar packets (also the port matched in -pcap files)")
	udpAddress   = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	pcapFile     = flag.String("pcap", "", "Replay a pcap/pcapng capture instead of listening on UDP")
	configFile   = flag.String("config", "", "Path to a decoder config JSON file (default: built-in defaults)")
	dbFile       = flag.String("db", "puck.db", "Path to the SQLite sweep database (empty disables)")
	exportDir    = flag.String("export-dir", "", "Directory to export point clouds to (every export_every-th sweep)")
	exportFormat = flag.String("export-format", "pcd", "Point cloud export format: pcd or asc")
	forward      = flag.Bool("forward", false, "Forward received UDP packets to another port")
	forwardPort  = flag.Int("forward-port", 2369, "Port to forward UDP packets to (for LidarView monitoring)")
	forwardAddr  = flag.String("forward-addr", "localhost", "Address to forward UDP packets to")
	rcvBuf       = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
	debug        = flag.Bool("debug", false, "Log diagnostics and per-sweep trace output")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options holds everything run needs, so tests can bypass flag parsing.
type options struct {
	Listen       string
	UDPAddr      string
	UDPPort      int
	PCAPFile     string
	ConfigFile   string
	DBFile       string
	ExportDir    string
	ExportFormat string
	Forward      bool
	ForwardAddr  string
	ForwardPort  int
	RcvBuf       int
	Debug        bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		Listen:       *listen,
		UDPAddr:      *udpAddress,
		UDPPort:      *udpPort,
		PCAPFile:     *pcapFile,
		ConfigFile:   *configFile,
		DBFile:       *dbFile,
		ExportDir:    *exportDir,
		ExportFormat: *exportFormat,
		Forward:      *forward,
		ForwardAddr:  *forwardAddr,
		ForwardPort:  *forwardPort,
		RcvBuf:       *rcvBuf,
		Debug:        *debug,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("puck: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// setupLogging routes every package's ops stream to stderr, and the diag
// and trace streams too when debug is set.
func setupLogging(debug bool) {
	ops := io.Writer(os.Stderr)
	var diag, trace io.Writer
	flags := log.LstdFlags
	if debug {
		diag, trace = os.Stderr, os.Stderr
		flags |= log.Lmicroseconds
	}
	monitoring.SetOutput(os.Stderr, flags)
	parse.SetLogWriters(ops, diag, trace)
	l2frames.SetLogWriters(ops, diag, trace)
	network.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
}

func loadConfig(path string) (*config.DecoderConfig, error) {
	if path == "" {
		return config.DefaultDecoderConfig(), nil
	}
	return config.LoadDecoderConfig(path)
}

func run(ctx context.Context, o options) error {
	setupLogging(o.Debug)

	cfg, err := loadConfig(o.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	latest := monitor.NewLatestSweep(0)
	sinks := []pipeline.SweepSink{latest}

	var ldb *lidardb.LidarDB
	if o.DBFile != "" {
		ldb, err = lidardb.NewLidarDB(o.DBFile)
		if err != nil {
			return fmt.Errorf("open sweep database: %w", err)
		}
		defer ldb.Close()
		sinks = append(sinks, ldb)
	}

	if o.ExportDir != "" {
		exp, err := l2frames.NewExporter(o.ExportDir)
		if err != nil {
			return fmt.Errorf("export dir: %w", err)
		}
		every := cfg.GetExportEvery()
		if every <= 0 {
			every = 1
		}
		sinks = append(sinks, &pipeline.ExportSink{Exporter: exp, Every: every, Format: o.ExportFormat})
		log.Printf("Exporting every %d sweep(s) to %s as %s", every, exp.Dir, o.ExportFormat)
	}

	replay := o.PCAPFile != ""
	decoder := pipeline.NewDecoder(pipeline.Options{
		Config:   cfg,
		Sinks:    sinks,
		Blocking: replay,
	})
	defer decoder.Close()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	// Runs before wg.Wait.
	defer cancel()

	if o.Listen != "" {
		mux := http.NewServeMux()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: o.Listen,
			Latest:  latest,
			Decoder: decoder,
			UDPPort: o.UDPPort,
			Mux:     mux,
		})
		if ldb != nil {
			if err := ldb.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("HTTP server error: %v", err)
				cancel()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logDecoderStats(ctx, decoder, cfg.GetStatsInterval())
	}()

	if retention := cfg.GetSweepRetention(); ldb != nil && retention > 0 && !replay {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneSweeps(ctx, ldb, decoder, retention)
		}()
	}

	if o.ConfigFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reloadOnHangup(ctx, decoder, o.ConfigFile)
		}()
	}

	stats := network.NewPacketStats()
	var fwd *network.PacketForwarder
	if o.Forward {
		fwd, err = network.NewPacketForwarder(o.ForwardAddr, o.ForwardPort, stats, cfg.GetStatsInterval())
		if err != nil {
			return fmt.Errorf("packet forwarding: %w", err)
		}
		defer fwd.Close()
		fwd.Start(ctx)
	}

	if replay {
		res, err := network.ReadPCAPFile(ctx, o.PCAPFile, network.ReplayConfig{
			Port:            o.UDPPort,
			SpeedMultiplier: cfg.GetReplaySpeed(),
			Stats:           stats,
			Forwarder:       fwd,
		}, decoder)
		decoder.Flush()
		decoder.Close()
		if retention := cfg.GetSweepRetention(); ldb != nil && retention > 0 {
			pruneExpired(ctx, ldb, decoder, retention)
		}
		log.Printf("Replayed %d packets from %d frames (%d skipped) in %v",
			res.Packets, res.Frames, res.Skipped, res.Duration.Round(time.Millisecond))
		decoder.LogStats()
		return err
	}

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     net.JoinHostPort(o.UDPAddr, strconv.Itoa(o.UDPPort)),
		RcvBuf:      o.RcvBuf,
		LogInterval: cfg.GetStatsInterval(),
		Handler:     decoder,
		Stats:       stats,
		Forwarder:   fwd,
	})
	err = listener.Start(ctx)
	if errors.Is(err, pipeline.ErrDeviceModeEscalated) {
		return fmt.Errorf("stopping: %w", err)
	}
	return err
}

func logDecoderStats(ctx context.Context, d *pipeline.Decoder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.LogStats()
		}
	}
}

// sweepPruneInterval bounds how often expired sweeps are deleted.
const sweepPruneInterval = 5 * time.Minute

func pruneSweeps(ctx context.Context, ldb *lidardb.LidarDB, d *pipeline.Decoder, retention time.Duration) {
	interval := sweepPruneInterval
	if retention < interval {
		interval = retention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneExpired(ctx, ldb, d, retention)
		}
	}
}

// pruneExpired deletes sweeps that started more than retention before the
// newest processed sweep. Sweep times are capture times, so a replayed
// capture ages on its own clock.
func pruneExpired(ctx context.Context, ldb *lidardb.LidarDB, d *pipeline.Decoder, retention time.Duration) {
	last := d.Stats().LastSweepStart
	if last.IsZero() {
		return
	}
	n, err := ldb.PruneBefore(ctx, last.Add(-retention))
	if err != nil {
		log.Printf("Sweep pruning failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d sweep(s) older than %v", n, retention)
	}
}

// reloadOnHangup re-reads the config file on SIGHUP and applies it.
func reloadOnHangup(ctx context.Context, d *pipeline.Decoder, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.LoadDecoderConfig(path)
			if err != nil {
				log.Printf("Config reload failed, keeping current settings: %v", err)
				continue
			}
			d.ApplyConfig(cfg)
			log.Printf("Reloaded decoder config from %s", path)
		}
	}
}

package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/puck/internal/config"
	"github.com/banshee-data/puck/internal/lidar/l1packets/parse"
	"github.com/banshee-data/puck/internal/lidar/l2frames"
)

// ErrDeviceModeEscalated is returned by HandlePacket once the configured
// number of consecutive packets carried an unsupported return mode or
// product id. The stream is then assumed to come from the wrong device.
var ErrDeviceModeEscalated = errors.New("persistent unsupported device mode")

// Options configures a Decoder.
type Options struct {
	Config *config.DecoderConfig // nil means all defaults
	Sinks  []SweepSink

	// Blocking makes sweep hand-off wait for the worker instead of
	// dropping sweeps when it falls behind. Use for capture replay.
	Blocking bool
}

// Decoder turns packet payloads into sweeps. HandlePacket is the single
// ingest entry point and is serialised internally; grid building,
// projection and sinks run on the dispatcher's worker.
type Decoder struct {
	mu           sync.Mutex // serialises ingest and config changes
	cfg          *config.DecoderConfig
	parser       *parse.Parser
	assembler    *l2frames.ScanAssembler
	modeFailures int
	sweeps       int64
	builder      l2frames.GridBuilder
	organized    bool

	dispatcher *l2frames.SweepDispatcher
	sinks      []SweepSink
	sinkErrors atomic.Int64
	lastSweep  atomic.Int64 // unix nanos of the last processed sweep start
}

// NewDecoder creates a Decoder and starts its worker. Call Close to stop it.
func NewDecoder(opts Options) *Decoder {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultDecoderConfig()
	}

	d := &Decoder{
		parser: parse.NewParser(),
		sinks:  opts.Sinks,
	}
	d.assembler = l2frames.NewScanAssembler(cfg.Trigger())
	d.applyLocked(cfg)

	var dopts []l2frames.DispatcherOption
	if opts.Blocking {
		dopts = append(dopts, l2frames.WithBlocking())
	}
	d.dispatcher = l2frames.NewSweepDispatcher(cfg.GetSweepQueueSize(), d.process, dopts...)
	return d
}

// HandlePacket decodes one payload captured at the given time and feeds
// its firing sequences to the assembler. Malformed and unsupported packets
// are dropped and counted; the only error returned is
// ErrDeviceModeEscalated.
func (d *Decoder) HandlePacket(payload []byte, captured time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.parser.DecodePacket(payload, captured)
	if err != nil {
		if !errors.Is(err, parse.ErrUnsupportedDeviceMode) {
			opsf("dropping packet: %v", err)
			return nil
		}
		d.modeFailures++
		if limit := d.cfg.GetMaxDeviceModeFailures(); limit > 0 && d.modeFailures >= limit {
			opsf("%d consecutive packets with unsupported device mode, giving up", d.modeFailures)
			return fmt.Errorf("%w: %d consecutive packets, last: %v", ErrDeviceModeEscalated, d.modeFailures, err)
		}
		return nil
	}
	d.modeFailures = 0

	for _, s := range d.assembler.Append(res.Records[:]...) {
		d.dispatchLocked(s)
	}
	return nil
}

// dispatchLocked queues s with the settings active when it was cut.
func (d *Decoder) dispatchLocked(s *l2frames.Sweep) {
	d.sweeps++
	d.dispatcher.Dispatch(l2frames.SweepJob{
		Sweep:     s,
		Builder:   d.builder,
		Organized: d.organized,
	})
}

// Flush hands the partially filled sweep, if any, to the worker. Use at the
// end of a capture replay.
func (d *Decoder) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.assembler.Flush(); s != nil {
		d.dispatchLocked(s)
	}
}

// ApplyConfig switches to a new configuration. An inverted range window is
// clamped, and any partially assembled sweep is discarded.
func (d *Decoder) ApplyConfig(cfg *config.DecoderConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applyLocked(cfg)
}

func (d *Decoder) applyLocked(cfg *config.DecoderConfig) {
	if cfg.Normalize() {
		opsf("min_range exceeds max_range, clamping min_range to %.3f", cfg.GetMaxRange())
	}
	d.cfg = cfg
	d.assembler.SetTrigger(cfg.Trigger())
	d.builder = l2frames.NewGridBuilder(cfg.GetMinRange(), cfg.GetMaxRange())
	d.organized = cfg.GetOrganized()
	diagf("config applied: range [%.3f, %.3f] m, trigger %s, organized %v",
		cfg.GetMinRange(), cfg.GetMaxRange(), cfg.Trigger(), cfg.GetOrganized())
}

// Config returns the active configuration.
func (d *Decoder) Config() *config.DecoderConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// process runs on the dispatcher worker.
func (d *Decoder) process(job l2frames.SweepJob) {
	start := time.Now()
	s := job.Sweep

	grid := job.Builder.Build(s)
	out := &SweepOutput{
		Sweep:   s,
		Grid:    grid,
		Cloud:   l2frames.Project(grid, job.Organized),
		Summary: l2frames.SummarizeGrid(grid),
	}
	out.BuildTime = time.Since(start)
	d.lastSweep.Store(s.Start().UnixNano())

	for _, sink := range d.sinks {
		if err := sink.ConsumeSweep(out); err != nil {
			d.sinkErrors.Add(1)
			opsf("sink failed for sweep %d: %v", s.Seq, err)
		}
	}

	tracef("sweep %d (%s): %dx%d grid, %d points, built in %v, published in %v",
		s.Seq, s.Trigger, grid.Rows, grid.Cols, len(out.Cloud.Points), out.BuildTime, time.Since(start))
}

// Close waits for queued sweeps to reach the sinks and stops the worker.
// A partially assembled sweep is discarded; call Flush first to keep it.
func (d *Decoder) Close() {
	d.dispatcher.Close()
}

// Stats is a snapshot of decoder counters.
type Stats struct {
	parse.ParserStats
	Sweeps         int64 // sweeps completed by the assembler
	Delivered      int64 // sweeps processed by the worker
	Dropped        int64 // sweeps dropped because the worker was busy
	SinkErrors     int64
	Buffered       int // firing sequences waiting in the assembler
	ModeFailures   int // current run of unsupported-mode packets
	LastSweepStart time.Time
}

// Stats returns the current counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	st := Stats{
		ParserStats:  d.parser.Stats(),
		Sweeps:       d.sweeps,
		Buffered:     d.assembler.Len(),
		ModeFailures: d.modeFailures,
	}
	d.mu.Unlock()

	st.Delivered = d.dispatcher.Delivered()
	st.Dropped = d.dispatcher.Dropped()
	st.SinkErrors = d.sinkErrors.Load()
	if ns := d.lastSweep.Load(); ns != 0 {
		st.LastSweepStart = time.Unix(0, ns)
	}
	return st
}

// LogStats writes a one-line summary to the diag stream.
func (d *Decoder) LogStats() {
	st := d.Stats()
	diagf("packets=%d rejected=%d diagnostics=%d sweeps=%d delivered=%d dropped=%d sink_errors=%d buffered=%d",
		st.Packets, st.Rejected, st.Diagnostics, st.Sweeps, st.Delivered, st.Dropped, st.SinkErrors, st.Buffered)
}

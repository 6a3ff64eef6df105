package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/puck/internal/lidar/l2frames"
)

// DefaultConfigPath is the path to the canonical decoder defaults file.
const DefaultConfigPath = "config/decoder.defaults.json"

// maxConfigFileSize caps the size of a config file read from disk.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultMinRange              = 0.4   // metres
	DefaultMaxRange              = 100.0 // metres, rated VLP-16 range
	DefaultImageWidth            = 512   // firing sequences per fixed-width sweep
	DefaultFullSweep             = false
	DefaultOrganized             = true
	DefaultMaxDeviceModeFailures = 100 // consecutive rejects before giving up; 0 = never
	DefaultSweepQueueSize        = 4
	DefaultStatsInterval         = time.Minute
	DefaultExportEvery           = 0 // export every Nth sweep; 0 = off
	DefaultSweepRetention        = 24 * time.Hour
)

// DecoderConfig holds the runtime-tunable decoder parameters. Every field is
// optional; omitted fields fall back to the defaults above, so partial JSON
// files are safe.
type DecoderConfig struct {
	// Range window
	MinRange *float64 `json:"min_range,omitempty"`
	MaxRange *float64 `json:"max_range,omitempty"`

	// Sweep shape
	ImageWidth *int  `json:"image_width,omitempty"`
	FullSweep  *bool `json:"full_sweep,omitempty"`
	Organized  *bool `json:"organized,omitempty"`

	// Pipeline
	MaxDeviceModeFailures *int    `json:"max_device_mode_failures,omitempty"`
	SweepQueueSize        *int    `json:"sweep_queue_size,omitempty"`
	StatsInterval         *string `json:"stats_interval,omitempty"` // duration string like "60s"
	ExportEvery           *int    `json:"export_every,omitempty"`

	// Sweep store; "0s" keeps every sweep
	SweepRetention *string `json:"sweep_retention,omitempty"`

	// Capture replay; 0 replays as fast as possible
	ReplaySpeed *float64 `json:"replay_speed,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultDecoderConfig returns a config with every field set to its default.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		MinRange:              ptrFloat64(DefaultMinRange),
		MaxRange:              ptrFloat64(DefaultMaxRange),
		ImageWidth:            ptrInt(DefaultImageWidth),
		FullSweep:             ptrBool(DefaultFullSweep),
		Organized:             ptrBool(DefaultOrganized),
		MaxDeviceModeFailures: ptrInt(DefaultMaxDeviceModeFailures),
		SweepQueueSize:        ptrInt(DefaultSweepQueueSize),
		StatsInterval:         ptrString(DefaultStatsInterval.String()),
		ExportEvery:           ptrInt(DefaultExportEvery),
		SweepRetention:        ptrString(DefaultSweepRetention.String()),
		ReplaySpeed:           ptrFloat64(0),
	}
}

// LoadDecoderConfig loads a DecoderConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB. The loaded config
// is validated and then normalised (see Normalize).
func LoadDecoderConfig(path string) (*DecoderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseDecoderConfig(data)
}

// ParseDecoderConfig decodes, validates and normalises a JSON config.
func ParseDecoderConfig(data []byte) (*DecoderConfig, error) {
	cfg := &DecoderConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics when the
// file cannot be found and is intended for tests and tools.
func MustLoadDefaultConfig() *DecoderConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/lidar/pipeline/
		"../../../../" + DefaultConfigPath,    // from internal/lidar/l2frames/...
		"../../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadDecoderConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set.
func (c *DecoderConfig) Validate() error {
	if c.MinRange != nil && *c.MinRange < 0 {
		return fmt.Errorf("min_range must be non-negative, got %f", *c.MinRange)
	}
	if c.MaxRange != nil && *c.MaxRange <= 0 {
		return fmt.Errorf("max_range must be positive, got %f", *c.MaxRange)
	}
	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %d", *c.ImageWidth)
	}
	if c.MaxDeviceModeFailures != nil && *c.MaxDeviceModeFailures < 0 {
		return fmt.Errorf("max_device_mode_failures must be non-negative, got %d", *c.MaxDeviceModeFailures)
	}
	if c.SweepQueueSize != nil && *c.SweepQueueSize < 1 {
		return fmt.Errorf("sweep_queue_size must be at least 1, got %d", *c.SweepQueueSize)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("stats_interval must be positive, got %s", d)
		}
	}
	if c.SweepRetention != nil && *c.SweepRetention != "" {
		d, err := time.ParseDuration(*c.SweepRetention)
		if err != nil {
			return fmt.Errorf("invalid sweep_retention '%s': %w", *c.SweepRetention, err)
		}
		if d < 0 {
			return fmt.Errorf("sweep_retention must be non-negative, got %s", d)
		}
	}
	if c.ExportEvery != nil && *c.ExportEvery < 0 {
		return fmt.Errorf("export_every must be non-negative, got %d", *c.ExportEvery)
	}
	if c.ReplaySpeed != nil && *c.ReplaySpeed < 0 {
		return fmt.Errorf("replay_speed must be non-negative, got %f", *c.ReplaySpeed)
	}
	return nil
}

// Normalize clamps a range window whose minimum exceeds its maximum by
// lowering the minimum to the maximum. It reports whether it changed c.
func (c *DecoderConfig) Normalize() bool {
	minR, maxR := c.GetMinRange(), c.GetMaxRange()
	if minR <= maxR {
		return false
	}
	c.MinRange = ptrFloat64(maxR)
	return true
}

// Trigger returns the sweep trigger selected by full_sweep and image_width.
func (c *DecoderConfig) Trigger() l2frames.Trigger {
	if c.GetFullSweep() {
		return l2frames.FullRotation{}
	}
	return l2frames.FixedWidth{N: c.GetImageWidth()}
}

// GetMinRange returns the min_range value or the default.
func (c *DecoderConfig) GetMinRange() float64 {
	if c.MinRange == nil {
		return DefaultMinRange
	}
	return *c.MinRange
}

// GetMaxRange returns the max_range value or the default.
func (c *DecoderConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return DefaultMaxRange
	}
	return *c.MaxRange
}

// GetImageWidth returns the image_width value or the default.
func (c *DecoderConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return DefaultImageWidth
	}
	return *c.ImageWidth
}

// GetFullSweep returns the full_sweep value or the default.
func (c *DecoderConfig) GetFullSweep() bool {
	if c.FullSweep == nil {
		return DefaultFullSweep
	}
	return *c.FullSweep
}

// GetOrganized returns the organized value or the default.
func (c *DecoderConfig) GetOrganized() bool {
	if c.Organized == nil {
		return DefaultOrganized
	}
	return *c.Organized
}

// GetMaxDeviceModeFailures returns the max_device_mode_failures value or
// the default.
func (c *DecoderConfig) GetMaxDeviceModeFailures() int {
	if c.MaxDeviceModeFailures == nil {
		return DefaultMaxDeviceModeFailures
	}
	return *c.MaxDeviceModeFailures
}

// GetSweepQueueSize returns the sweep_queue_size value or the default.
func (c *DecoderConfig) GetSweepQueueSize() int {
	if c.SweepQueueSize == nil {
		return DefaultSweepQueueSize
	}
	return *c.SweepQueueSize
}

// GetStatsInterval parses and returns the stats_interval as a duration.
func (c *DecoderConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return DefaultStatsInterval
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil || d <= 0 {
		return DefaultStatsInterval
	}
	return d
}

// GetSweepRetention returns how long stored sweeps are kept. Zero means
// sweeps are never pruned.
func (c *DecoderConfig) GetSweepRetention() time.Duration {
	if c.SweepRetention == nil || *c.SweepRetention == "" {
		return DefaultSweepRetention
	}
	d, err := time.ParseDuration(*c.SweepRetention)
	if err != nil || d < 0 {
		return DefaultSweepRetention
	}
	return d
}

// GetExportEvery returns the export_every value or the default.
func (c *DecoderConfig) GetExportEvery() int {
	if c.ExportEvery == nil {
		return DefaultExportEvery
	}
	return *c.ExportEvery
}

// GetReplaySpeed returns the replay_speed value or the default.
func (c *DecoderConfig) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 0
	}
	return *c.ReplaySpeed
}

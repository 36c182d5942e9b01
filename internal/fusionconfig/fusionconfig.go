// Package fusionconfig loads the fusion core's tuning parameters from a
// JSON file. Fields are optional pointers so a partial config file only
// overrides the keys it mentions; everything else falls back to the
// documented default.
package fusionconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the conventional location for the fusion tuning file.
const DefaultConfigPath = "config/fusion.defaults.json"

// Config is the root configuration for the fusion core, covering its
// fusion.*, sim.*, radar.*, and video.* keys.
type Config struct {
	// fusion.*
	AssociationThreshold *float64 `json:"association_threshold,omitempty"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	MaxTrackAge          *int     `json:"max_track_age,omitempty"`
	// PositionWeight and VelocityWeight are reserved for a future
	// weighted-gating distance; they are parsed and stored but not
	// consumed by any algorithm in this package.
	PositionWeight *float64 `json:"position_weight,omitempty"`
	VelocityWeight *float64 `json:"velocity_weight,omitempty"`

	// sim.*
	SimDataPath *string `json:"sim_data_path,omitempty"`

	// video.*
	VideoRTSPURL *string `json:"video_rtsp_url,omitempty"`

	// radar.*
	RadarDevicePath *string `json:"radar_device_path,omitempty"`
	RadarBaudRate   *int    `json:"radar_baud_rate,omitempty"`
}

// Empty returns a Config with every field nil. Use Load to populate one
// from a file; use the Get* accessors to read values with defaults applied.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file at path. The path must end in
// ".json" and the file must be under 1MB; both are sanity checks against
// accidentally pointing the loader at the wrong file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects out-of-range values before they reach the fusion processor.
func (c *Config) Validate() error {
	if c.AssociationThreshold != nil && *c.AssociationThreshold <= 0 {
		return fmt.Errorf("association_threshold must be positive, got %f", *c.AssociationThreshold)
	}
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
	}
	if c.MaxTrackAge != nil && *c.MaxTrackAge <= 0 {
		return fmt.Errorf("max_track_age must be positive, got %d", *c.MaxTrackAge)
	}
	if c.RadarBaudRate != nil {
		switch *c.RadarBaudRate {
		case 9600, 19200, 38400, 57600, 115200:
		default:
			return fmt.Errorf("radar_baud_rate must be one of 9600/19200/38400/57600/115200, got %d", *c.RadarBaudRate)
		}
	}
	return nil
}

// GetAssociationThreshold returns association_threshold or its default (5.0).
func (c *Config) GetAssociationThreshold() float64 {
	if c.AssociationThreshold == nil {
		return 5.0
	}
	return *c.AssociationThreshold
}

// GetConfidenceThreshold returns confidence_threshold or its default (0.3).
func (c *Config) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.3
	}
	return *c.ConfidenceThreshold
}

// GetMaxTrackAge returns max_track_age or its default (50 ticks).
func (c *Config) GetMaxTrackAge() int {
	if c.MaxTrackAge == nil {
		return 50
	}
	return *c.MaxTrackAge
}

// GetRadarDevicePath returns radar_device_path or its default.
func (c *Config) GetRadarDevicePath() string {
	if c.RadarDevicePath == nil {
		return "/dev/ttyUSB0"
	}
	return *c.RadarDevicePath
}

// GetRadarBaudRate returns radar_baud_rate or its default (115200).
func (c *Config) GetRadarBaudRate() int {
	if c.RadarBaudRate == nil {
		return 115200
	}
	return *c.RadarBaudRate
}

// GetSimDataPath returns sim_data_path or its default.
func (c *Config) GetSimDataPath() string {
	if c.SimDataPath == nil {
		return "sim/scenario.txt"
	}
	return *c.SimDataPath
}

// GetVideoRTSPURL returns video_rtsp_url or its default (empty, meaning disabled).
func (c *Config) GetVideoRTSPURL() string {
	if c.VideoRTSPURL == nil {
		return ""
	}
	return *c.VideoRTSPURL
}

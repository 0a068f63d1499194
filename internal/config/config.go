// Package config provides configuration structures and defaults for govna
package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Instrument InstrumentConfig `yaml:"instrument" mapstructure:"instrument"` // Instrument link settings
	Cal        CalConfig        `yaml:"cal" mapstructure:"cal"`               // Guided calibration settings
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`         // Trace export settings
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`       // Logging configuration
}

// InstrumentConfig contains instrument link configuration parameters
type InstrumentConfig struct {
	Transport string        `yaml:"transport" mapstructure:"transport"` // Link transport: "tcp" or "serial"
	Address   string        `yaml:"address" mapstructure:"address"`     // Host:port of the instrument SCPI socket (for tcp transport)
	Port      string        `yaml:"port" mapstructure:"port"`           // Serial port device path (for serial transport)
	BaudRate  int           `yaml:"baud_rate" mapstructure:"baud_rate"` // Serial communication baud rate (for serial transport)
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`     // Default per-operation timeout
	Channel   int           `yaml:"channel" mapstructure:"channel"`     // Default measurement channel
}

// CalConfig contains guided calibration configuration parameters
type CalConfig struct {
	StepTimeout     time.Duration `yaml:"step_timeout" mapstructure:"step_timeout"`         // Completion timeout per standard measurement
	Unlimited       bool          `yaml:"unlimited" mapstructure:"unlimited"`               // Retry rejected standards until they succeed
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`           // Retries per standard after the first attempt (when not unlimited)
	TimestampSuffix bool          `yaml:"timestamp_suffix" mapstructure:"timestamp_suffix"` // Append an acquisition timestamp to saved cal set names
	SetPrefix       string        `yaml:"set_prefix" mapstructure:"set_prefix"`             // Base name for saved cal sets
}

// ExportConfig contains trace export configuration parameters
type ExportConfig struct {
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`   // Output directory for trace files
	FilePrefix string `yaml:"file_prefix" mapstructure:"file_prefix"` // Prefix for output filenames
	Format     string `yaml:"format" mapstructure:"format"`           // Export format: "bin" or "csv"
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // Log level (debug, info, warn, error)
	File  string `yaml:"file" mapstructure:"file"`   // Log file path
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Transport: "tcp",             // SCPI over a raw socket by default
			Address:   "localhost:5025",  // Standard SCPI socket port
			Port:      "/dev/ttyUSB0",    // Common USB serial device path
			BaudRate:  115200,            // Typical instrument serial rate
			Timeout:   10 * time.Second,  // Per-operation timeout
			Channel:   1,                 // First measurement channel
		},
		Cal: CalConfig{
			StepTimeout:     60 * time.Second, // Standards can take far longer than sweeps
			Unlimited:       true,             // Retry until the operator gets the standard right
			MaxRetries:      3,                // Used only when unlimited is off
			TimestampSuffix: true,             // Distinguish repeated runs by acquisition time
			SetPrefix:       "govna",          // Base name for saved cal sets
		},
		Export: ExportConfig{
			OutputDir:  "./data", // Current directory data folder
			FilePrefix: "trace",  // File prefix for output files
			Format:     "bin",    // Binary archive by default
		},
		Logging: LoggingConfig{
			Level: "info",      // Info level logging
			File:  "govna.log", // Log to govna.log file
		},
	}
}

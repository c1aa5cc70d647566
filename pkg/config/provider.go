package config

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("config: invalid configuration")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetAnalysisConfig() (*AnalysisData, error)
	GetStorageConfig() (*StorageData, error)
	GetServerConfig() (*ServerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Analysis  AnalysisData  `json:"analysis"`
	Discovery DiscoveryData `json:"discovery"`
	Output    OutputData    `json:"output"`
	Storage   StorageData   `json:"storage"`
	Server    ServerData    `json:"server"`
	Tracing   TracingData   `json:"tracing"`
	// Workers bounds parallel run processing; 0 uses every CPU
	Workers int `json:"workers"`
}

// AnalysisData controls avalanche detection
type AnalysisData struct {
	GapThreshold    float64 `json:"gap_threshold"`
	MinSize         int     `json:"min_size"`
	CloseFinalBlock bool    `json:"close_final_block"`
	// Source is "flow" for flow_data.csv series or "events" for simulator event logs
	Source string `json:"source"`
}

// DiscoveryData locates the runs of a batch
type DiscoveryData struct {
	Root    string `json:"root"`
	Pattern string `json:"pattern,omitempty"`
}

// OutputData selects the written artifacts
type OutputData struct {
	Dir      string `json:"dir"`
	Gnuplot  bool   `json:"gnuplot"`
	BinWidth int    `json:"bin_width"`
	XLSX     string `json:"xlsx,omitempty"`
}

// StorageData configures the results store and the run cache. Empty paths
// disable them.
type StorageData struct {
	SQLitePath string `json:"sqlite_path,omitempty"`
	CacheDir   string `json:"cache_dir,omitempty"`
}

// ServerData configures the REST server
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port"`
}

// TracingData configures OTLP trace export
type TracingData struct {
	Enabled bool `json:"enabled"`
	// Endpoint is host:port of an OTLP/HTTP collector
	Endpoint string `json:"endpoint,omitempty"`
	Insecure bool   `json:"insecure"`
}

// Default returns the configuration used when no file is given
func Default() *ConfigData {
	return &ConfigData{
		Analysis: AnalysisData{
			GapThreshold:    5.0,
			MinSize:         1,
			CloseFinalBlock: true,
			Source:          "flow",
		},
		Discovery: DiscoveryData{Root: "."},
		Output: OutputData{
			Dir:      "avalanche_out",
			BinWidth: 200,
		},
		Server: ServerData{Port: 8080},
	}
}

// Validate checks the configuration for values the analysis cannot run with
func (c *ConfigData) Validate() error {
	var errs []error
	if !(c.Analysis.GapThreshold > 0) {
		errs = append(errs, fmt.Errorf("analysis.gap_threshold must be > 0, got %v", c.Analysis.GapThreshold))
	}
	if c.Analysis.MinSize < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_size must be >= 0, got %d", c.Analysis.MinSize))
	}
	switch c.Analysis.Source {
	case "flow", "events":
	default:
		errs = append(errs, fmt.Errorf("analysis.source must be flow or events, got %q", c.Analysis.Source))
	}
	if c.Output.BinWidth <= 0 {
		errs = append(errs, fmt.Errorf("output.bin_width must be > 0, got %d", c.Output.BinWidth))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Workers < 0 || c.Workers > 16*runtime.NumCPU() {
		errs = append(errs, fmt.Errorf("workers out of range: %d", c.Workers))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// StaticProvider serves an in-memory configuration
type StaticProvider struct {
	config *ConfigData
}

// NewStaticProvider wraps c; a nil c serves Default()
func NewStaticProvider(c *ConfigData) *StaticProvider {
	if c == nil {
		c = Default()
	}
	return &StaticProvider{config: c}
}

func (s *StaticProvider) LoadConfig() (*ConfigData, error) {
	return s.config, nil
}

func (s *StaticProvider) GetAnalysisConfig() (*AnalysisData, error) {
	return &s.config.Analysis, nil
}

func (s *StaticProvider) GetStorageConfig() (*StorageData, error) {
	return &s.config.Storage, nil
}

func (s *StaticProvider) GetServerConfig() (*ServerData, error) {
	return &s.config.Server, nil
}

func (s *StaticProvider) IsReadOnly() bool {
	return true
}

func (s *StaticProvider) Close() error {
	return nil
}

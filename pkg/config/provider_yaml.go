package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files.
// Keys missing from the file keep their Default() value.
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

type configYAML struct {
	Analysis struct {
		GapThreshold    float64 `yaml:"gap_threshold"`
		MinSize         int     `yaml:"min_size"`
		CloseFinalBlock bool    `yaml:"close_final_block"`
		Source          string  `yaml:"source"`
	} `yaml:"analysis"`
	Discovery struct {
		Root    string `yaml:"root"`
		Pattern string `yaml:"pattern,omitempty"`
	} `yaml:"discovery"`
	Output struct {
		Dir      string `yaml:"dir"`
		Gnuplot  bool   `yaml:"gnuplot"`
		BinWidth int    `yaml:"bin_width"`
		XLSX     string `yaml:"xlsx,omitempty"`
	} `yaml:"output"`
	Storage struct {
		SQLitePath string `yaml:"sqlite_path,omitempty"`
		CacheDir   string `yaml:"cache_dir,omitempty"`
	} `yaml:"storage"`
	Server struct {
		ListenAddr string `yaml:"listen_addr,omitempty"`
		Port       int    `yaml:"port"`
	} `yaml:"server"`
	Tracing struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint,omitempty"`
		Insecure bool   `yaml:"insecure"`
	} `yaml:"tracing"`
	Workers int `yaml:"workers"`
}

// LoadConfig loads the complete configuration from the YAML file. Unknown
// keys are rejected.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}
	y.config = config
	return config, nil
}

// ParseYAML decodes a YAML document over Default() and validates the result
func ParseYAML(data []byte) (*ConfigData, error) {
	// Seed the YAML struct with defaults so absent keys keep them
	def := Default()
	var yamlConfig configYAML
	yamlConfig.Analysis.GapThreshold = def.Analysis.GapThreshold
	yamlConfig.Analysis.MinSize = def.Analysis.MinSize
	yamlConfig.Analysis.CloseFinalBlock = def.Analysis.CloseFinalBlock
	yamlConfig.Analysis.Source = def.Analysis.Source
	yamlConfig.Discovery.Root = def.Discovery.Root
	yamlConfig.Output.Dir = def.Output.Dir
	yamlConfig.Output.BinWidth = def.Output.BinWidth
	yamlConfig.Server.Port = def.Server.Port

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yamlConfig); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	config := &ConfigData{
		Analysis: AnalysisData{
			GapThreshold:    yamlConfig.Analysis.GapThreshold,
			MinSize:         yamlConfig.Analysis.MinSize,
			CloseFinalBlock: yamlConfig.Analysis.CloseFinalBlock,
			Source:          yamlConfig.Analysis.Source,
		},
		Discovery: DiscoveryData{
			Root:    yamlConfig.Discovery.Root,
			Pattern: yamlConfig.Discovery.Pattern,
		},
		Output: OutputData{
			Dir:      yamlConfig.Output.Dir,
			Gnuplot:  yamlConfig.Output.Gnuplot,
			BinWidth: yamlConfig.Output.BinWidth,
			XLSX:     yamlConfig.Output.XLSX,
		},
		Storage: StorageData{
			SQLitePath: yamlConfig.Storage.SQLitePath,
			CacheDir:   yamlConfig.Storage.CacheDir,
		},
		Server: ServerData{
			ListenAddr: yamlConfig.Server.ListenAddr,
			Port:       yamlConfig.Server.Port,
		},
		Tracing: TracingData{
			Enabled:  yamlConfig.Tracing.Enabled,
			Endpoint: yamlConfig.Tracing.Endpoint,
			Insecure: yamlConfig.Tracing.Insecure,
		},
		Workers: yamlConfig.Workers,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetAnalysisConfig returns the analysis section
func (y *YAMLProvider) GetAnalysisConfig() (*AnalysisData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Analysis, nil
}

// GetStorageConfig returns the storage section
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Storage, nil
}

// GetServerConfig returns the server section
func (y *YAMLProvider) GetServerConfig() (*ServerData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Server, nil
}

// IsReadOnly returns true since YAML files are read-only in this context
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
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

type gaugeYAML struct {
	Hostname     string          `yaml:"hostname"`
	Port         string          `yaml:"port"`
	SerialDevice string          `yaml:"serial_device"`
	Baud         int             `yaml:"baud"`
	PollMs       int             `yaml:"poll_ms"`
	ResetMode    string          `yaml:"reset_mode"`
	ReadCmdHex   string          `yaml:"read_cmd_hex"`
	AssertCmdHex string          `yaml:"assert_cmd_hex"`
	ClearCmdHex  string          `yaml:"clear_cmd_hex"`
	Layout       frameLayoutYAML `yaml:"layout"`
}

type frameLayoutYAML struct {
	MachineIDOffset int   `yaml:"machine_id_offset"`
	StatusOffset    int   `yaml:"status_offset"`
	EndCodeOffset   int   `yaml:"end_code_offset"`
	CompleteCode    int   `yaml:"complete_code"`
	ValueOffsets    []int `yaml:"value_offsets"`
}

type machineYAML struct {
	ID             uint16     `yaml:"id"`
	Name           string     `yaml:"name"`
	Hostname       string     `yaml:"hostname"`
	Port           int16      `yaml:"port"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	BatchSize      int        `yaml:"batch_size"`
	Tools          []toolYAML `yaml:"tools"`
}

type toolYAML struct {
	Slot         int16   `yaml:"slot"`
	Name         string  `yaml:"name"`
	BasicSize    float64 `yaml:"basic_size"`
	ManualOffset float64 `yaml:"manual_offset"`
	OffsetRate   float64 `yaml:"offset_rate"`
	Active       bool    `yaml:"active"`
}

type historyYAML struct {
	SQLite   *struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Postgres *struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"postgres"`
}

type managementYAML struct {
	ListenAddr string `yaml:"listen_addr"`
	Port       int    `yaml:"port"`
	AuthToken  string `yaml:"auth_token"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Gauge      gaugeYAML       `yaml:"gauge"`
		Machines   []machineYAML   `yaml:"machines"`
		History    historyYAML     `yaml:"history"`
		Management *managementYAML `yaml:"management"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Gauge: GaugeData{
			Hostname:     yamlConfig.Gauge.Hostname,
			Port:         yamlConfig.Gauge.Port,
			SerialDevice: yamlConfig.Gauge.SerialDevice,
			Baud:         yamlConfig.Gauge.Baud,
			PollMs:       yamlConfig.Gauge.PollMs,
			ResetMode:    yamlConfig.Gauge.ResetMode,
			ReadCmdHex:   yamlConfig.Gauge.ReadCmdHex,
			AssertCmdHex: yamlConfig.Gauge.AssertCmdHex,
			ClearCmdHex:  yamlConfig.Gauge.ClearCmdHex,
			Layout: FrameLayoutData{
				MachineIDOffset: yamlConfig.Gauge.Layout.MachineIDOffset,
				StatusOffset:    yamlConfig.Gauge.Layout.StatusOffset,
				EndCodeOffset:   yamlConfig.Gauge.Layout.EndCodeOffset,
				CompleteCode:    yamlConfig.Gauge.Layout.CompleteCode,
				ValueOffsets:    yamlConfig.Gauge.Layout.ValueOffsets,
			},
		},
		Machines: make([]MachineData, len(yamlConfig.Machines)),
	}

	for i, machine := range yamlConfig.Machines {
		tools := make([]ToolData, len(machine.Tools))
		for j, tool := range machine.Tools {
			tools[j] = ToolData(tool)
		}
		config.Machines[i] = MachineData{
			ID:             machine.ID,
			Name:           machine.Name,
			Hostname:       machine.Hostname,
			Port:           machine.Port,
			TimeoutSeconds: machine.TimeoutSeconds,
			BatchSize:      machine.BatchSize,
			Tools:          tools,
		}
	}

	if yamlConfig.History.SQLite != nil {
		config.History.SQLite = &SQLiteHistoryData{Path: yamlConfig.History.SQLite.Path}
	}
	if yamlConfig.History.Postgres != nil {
		config.History.Postgres = &PostgresHistoryData{ConnectionString: yamlConfig.History.Postgres.ConnectionString}
	}
	if yamlConfig.Management != nil {
		config.Management = &ManagementData{
			ListenAddr: yamlConfig.Management.ListenAddr,
			Port:       yamlConfig.Management.Port,
			AuthToken:  yamlConfig.Management.AuthToken,
		}
	}

	config.Normalize()
	y.config = config
	return config, nil
}

// GetGauge returns the gauge configuration section
func (y *YAMLProvider) GetGauge() (*GaugeData, error) {
	cfg, err := y.cached()
	if err != nil {
		return nil, err
	}
	return &cfg.Gauge, nil
}

// GetMachines returns the machine configurations
func (y *YAMLProvider) GetMachines() ([]MachineData, error) {
	cfg, err := y.cached()
	if err != nil {
		return nil, err
	}
	return cfg.Machines, nil
}

// GetHistoryConfig returns the history backend configuration
func (y *YAMLProvider) GetHistoryConfig() (*HistoryData, error) {
	cfg, err := y.cached()
	if err != nil {
		return nil, err
	}
	return &cfg.History, nil
}

// GetManagement returns the management API configuration
func (y *YAMLProvider) GetManagement() (*ManagementData, error) {
	cfg, err := y.cached()
	if err != nil {
		return nil, err
	}
	return cfg.Management, nil
}

// SetBatchSize is not supported for YAML-backed configuration
func (y *YAMLProvider) SetBatchSize(machineID uint16, size int) error {
	return fmt.Errorf("YAML configuration is read-only")
}

// SetToolActive is not supported for YAML-backed configuration
func (y *YAMLProvider) SetToolActive(machineID uint16, slot int16, active bool) error {
	return fmt.Errorf("YAML configuration is read-only")
}

// SetManualOffset is not supported for YAML-backed configuration
func (y *YAMLProvider) SetManualOffset(machineID uint16, slot int16, offset float64) error {
	return fmt.Errorf("YAML configuration is read-only")
}

// IsReadOnly returns true: YAML configs are never written back
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}

func (y *YAMLProvider) cached() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}
	return y.LoadConfig()
}

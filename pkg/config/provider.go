package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetGauge() (*GaugeData, error)
	GetMachines() ([]MachineData, error)
	GetHistoryConfig() (*HistoryData, error)
	GetManagement() (*ManagementData, error)

	// Configuration management (SQLite-backed deployments only)
	SetBatchSize(machineID uint16, size int) error
	SetToolActive(machineID uint16, slot int16, active bool) error
	SetManualOffset(machineID uint16, slot int16, offset float64) error

	IsReadOnly() bool
	Close() error
}

// Batch sizing limits. A machine's batch size defaults to DefaultBatchSize
// when unset and is clamped to MaxBatchSize regardless of source.
const (
	DefaultBatchSize = 5
	MaxBatchSize     = 30
)

// Reset handshake variants for the gauge's completion flag. A deployment
// uses exactly one; they are never mixed on a single connection.
const (
	// ResetModePulse asserts and immediately deasserts the reset signal on
	// the rising edge of the completion flag.
	ResetModePulse = "pulse"
	// ResetModeTracking asserts on the rising edge and deasserts on the
	// falling edge, mirroring the flag.
	ResetModeTracking = "tracking"
)

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Gauge      GaugeData       `json:"gauge"`
	Machines   []MachineData   `json:"machines"`
	History    HistoryData     `json:"history,omitempty"`
	Management *ManagementData `json:"management,omitempty"`
}

// GaugeData holds the gauge head connection and protocol parameters. The
// command strings are pre-encoded request frames in hex, supplied by the
// integrator for the specific PLC register block the gauge publishes.
type GaugeData struct {
	Hostname     string          `json:"hostname,omitempty"`
	Port         string          `json:"port,omitempty"`
	SerialDevice string          `json:"serial_device,omitempty"`
	Baud         int             `json:"baud,omitempty"`
	PollMs       int             `json:"poll_ms,omitempty"`
	ResetMode    string          `json:"reset_mode,omitempty"`
	ReadCmdHex   string          `json:"read_cmd_hex"`
	AssertCmdHex string          `json:"assert_cmd_hex"`
	ClearCmdHex  string          `json:"clear_cmd_hex"`
	Layout       FrameLayoutData `json:"layout,omitempty"`
}

// FrameLayoutData pins the byte positions of the decoded response payload.
// Zero values select the defaults for the deployed gauge model.
type FrameLayoutData struct {
	MachineIDOffset int   `json:"machine_id_offset,omitempty"`
	StatusOffset    int   `json:"status_offset,omitempty"`
	EndCodeOffset   int   `json:"end_code_offset,omitempty"`
	CompleteCode    int   `json:"complete_code,omitempty"`
	ValueOffsets    []int `json:"value_offsets,omitempty"`
}

// MachineData holds one CNC controller plus its paired tool profiles.
type MachineData struct {
	ID             uint16     `json:"id"`
	Name           string     `json:"name"`
	Hostname       string     `json:"hostname"`
	Port           int16      `json:"port"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty"`
	BatchSize      int        `json:"batch_size,omitempty"`
	Tools          []ToolData `json:"tools"`
}

// ToolData is the calibration configuration for one tool slot.
type ToolData struct {
	Slot         int16   `json:"slot"`
	Name         string  `json:"name,omitempty"`
	BasicSize    float64 `json:"basic_size"`
	ManualOffset float64 `json:"manual_offset,omitempty"`
	OffsetRate   float64 `json:"offset_rate,omitempty"`
	Active       bool    `json:"active"`
}

// HistoryData holds the configuration for offset-history storage backends
type HistoryData struct {
	SQLite   *SQLiteHistoryData   `json:"sqlite,omitempty"`
	Postgres *PostgresHistoryData `json:"postgres,omitempty"`
}

type SQLiteHistoryData struct {
	Path string `json:"path"`
}

type PostgresHistoryData struct {
	ConnectionString string `json:"connection_string"`
}

// ManagementData configures the status/management HTTP API.
type ManagementData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"`
}

// Normalize fills defaults and clamps operator-adjustable values.
func (c *ConfigData) Normalize() {
	if c.Gauge.PollMs == 0 {
		c.Gauge.PollMs = 200
	}
	if c.Gauge.ResetMode == "" {
		c.Gauge.ResetMode = ResetModePulse
	}
	for i := range c.Machines {
		m := &c.Machines[i]
		if m.BatchSize == 0 {
			m.BatchSize = DefaultBatchSize
		}
		if m.BatchSize > MaxBatchSize {
			m.BatchSize = MaxBatchSize
		}
		if m.TimeoutSeconds == 0 {
			m.TimeoutSeconds = 10
		}
		for j := range m.Tools {
			if m.Tools[j].OffsetRate == 0 {
				m.Tools[j].OffsetRate = 1.0
			}
		}
	}
}

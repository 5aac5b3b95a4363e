package config

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS gauge (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		hostname TEXT,
		port TEXT,
		serial_device TEXT,
		baud INTEGER,
		poll_ms INTEGER,
		reset_mode TEXT,
		read_cmd_hex TEXT NOT NULL,
		assert_cmd_hex TEXT NOT NULL,
		clear_cmd_hex TEXT NOT NULL,
		machine_id_offset INTEGER,
		status_offset INTEGER,
		end_code_offset INTEGER,
		complete_code INTEGER,
		value_offsets TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS machines (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		hostname TEXT NOT NULL,
		port INTEGER NOT NULL,
		timeout_seconds INTEGER,
		batch_size INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS tools (
		machine_id INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		name TEXT,
		basic_size REAL NOT NULL,
		manual_offset REAL NOT NULL DEFAULT 0,
		offset_rate REAL NOT NULL DEFAULT 1,
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (machine_id, slot)
	)`,
	`CREATE TABLE IF NOT EXISTS history_backends (
		name TEXT PRIMARY KEY,
		connection TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS management (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		listen_addr TEXT,
		port INTEGER,
		auth_token TEXT
	)`,
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create config schema: %w", err)
		}
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	gauge, err := s.GetGauge()
	if err != nil {
		return nil, fmt.Errorf("failed to load gauge config: %w", err)
	}
	config.Gauge = *gauge

	machines, err := s.GetMachines()
	if err != nil {
		return nil, fmt.Errorf("failed to load machines: %w", err)
	}
	config.Machines = machines

	history, err := s.GetHistoryConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load history config: %w", err)
	}
	config.History = *history

	management, err := s.GetManagement()
	if err != nil {
		return nil, fmt.Errorf("failed to load management config: %w", err)
	}
	config.Management = management

	config.Normalize()
	return config, nil
}

// GetGauge returns the gauge configuration row
func (s *SQLiteProvider) GetGauge() (*GaugeData, error) {
	query := `
		SELECT hostname, port, serial_device, baud, poll_ms, reset_mode,
		       read_cmd_hex, assert_cmd_hex, clear_cmd_hex,
		       machine_id_offset, status_offset, end_code_offset,
		       complete_code, value_offsets
		FROM gauge WHERE id = 1
	`

	gauge := &GaugeData{}
	var hostname, port, serialDevice, resetMode, valueOffsets sql.NullString
	var baud, pollMs, machineIDOffset, statusOffset, endCodeOffset, completeCode sql.NullInt64

	err := s.db.QueryRow(query).Scan(
		&hostname, &port, &serialDevice, &baud, &pollMs, &resetMode,
		&gauge.ReadCmdHex, &gauge.AssertCmdHex, &gauge.ClearCmdHex,
		&machineIDOffset, &statusOffset, &endCodeOffset, &completeCode,
		&valueOffsets,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no gauge row configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query gauge config: %w", err)
	}

	gauge.Hostname = hostname.String
	gauge.Port = port.String
	gauge.SerialDevice = serialDevice.String
	gauge.ResetMode = resetMode.String
	gauge.Baud = int(baud.Int64)
	gauge.PollMs = int(pollMs.Int64)
	gauge.Layout = FrameLayoutData{
		MachineIDOffset: int(machineIDOffset.Int64),
		StatusOffset:    int(statusOffset.Int64),
		EndCodeOffset:   int(endCodeOffset.Int64),
		CompleteCode:    int(completeCode.Int64),
	}
	if valueOffsets.Valid && valueOffsets.String != "" {
		for _, field := range strings.Split(valueOffsets.String, ",") {
			off, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("bad value_offsets entry %q: %w", field, err)
			}
			gauge.Layout.ValueOffsets = append(gauge.Layout.ValueOffsets, off)
		}
	}

	return gauge, nil
}

// GetMachines returns machine configurations with their tool profiles
func (s *SQLiteProvider) GetMachines() ([]MachineData, error) {
	rows, err := s.db.Query(`
		SELECT id, name, hostname, port, timeout_seconds, batch_size
		FROM machines ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []MachineData
	for rows.Next() {
		var machine MachineData
		var timeoutSeconds, batchSize sql.NullInt64

		err := rows.Scan(&machine.ID, &machine.Name, &machine.Hostname,
			&machine.Port, &timeoutSeconds, &batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine row: %w", err)
		}

		machine.TimeoutSeconds = int(timeoutSeconds.Int64)
		machine.BatchSize = int(batchSize.Int64)
		machines = append(machines, machine)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range machines {
		tools, err := s.getTools(machines[i].ID)
		if err != nil {
			return nil, err
		}
		machines[i].Tools = tools
	}

	return machines, nil
}

func (s *SQLiteProvider) getTools(machineID uint16) ([]ToolData, error) {
	rows, err := s.db.Query(`
		SELECT slot, name, basic_size, manual_offset, offset_rate, active
		FROM tools WHERE machine_id = ? ORDER BY slot
	`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools for machine %d: %w", machineID, err)
	}
	defer rows.Close()

	var tools []ToolData
	for rows.Next() {
		var tool ToolData
		var name sql.NullString

		err := rows.Scan(&tool.Slot, &name, &tool.BasicSize,
			&tool.ManualOffset, &tool.OffsetRate, &tool.Active)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool row: %w", err)
		}

		tool.Name = name.String
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

// GetHistoryConfig returns the configured history backends
func (s *SQLiteProvider) GetHistoryConfig() (*HistoryData, error) {
	rows, err := s.db.Query(`SELECT name, connection FROM history_backends`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history backends: %w", err)
	}
	defer rows.Close()

	history := &HistoryData{}
	for rows.Next() {
		var name, connection string
		if err := rows.Scan(&name, &connection); err != nil {
			return nil, fmt.Errorf("failed to scan history backend row: %w", err)
		}
		switch name {
		case "sqlite":
			history.SQLite = &SQLiteHistoryData{Path: connection}
		case "postgres":
			history.Postgres = &PostgresHistoryData{ConnectionString: connection}
		default:
			return nil, fmt.Errorf("unknown history backend: %s", name)
		}
	}
	return history, rows.Err()
}

// GetManagement returns the management API configuration, or nil when absent
func (s *SQLiteProvider) GetManagement() (*ManagementData, error) {
	query := `SELECT listen_addr, port, auth_token FROM management WHERE id = 1`

	var listenAddr, authToken sql.NullString
	var port sql.NullInt64

	err := s.db.QueryRow(query).Scan(&listenAddr, &port, &authToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query management config: %w", err)
	}

	return &ManagementData{
		ListenAddr: listenAddr.String,
		Port:       int(port.Int64),
		AuthToken:  authToken.String,
	}, nil
}

// SetBatchSize updates a machine's batch size, clamped to MaxBatchSize
func (s *SQLiteProvider) SetBatchSize(machineID uint16, size int) error {
	if size < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if size > MaxBatchSize {
		size = MaxBatchSize
	}
	result, err := s.db.Exec(`UPDATE machines SET batch_size = ? WHERE id = ?`, size, machineID)
	if err != nil {
		return fmt.Errorf("failed to update batch size: %w", err)
	}
	return s.requireRow(result, "machine", int64(machineID))
}

// SetToolActive enables or disables one tool profile
func (s *SQLiteProvider) SetToolActive(machineID uint16, slot int16, active bool) error {
	result, err := s.db.Exec(`UPDATE tools SET active = ? WHERE machine_id = ? AND slot = ?`,
		active, machineID, slot)
	if err != nil {
		return fmt.Errorf("failed to update tool active flag: %w", err)
	}
	return s.requireRow(result, "tool", int64(slot))
}

// SetManualOffset updates a tool profile's manual offset
func (s *SQLiteProvider) SetManualOffset(machineID uint16, slot int16, offset float64) error {
	result, err := s.db.Exec(`UPDATE tools SET manual_offset = ? WHERE machine_id = ? AND slot = ?`,
		offset, machineID, slot)
	if err != nil {
		return fmt.Errorf("failed to update manual offset: %w", err)
	}
	return s.requireRow(result, "tool", int64(slot))
}

// ImportConfig replaces the stored configuration with cfg. Used by the
// config-convert tool to seed a database from a YAML file.
func (s *SQLiteProvider) ImportConfig(cfg *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"gauge", "machines", "tools", "history_backends", "management"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	offsets := make([]string, len(cfg.Gauge.Layout.ValueOffsets))
	for i, off := range cfg.Gauge.Layout.ValueOffsets {
		offsets[i] = strconv.Itoa(off)
	}
	_, err = tx.Exec(`
		INSERT INTO gauge (id, hostname, port, serial_device, baud, poll_ms, reset_mode,
			read_cmd_hex, assert_cmd_hex, clear_cmd_hex,
			machine_id_offset, status_offset, end_code_offset, complete_code, value_offsets)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cfg.Gauge.Hostname, cfg.Gauge.Port, cfg.Gauge.SerialDevice, cfg.Gauge.Baud,
		cfg.Gauge.PollMs, cfg.Gauge.ResetMode,
		cfg.Gauge.ReadCmdHex, cfg.Gauge.AssertCmdHex, cfg.Gauge.ClearCmdHex,
		cfg.Gauge.Layout.MachineIDOffset, cfg.Gauge.Layout.StatusOffset,
		cfg.Gauge.Layout.EndCodeOffset, cfg.Gauge.Layout.CompleteCode,
		strings.Join(offsets, ","))
	if err != nil {
		return fmt.Errorf("failed to insert gauge config: %w", err)
	}

	for _, machine := range cfg.Machines {
		_, err = tx.Exec(`
			INSERT INTO machines (id, name, hostname, port, timeout_seconds, batch_size)
			VALUES (?, ?, ?, ?, ?, ?)
		`, machine.ID, machine.Name, machine.Hostname, machine.Port,
			machine.TimeoutSeconds, machine.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to insert machine %d: %w", machine.ID, err)
		}
		for _, tool := range machine.Tools {
			_, err = tx.Exec(`
				INSERT INTO tools (machine_id, slot, name, basic_size, manual_offset, offset_rate, active)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, machine.ID, tool.Slot, tool.Name, tool.BasicSize,
				tool.ManualOffset, tool.OffsetRate, tool.Active)
			if err != nil {
				return fmt.Errorf("failed to insert tool %d/%d: %w", machine.ID, tool.Slot, err)
			}
		}
	}

	if cfg.History.SQLite != nil {
		if _, err := tx.Exec(`INSERT INTO history_backends (name, connection) VALUES ('sqlite', ?)`,
			cfg.History.SQLite.Path); err != nil {
			return fmt.Errorf("failed to insert sqlite history backend: %w", err)
		}
	}
	if cfg.History.Postgres != nil {
		if _, err := tx.Exec(`INSERT INTO history_backends (name, connection) VALUES ('postgres', ?)`,
			cfg.History.Postgres.ConnectionString); err != nil {
			return fmt.Errorf("failed to insert postgres history backend: %w", err)
		}
	}

	if cfg.Management != nil {
		if _, err := tx.Exec(`INSERT INTO management (id, listen_addr, port, auth_token) VALUES (1, ?, ?, ?)`,
			cfg.Management.ListenAddr, cfg.Management.Port, cfg.Management.AuthToken); err != nil {
			return fmt.Errorf("failed to insert management config: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteProvider) requireRow(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d not found", what, id)
	}
	return nil
}

// IsReadOnly returns false: SQLite configs accept runtime updates
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the underlying database
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

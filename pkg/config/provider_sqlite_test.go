package config

import (
	"path/filepath"
	"testing"
)

func newTestSQLiteProvider(t *testing.T) *SQLiteProvider {
	t.Helper()
	provider, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("could not create SQLite provider: %v", err)
	}
	t.Cleanup(func() { provider.Close() })
	return provider
}

func seededConfig() *ConfigData {
	return &ConfigData{
		Gauge: GaugeData{
			Hostname:     "192.168.0.50",
			Port:         "5000",
			PollMs:       150,
			ResetMode:    ResetModeTracking,
			ReadCmdHex:   "500000ffff03000c00100001040000006017a80800",
			AssertCmdHex: "500000ffff03000d001000011401000060b1a9080001",
			ClearCmdHex:  "500000ffff03000d001000011401000060b1a9080000",
			Layout: FrameLayoutData{
				MachineIDOffset: 11,
				StatusOffset:    13,
				EndCodeOffset:   9,
				CompleteCode:    1,
				ValueOffsets:    []int{31, 35},
			},
		},
		Machines: []MachineData{
			{
				ID: 1, Name: "lathe-1", Hostname: "192.168.0.11", Port: 8193,
				TimeoutSeconds: 10, BatchSize: 5,
				Tools: []ToolData{
					{Slot: 1, Name: "OD finish", BasicSize: 48.005, OffsetRate: 1.0, Active: true},
					{Slot: 2, Name: "OD rough", BasicSize: 48.005, OffsetRate: 0.5, Active: false},
				},
			},
		},
		History: HistoryData{
			SQLite: &SQLiteHistoryData{Path: "/var/lib/inzi/history.db"},
		},
		Management: &ManagementData{ListenAddr: "0.0.0.0", Port: 9090, AuthToken: "secret"},
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	provider := newTestSQLiteProvider(t)

	if err := provider.ImportConfig(seededConfig()); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Gauge.Hostname != "192.168.0.50" || cfg.Gauge.PollMs != 150 {
		t.Errorf("gauge config: %+v", cfg.Gauge)
	}
	if cfg.Gauge.ResetMode != ResetModeTracking {
		t.Errorf("reset mode: got %q", cfg.Gauge.ResetMode)
	}
	if len(cfg.Gauge.Layout.ValueOffsets) != 2 || cfg.Gauge.Layout.ValueOffsets[1] != 35 {
		t.Errorf("value offsets: %v", cfg.Gauge.Layout.ValueOffsets)
	}

	if len(cfg.Machines) != 1 {
		t.Fatalf("machines: got %d, want 1", len(cfg.Machines))
	}
	machine := cfg.Machines[0]
	if machine.Name != "lathe-1" || machine.Port != 8193 {
		t.Errorf("machine: %+v", machine)
	}
	if len(machine.Tools) != 2 {
		t.Fatalf("tools: got %d, want 2", len(machine.Tools))
	}
	if machine.Tools[1].OffsetRate != 0.5 || machine.Tools[1].Active {
		t.Errorf("tool 2: %+v", machine.Tools[1])
	}

	if cfg.History.SQLite == nil || cfg.History.SQLite.Path != "/var/lib/inzi/history.db" {
		t.Errorf("history config: %+v", cfg.History)
	}
	if cfg.Management == nil || cfg.Management.AuthToken != "secret" {
		t.Errorf("management config: %+v", cfg.Management)
	}
}

func TestSQLiteProviderSetters(t *testing.T) {
	provider := newTestSQLiteProvider(t)
	if err := provider.ImportConfig(seededConfig()); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if provider.IsReadOnly() {
		t.Fatal("SQLite provider must accept runtime updates")
	}

	if err := provider.SetBatchSize(1, 12); err != nil {
		t.Fatalf("set batch size failed: %v", err)
	}
	if err := provider.SetToolActive(1, 2, true); err != nil {
		t.Fatalf("set tool active failed: %v", err)
	}
	if err := provider.SetManualOffset(1, 1, 0.003); err != nil {
		t.Fatalf("set manual offset failed: %v", err)
	}

	machines, err := provider.GetMachines()
	if err != nil {
		t.Fatalf("get machines failed: %v", err)
	}
	if machines[0].BatchSize != 12 {
		t.Errorf("batch size: got %d, want 12", machines[0].BatchSize)
	}
	if !machines[0].Tools[1].Active {
		t.Error("tool 2 should be active after update")
	}
	if machines[0].Tools[0].ManualOffset != 0.003 {
		t.Errorf("manual offset: got %v, want 0.003", machines[0].Tools[0].ManualOffset)
	}

	// Oversized batch sizes are clamped at the store.
	if err := provider.SetBatchSize(1, MaxBatchSize+100); err != nil {
		t.Fatalf("set batch size failed: %v", err)
	}
	machines, _ = provider.GetMachines()
	if machines[0].BatchSize != MaxBatchSize {
		t.Errorf("clamped batch size: got %d, want %d", machines[0].BatchSize, MaxBatchSize)
	}

	// Updates against unknown rows must fail loudly.
	if err := provider.SetBatchSize(99, 5); err == nil {
		t.Error("expected an error for an unknown machine")
	}
	if err := provider.SetToolActive(1, 99, true); err == nil {
		t.Error("expected an error for an unknown tool slot")
	}
}

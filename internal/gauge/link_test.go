package gauge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	"go.uber.org/zap"
)

// stubProvider serves a fixed configuration to the link.
type stubProvider struct {
	gauge config.GaugeData
}

func (p *stubProvider) LoadConfig() (*config.ConfigData, error) {
	return &config.ConfigData{Gauge: p.gauge}, nil
}
func (p *stubProvider) GetGauge() (*config.GaugeData, error)          { return &p.gauge, nil }
func (p *stubProvider) GetMachines() ([]config.MachineData, error)    { return nil, nil }
func (p *stubProvider) GetHistoryConfig() (*config.HistoryData, error) {
	return &config.HistoryData{}, nil
}
func (p *stubProvider) GetManagement() (*config.ManagementData, error) { return nil, nil }
func (p *stubProvider) SetBatchSize(uint16, int) error                 { return nil }
func (p *stubProvider) SetToolActive(uint16, int16, bool) error        { return nil }
func (p *stubProvider) SetManualOffset(uint16, int16, float64) error   { return nil }
func (p *stubProvider) IsReadOnly() bool                               { return true }
func (p *stubProvider) Close() error                                   { return nil }

func testGaugeConfig(hostname, port string) config.GaugeData {
	return config.GaugeData{
		Hostname:     hostname,
		Port:         port,
		PollMs:       10,
		ResetMode:    config.ResetModePulse,
		ReadCmdHex:   "500000ffff03000c00100001040000006017a80800",
		AssertCmdHex: "500000ffff03000d001000011401000060b1a9080001",
		ClearCmdHex:  "500000ffff03000d001000011401000060b1a9080000",
	}
}

func TestNewLinkValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.GaugeData)
		wantErr string
	}{
		{
			name:    "no target at all",
			mutate:  func(g *config.GaugeData) { g.Hostname = ""; g.Port = "" },
			wantErr: "serial device or hostname+port",
		},
		{
			name:    "bad read command hex",
			mutate:  func(g *config.GaugeData) { g.ReadCmdHex = "zz" },
			wantErr: "read command hex",
		},
		{
			name:    "bad assert command hex",
			mutate:  func(g *config.GaugeData) { g.AssertCmdHex = "abc" },
			wantErr: "reset-assert command hex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc := testGaugeConfig("127.0.0.1", "5000")
			tt.mutate(&gc)

			var wg sync.WaitGroup
			_, err := NewLink(context.Background(), &wg, &stubProvider{gauge: gc},
				make(chan types.Measurement, 1), zap.NewNop().Sugar())
			if err == nil {
				t.Fatal("expected a configuration error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLinkReceivesMeasurements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := NewSimulator("127.0.0.1:0", DefaultLayout())
	if err := sim.Start(ctx); err != nil {
		t.Fatalf("could not start simulator: %v", err)
	}

	_, port, ok := strings.Cut(sim.Addr(), ":")
	if !ok {
		t.Fatalf("unexpected simulator address %q", sim.Addr())
	}

	var wg sync.WaitGroup
	distributor := make(chan types.Measurement, 64)
	link, err := NewLink(ctx, &wg, &stubProvider{gauge: testGaugeConfig("127.0.0.1", port)},
		distributor, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("could not build link: %v", err)
	}
	if err := link.Start(); err != nil {
		t.Fatalf("could not start link: %v", err)
	}

	select {
	case m := <-distributor:
		if !m.Complete {
			t.Error("measurement not marked complete")
		}
		if m.MachineID != 1 && m.MachineID != 2 {
			t.Errorf("unexpected machine ID %d", m.MachineID)
		}
		// The simulated gauge produces readings around 48 mm.
		if v := m.Value(); v < 47 || v > 49 {
			t.Errorf("measurement %v outside the simulated range", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no measurement arrived from the simulated gauge")
	}

	if !link.Connected() {
		t.Error("link not flagged connected while receiving")
	}

	cancel()
	wg.Wait()
}

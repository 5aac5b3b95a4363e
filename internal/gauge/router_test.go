package gauge

import (
	"testing"

	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	"go.uber.org/zap"
)

func drainMeasurements(ch chan types.Measurement) []types.Measurement {
	var out []types.Measurement
	for {
		select {
		case m := <-ch:
			out = append(out, m)
		default:
			return out
		}
	}
}

func drainCommandQueue(ch chan Command) []Command {
	var out []Command
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestRouterRisingEdge(t *testing.T) {
	tests := []struct {
		name      string
		resetMode string
		frames    []Frame
		wantMeas  int
		wantCmds  []Command
	}{
		{
			name:      "pulse mode asserts and clears on rising edge",
			resetMode: config.ResetModePulse,
			frames: []Frame{
				{MachineID: 1, Complete: false, Values: []int32{480000, 480000}},
				{MachineID: 1, Complete: true, Values: []int32{480010, 479990}},
			},
			wantMeas: 2,
			wantCmds: []Command{CmdAssert, CmdClear},
		},
		{
			name:      "tracking mode clears on falling edge",
			resetMode: config.ResetModeTracking,
			frames: []Frame{
				{MachineID: 1, Complete: true, Values: []int32{480010, 479990}},
				{MachineID: 1, Complete: false, Values: []int32{480010, 479990}},
			},
			wantMeas: 2,
			wantCmds: []Command{CmdAssert, CmdClear},
		},
		{
			name:      "steady complete emits once",
			resetMode: config.ResetModePulse,
			frames: []Frame{
				{MachineID: 1, Complete: true, Values: []int32{480010, 479990}},
				{MachineID: 1, Complete: true, Values: []int32{480010, 479990}},
				{MachineID: 1, Complete: true, Values: []int32{480010, 479990}},
			},
			wantMeas: 2,
			wantCmds: []Command{CmdAssert, CmdClear},
		},
		{
			name:      "steady not-complete emits nothing",
			resetMode: config.ResetModePulse,
			frames: []Frame{
				{MachineID: 1, Complete: false, Values: []int32{480000, 480000}},
				{MachineID: 1, Complete: false, Values: []int32{480000, 480000}},
			},
			wantMeas: 0,
			wantCmds: nil,
		},
		{
			name:      "pulse mode ignores falling edge",
			resetMode: config.ResetModePulse,
			frames: []Frame{
				{MachineID: 1, Complete: true, Values: []int32{480010, 479990}},
				{MachineID: 1, Complete: false, Values: []int32{480010, 479990}},
			},
			wantMeas: 2,
			wantCmds: []Command{CmdAssert, CmdClear},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make(chan types.Measurement, 16)
			commands := make(chan Command, 16)
			router := NewRouter(out, commands, tt.resetMode, zap.NewNop().Sugar())

			for _, frame := range tt.frames {
				router.HandleFrame(frame)
			}

			meas := drainMeasurements(out)
			if len(meas) != tt.wantMeas {
				t.Errorf("measurements: got %d, want %d", len(meas), tt.wantMeas)
			}

			cmds := drainCommandQueue(commands)
			if len(cmds) != len(tt.wantCmds) {
				t.Fatalf("commands: got %v, want %v", cmds, tt.wantCmds)
			}
			for i, cmd := range cmds {
				if cmd != tt.wantCmds[i] {
					t.Errorf("command %d: got %d, want %d", i, cmd, tt.wantCmds[i])
				}
			}
		})
	}
}

func TestRouterMeasurementFields(t *testing.T) {
	out := make(chan types.Measurement, 4)
	commands := make(chan Command, 4)
	router := NewRouter(out, commands, config.ResetModePulse, zap.NewNop().Sugar())

	router.HandleFrame(Frame{MachineID: 2, Complete: true, Values: []int32{480015, 479985}})

	meas := drainMeasurements(out)
	if len(meas) != 2 {
		t.Fatalf("expected one measurement per value slot, got %d", len(meas))
	}
	for i, m := range meas {
		if m.MachineID != 2 {
			t.Errorf("measurement %d machine: got %d, want 2", i, m.MachineID)
		}
		if m.Line != i {
			t.Errorf("measurement %d line: got %d, want %d", i, m.Line, i)
		}
		if !m.Complete {
			t.Errorf("measurement %d not marked complete", i)
		}
	}
	if got := meas[0].Value(); got != 48.0015 {
		t.Errorf("measurement 0 value: got %v, want 48.0015", got)
	}
}

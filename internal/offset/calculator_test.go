package offset

import (
	"math"
	"testing"

	"github.com/boxboy523/inzi/internal/types"
)

func avgOf(v float64) *float64 { return &v }

func TestCorrection(t *testing.T) {
	tests := []struct {
		name    string
		profile types.ToolProfile
		want    float64
		wantOK  bool
	}{
		{
			name: "undersized part gets positive correction",
			profile: types.ToolProfile{
				BasicSize: 48.0, OffsetRate: 1.0, Active: true,
				LastAvg: avgOf(47.995),
			},
			want:   0.005,
			wantOK: true,
		},
		{
			name: "oversized part gets negative correction",
			profile: types.ToolProfile{
				BasicSize: 48.0, OffsetRate: 1.0, Active: true,
				LastAvg: avgOf(48.012),
			},
			want:   -0.012,
			wantOK: true,
		},
		{
			name: "manual offset biases the target",
			profile: types.ToolProfile{
				BasicSize: 48.0, ManualOffset: 0.002, OffsetRate: 1.0, Active: true,
				LastAvg: avgOf(48.0),
			},
			want:   0.002,
			wantOK: true,
		},
		{
			name: "offset rate damps the correction",
			profile: types.ToolProfile{
				BasicSize: 48.0, OffsetRate: 0.5, Active: true,
				LastAvg: avgOf(47.990),
			},
			want:   0.005,
			wantOK: true,
		},
		{
			name: "inactive profile produces nothing",
			profile: types.ToolProfile{
				BasicSize: 48.0, OffsetRate: 1.0, Active: false,
				LastAvg: avgOf(47.995),
			},
			wantOK: false,
		},
		{
			name: "no average yet produces nothing",
			profile: types.ToolProfile{
				BasicSize: 48.0, OffsetRate: 1.0, Active: true,
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Correction(&tt.profile)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("correction: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToControllerUnits(t *testing.T) {
	tests := []struct {
		name       string
		correction float64
		want       int32
	}{
		{"five microns", 0.005, 50},
		{"negative correction", -0.012, -120},
		{"half rounds away from zero", 0.00005, 1},
		{"negative half rounds away from zero", -0.00005, -1},
		{"below half truncates", 0.00004, 0},
		{"zero", 0, 0},
		{"full millimetre", 1.0, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToControllerUnits(tt.correction); got != tt.want {
				t.Errorf("units: got %d, want %d", got, tt.want)
			}
		})
	}
}

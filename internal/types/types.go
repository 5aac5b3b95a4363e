// Package types contains the shared data model for the compensation pipeline.
package types

import (
	"time"
)

// OffsetScale is the fixed-point scale used for offsets on the wire and in
// the controller API: one unit is a ten-thousandth of a millimetre.
const OffsetScale = 10000

// Record sources distinguish offsets we wrote from changes we merely observed
// on the controller (e.g. a manual operator adjustment).
const (
	RecordSourceWrite    = "write"
	RecordSourceObserved = "observed"
)

// Measurement is one decoded gauge value for one line. Produced exactly once
// per completed gauge cycle by the measurement router and consumed
// synchronously by the aggregator.
type Measurement struct {
	Timestamp time.Time
	MachineID uint16
	Line      int   // value-slot index within the frame
	Raw       int32 // signed fixed-point, OffsetScale units
	Complete  bool  // completion-flag state at capture time
}

// Value returns the measurement in millimetres.
func (m Measurement) Value() float64 {
	return float64(m.Raw) / OffsetScale
}

// ToolProfile is the calibration state for one tool slot on one machine.
// Machines in this domain pair tool slots (rough/finish passes) that share a
// single measurement stream. LastAvg and LastOffset are derived state: only
// the aggregator and calculator may set them.
type ToolProfile struct {
	MachineID    uint16
	Slot         int16
	Name         string
	BasicSize    float64
	ManualOffset float64
	OffsetRate   float64
	Active       bool
	LastAvg      *float64 // most recent trimmed-mean measurement, mm
	LastOffset   *int32   // most recent computed correction, OffsetScale units
}

// OffsetChangeRecord is the append-only audit record for every attempted
// offset write and every out-of-band change the diff poller detects.
type OffsetChangeRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `json:"timestamp"`
	MachineID uint16    `json:"machine_id"`
	ToolSlot  int16     `json:"tool_slot"`
	OldValue  int32     `json:"old_value"`
	Delta     int32     `json:"delta"`
	NewValue  int32     `json:"new_value"`
	Success   bool      `json:"success"`
	Source    string    `json:"source"`
}

// TableName implements the gorm Tabler interface.
func (OffsetChangeRecord) TableName() string {
	return "offset_history"
}

// ToolStatus is a snapshot of one tool slot for the management API.
type ToolStatus struct {
	Slot    int16    `json:"slot"`
	Name    string   `json:"name"`
	Active  bool     `json:"active"`
	Offset  float64  `json:"offset"`
	LastAvg *float64 `json:"last_avg,omitempty"`
}

// MachineStatus is a snapshot of one controller session for the management API.
type MachineStatus struct {
	ID        uint16       `json:"id"`
	Name      string       `json:"name"`
	Hostname  string       `json:"hostname"`
	Port      int16        `json:"port"`
	Connected bool         `json:"connected"`
	Busy      bool         `json:"busy"`
	Tools     []ToolStatus `json:"tools"`
}

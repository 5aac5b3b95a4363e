package controller

import (
	"context"
	"sync"
	"time"

	"github.com/boxboy523/inzi/internal/aggregator"
	"github.com/boxboy523/inzi/internal/offset"
	"github.com/boxboy523/inzi/internal/types"
	"go.uber.org/zap"
)

// Coordinator consumes the measurement stream, feeds the aggregator, and
// when a batch completes dispatches one write task per machine. Writes for
// different machines run concurrently; a machine with a write already in
// flight has its batch skipped outright, so no backlog can build while a
// controller is slow or unreachable.
type Coordinator struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	sessions map[uint16]*Session
	profiles map[uint16][]*types.ToolProfile
	agg      *aggregator.Aggregator
	history  chan<- types.OffsetChangeRecord
	ledger   *offsetLedger
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[uint16]bool
}

// NewCoordinator builds a coordinator over the given sessions and profiles.
// The aggregator is attached afterwards with SetAggregator because the
// aggregator needs the coordinator as its availability gate.
func NewCoordinator(ctx context.Context, wg *sync.WaitGroup, sessions map[uint16]*Session, profiles map[uint16][]*types.ToolProfile, history chan<- types.OffsetChangeRecord, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		ctx:      ctx,
		wg:       wg,
		sessions: sessions,
		profiles: profiles,
		history:  history,
		ledger:   newOffsetLedger(),
		logger:   logger,
		inflight: make(map[uint16]bool),
	}
}

// SetAggregator attaches the sample aggregator.
func (c *Coordinator) SetAggregator(agg *aggregator.Aggregator) {
	c.agg = agg
}

// Available implements aggregator.SessionGate: a machine can take a batch
// only when its session is connected, idle, and has no write task running.
func (c *Coordinator) Available(machineID uint16) bool {
	session, known := c.sessions[machineID]
	if !known {
		return false
	}
	c.mu.Lock()
	inflight := c.inflight[machineID]
	c.mu.Unlock()
	return !inflight && session.Connected() && !session.Busy()
}

// Run consumes measurements until the context is cancelled.
func (c *Coordinator) Run(measurements <-chan types.Measurement) {
	c.wg.Add(1)
	go c.consume(measurements)
}

func (c *Coordinator) consume(measurements <-chan types.Measurement) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("cancellation request received. Cancelling write coordinator")
			return
		case m := <-measurements:
			c.agg.Insert(m.MachineID, m.Value())
			if avg, ok := c.agg.TryExtract(m.MachineID); ok {
				c.applyBatch(m.MachineID, avg)
			}
		}
	}
}

// ToolStatuses copies one machine's tool profiles into API snapshots. Profile
// fields mutate under the coordinator's lock, so the live pointers never
// leave this package; callers get value copies.
func (c *Coordinator) ToolStatuses(machineID uint16) []types.ToolStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	var statuses []types.ToolStatus
	for _, p := range c.profiles[machineID] {
		status := types.ToolStatus{
			Slot:   p.Slot,
			Name:   p.Name,
			Active: p.Active,
		}
		if p.LastAvg != nil {
			avg := *p.LastAvg
			status.LastAvg = &avg
		}
		if p.LastOffset != nil {
			status.Offset = float64(*p.LastOffset) / types.OffsetScale
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// UpdateProfile applies a configuration change to a live profile.
func (c *Coordinator) UpdateProfile(machineID uint16, slot int16, apply func(*types.ToolProfile)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.profiles[machineID] {
		if p.Slot == slot {
			apply(p)
			return true
		}
	}
	return false
}

type toolWrite struct {
	slot  int16
	units int32
}

// applyBatch stores the new average on every profile sharing the machine's
// measurement stream, computes corrections for the active ones, and spawns
// the write task. Inactive profiles get their average updated but are never
// written.
func (c *Coordinator) applyBatch(machineID uint16, avg float64) {
	c.mu.Lock()
	if c.inflight[machineID] {
		// Should not happen: availability is checked at extraction.
		c.mu.Unlock()
		c.logger.Warnf("machine %d already has a write in flight, skipping batch", machineID)
		return
	}

	var writes []toolWrite
	for _, p := range c.profiles[machineID] {
		v := avg
		p.LastAvg = &v
		correction, ok := offset.Correction(p)
		if !ok {
			continue
		}
		units := offset.ToControllerUnits(correction)
		p.LastOffset = &units
		writes = append(writes, toolWrite{slot: p.Slot, units: units})
	}

	if len(writes) == 0 {
		c.mu.Unlock()
		c.logger.Debugf("no active tool profiles for machine %d, batch average %.4f recorded only", machineID, avg)
		return
	}

	c.inflight[machineID] = true
	c.mu.Unlock()

	c.logger.Infof("batch complete for machine %d: avg %.4f mm, %d tool write(s)", machineID, avg, len(writes))

	c.wg.Add(1)
	go c.writeCorrections(machineID, writes)
}

// writeCorrections applies the corrections for one machine, one tool slot at
// a time. Each write is incremental: read the controller's current value and
// add the correction, so manual adjustments made between cycles survive.
// One history record is emitted per attempt, success or not.
func (c *Coordinator) writeCorrections(machineID uint16, writes []toolWrite) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, machineID)
		c.mu.Unlock()
	}()

	session := c.sessions[machineID]
	for _, w := range writes {
		current, err := session.ReadOffset(w.slot)
		if err != nil {
			c.logger.Errorf("could not read current offset for tool %d on machine %d: %v", w.slot, machineID, err)
			c.record(machineID, w.slot, 0, w.units, 0, false)
			continue
		}

		newValue := current + w.units
		err = session.WriteOffset(w.slot, newValue)
		if err != nil {
			c.logger.Errorf("offset write for tool %d on machine %d failed: %v", w.slot, machineID, err)
		} else {
			c.ledger.set(machineID, w.slot, newValue)
		}
		c.record(machineID, w.slot, current, w.units, newValue, err == nil)
	}
}

func (c *Coordinator) record(machineID uint16, slot int16, oldValue, delta, newValue int32, success bool) {
	c.history <- types.OffsetChangeRecord{
		Timestamp: time.Now(),
		MachineID: machineID,
		ToolSlot:  slot,
		OldValue:  oldValue,
		Delta:     delta,
		NewValue:  newValue,
		Success:   success,
		Source:    types.RecordSourceWrite,
	}
}

// offsetLedger remembers the last value we wrote or observed per tool slot
// so the diff poller can tell an out-of-band change from our own writes.
type offsetLedger struct {
	mu     sync.Mutex
	values map[ledgerKey]int32
}

type ledgerKey struct {
	machineID uint16
	slot      int16
}

func newOffsetLedger() *offsetLedger {
	return &offsetLedger{values: make(map[ledgerKey]int32)}
}

func (l *offsetLedger) set(machineID uint16, slot int16, value int32) {
	l.mu.Lock()
	l.values[ledgerKey{machineID, slot}] = value
	l.mu.Unlock()
}

// swap records value and returns the previous one, if any.
func (l *offsetLedger) swap(machineID uint16, slot int16, value int32) (int32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{machineID, slot}
	prev, seen := l.values[key]
	l.values[key] = value
	return prev, seen
}

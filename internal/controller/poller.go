package controller

import (
	"context"
	"sync"
	"time"

	"github.com/boxboy523/inzi/internal/types"
	"go.uber.org/zap"
)

// diffPollInterval is how often stored offsets are re-read to catch changes
// made at the machine panel.
const diffPollInterval = 30 * time.Second

// DiffPoller periodically reads every tool slot's stored offset and compares
// it against the last value this process wrote or observed. A mismatch means
// somebody changed the offset out of band (typically an operator at the
// panel); it is logged to history so the audit trail stays complete.
type DiffPoller struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	coordinator *Coordinator
	history     chan<- types.OffsetChangeRecord
	logger      *zap.SugaredLogger
}

// NewDiffPoller builds a poller sharing the coordinator's sessions and
// offset ledger.
func NewDiffPoller(ctx context.Context, wg *sync.WaitGroup, coordinator *Coordinator, history chan<- types.OffsetChangeRecord, logger *zap.SugaredLogger) *DiffPoller {
	return &DiffPoller{
		ctx:         ctx,
		wg:          wg,
		coordinator: coordinator,
		history:     history,
		logger:      logger,
	}
}

// Run starts the poll loop.
func (p *DiffPoller) Run() {
	p.wg.Add(1)
	go p.loop()
}

func (p *DiffPoller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(diffPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("cancellation request received. Cancelling offset diff poller")
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

// pollOnce sweeps every machine. A busy or unreachable session is skipped
// for the sweep; read failures are skipped per slot. Reads never trigger
// reconnection.
func (p *DiffPoller) pollOnce() {
	for machineID, session := range p.coordinator.sessions {
		if !p.coordinator.Available(machineID) {
			continue
		}
		for _, profile := range p.coordinator.profiles[machineID] {
			value, err := session.ReadOffset(profile.Slot)
			if err != nil {
				p.logger.Debugf("diff poll read failed for tool %d on machine %d: %v", profile.Slot, machineID, err)
				continue
			}

			prev, seen := p.coordinator.ledger.swap(machineID, profile.Slot, value)
			if !seen || prev == value {
				continue
			}

			p.logger.Infof("out-of-band offset change on machine %d tool %d: %d -> %d",
				machineID, profile.Slot, prev, value)
			p.history <- types.OffsetChangeRecord{
				Timestamp: time.Now(),
				MachineID: machineID,
				ToolSlot:  profile.Slot,
				OldValue:  prev,
				Delta:     value - prev,
				NewValue:  value,
				Success:   true,
				Source:    types.RecordSourceObserved,
			}
		}
	}
}

// Package aggregator buffers raw gauge samples per machine and reduces each
// full batch to a single trimmed-mean value.
package aggregator

import (
	"sort"
	"sync"

	"github.com/boxboy523/inzi/pkg/config"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// SessionGate reports whether a machine's controller can accept work right
// now. The aggregator never consumes samples for a machine that cannot.
type SessionGate interface {
	Available(machineID uint16) bool
}

// Aggregator owns the per-machine sample queues. All access to a queue goes
// through one mutex so the check-threshold/drain/reset sequence can never
// race an insert.
type Aggregator struct {
	mu      sync.Mutex
	queues  map[uint16][]float64
	sizes   map[uint16]int
	gate    SessionGate
	logger  *zap.SugaredLogger
	dropped map[uint16]uint64
}

// New builds an aggregator with one queue per configured machine.
func New(machines []config.MachineData, gate SessionGate, logger *zap.SugaredLogger) *Aggregator {
	a := &Aggregator{
		queues:  make(map[uint16][]float64),
		sizes:   make(map[uint16]int),
		gate:    gate,
		logger:  logger,
		dropped: make(map[uint16]uint64),
	}
	for _, m := range machines {
		a.queues[m.ID] = nil
		a.sizes[m.ID] = clampBatchSize(m.BatchSize)
	}
	return a
}

// Insert appends one raw sample (millimetres) to a machine's queue. Samples
// for machines missing from the configuration are discarded with a
// diagnostic. While a machine's controller is unavailable the queue is
// capped at the batch size: the oldest sample is dropped to make room, so a
// controller that stays unreachable never grows a backlog.
func (a *Aggregator) Insert(machineID uint16, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	queue, known := a.queues[machineID]
	if !known {
		a.logger.Warnf("discarding sample for unconfigured machine %d", machineID)
		return
	}

	if len(queue) >= a.sizes[machineID] {
		queue = queue[1:]
		a.dropped[machineID]++
	}
	a.queues[machineID] = append(queue, value)
}

// TryExtract drains a machine's queue into one trimmed-mean average. It
// returns false while the controller is busy or disconnected (back-pressure)
// and while the queue is below the batch size. After a successful extraction
// the queue is empty: no second average can be produced until a full batch
// accumulates again.
func (a *Aggregator) TryExtract(machineID uint16) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	queue, known := a.queues[machineID]
	if !known || len(queue) < a.sizes[machineID] {
		return 0, false
	}
	if !a.gate.Available(machineID) {
		return 0, false
	}

	a.queues[machineID] = nil
	return trimmedMean(queue), true
}

// SetBatchSize adjusts a machine's batch threshold at runtime. Shrinking the
// threshold below the current queue length drops the oldest samples so the
// queue never exceeds the batch size.
func (a *Aggregator) SetBatchSize(machineID uint16, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, known := a.sizes[machineID]; !known {
		return
	}

	clamped := clampBatchSize(size)
	a.sizes[machineID] = clamped
	if queue := a.queues[machineID]; len(queue) > clamped {
		excess := len(queue) - clamped
		a.dropped[machineID] += uint64(excess)
		a.queues[machineID] = append([]float64(nil), queue[excess:]...)
	}
}

// Pending returns how many samples a machine has queued.
func (a *Aggregator) Pending(machineID uint16) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queues[machineID])
}

func clampBatchSize(size int) int {
	if size < 1 {
		return config.DefaultBatchSize
	}
	if size > config.MaxBatchSize {
		return config.MaxBatchSize
	}
	return size
}

// trimmedMean sorts the batch and, when more than two samples are present,
// discards the single minimum and single maximum before averaging. This
// rejects one-off gauge glitches without a full outlier model.
func trimmedMean(values []float64) float64 {
	sort.Float64s(values)
	if len(values) > 2 {
		values = values[1 : len(values)-1]
	}
	return stat.Mean(values, nil)
}

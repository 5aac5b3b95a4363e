package gauge

import (
	"time"

	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	"go.uber.org/zap"
)

// Command is one outbound request the link can send to the gauge.
type Command int

const (
	// CmdRead requests the gauge's current status block.
	CmdRead Command = iota
	// CmdAssert raises the reset-acknowledge signal on the gauge side.
	CmdAssert
	// CmdClear lowers the reset-acknowledge signal.
	CmdClear
)

// Router watches the decoded frame stream for the rising edge of the
// completion flag and publishes one Measurement per value line exactly once
// per gauge cycle. It also drives the reset handshake for the configured
// protocol variant. A router serves one connection and is only ever called
// from that connection's session loop, so the previous-flag state needs no
// locking.
type Router struct {
	out          chan<- types.Measurement
	commands     chan<- Command
	resetMode    string
	logger       *zap.SugaredLogger
	lastComplete bool
}

// NewRouter returns a router publishing measurements to out and reset
// commands to the link's command queue.
func NewRouter(out chan<- types.Measurement, commands chan<- Command, resetMode string, logger *zap.SugaredLogger) *Router {
	return &Router{
		out:       out,
		commands:  commands,
		resetMode: resetMode,
		logger:    logger,
	}
}

// HandleFrame routes one decoded frame. Only a not-complete to complete
// transition produces measurements; steady states and unknown status codes
// produce nothing.
func (r *Router) HandleFrame(frame Frame) {
	switch {
	case frame.Complete && !r.lastComplete:
		r.emit(frame)
		r.enqueue(CmdAssert)
		if r.resetMode == config.ResetModePulse {
			r.enqueue(CmdClear)
		}
	case !frame.Complete && r.lastComplete:
		if r.resetMode == config.ResetModeTracking {
			r.enqueue(CmdClear)
		}
	}
	r.lastComplete = frame.Complete
}

func (r *Router) emit(frame Frame) {
	now := time.Now()
	for line, raw := range frame.Values {
		m := types.Measurement{
			Timestamp: now,
			MachineID: frame.MachineID,
			Line:      line,
			Raw:       raw,
			Complete:  true,
		}
		r.logger.Debugf("gauge cycle complete for machine %d: line %d = %.4f mm",
			m.MachineID, m.Line, m.Value())
		r.out <- m
	}
}

// enqueue hands a reset command to the link without blocking the frame
// stream. A full queue means the connection is already wedged; the command
// is dropped and the link's poll cycle will surface the failure.
func (r *Router) enqueue(cmd Command) {
	select {
	case r.commands <- cmd:
	default:
		r.logger.Warnf("gauge command queue full, dropping command %d", cmd)
	}
}

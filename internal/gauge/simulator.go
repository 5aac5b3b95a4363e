package gauge

import (
	"context"
	"encoding/binary"
	"math/rand"
	"net"

	"github.com/boxboy523/inzi/internal/log"
)

// Simulator is a fake gauge head for bench and standalone use. It answers
// every inbound request with a layout-correct status frame, toggles the
// completion flag every few responses, and alternates the reporting machine
// when the flag drops, approximating a two-lathe line feeding one gauge.
type Simulator struct {
	addr     string
	layout   FrameLayout
	listener net.Listener
}

// NewSimulator returns a simulator that will listen on addr.
func NewSimulator(addr string, layout FrameLayout) *Simulator {
	return &Simulator{addr: addr, layout: layout}
}

// Start binds the listener and serves until the context is cancelled.
func (s *Simulator) Start(ctx context.Context) error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	log.Infof("Simulated gauge server listening on %v", s.listener.Addr())

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listen address.
func (s *Simulator) Addr() string {
	return s.listener.Addr().String()
}

func (s *Simulator) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Errorf("simulated gauge accept failed: %v", err)
			}
			return
		}
		go s.serveConn(ctx, conn)
	}
}

// serveConn answers requests on one connection. Reset-acknowledge writes are
// requests too; the gauge hardware answers those with the same status block,
// so responding uniformly is faithful enough for the client.
func (s *Simulator) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var (
		responses uint
		machineID uint16 = 1
		complete  bool
	)

	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}

		responses++
		// Hold each flag state for a few polls, like the real PLC does.
		nowComplete := (responses/4)%2 == 1
		if complete && !nowComplete {
			if machineID == 1 {
				machineID = 2
			} else {
				machineID = 1
			}
		}
		complete = nowComplete

		if _, err := conn.Write(s.buildFrame(machineID, complete)); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// buildFrame assembles one response frame: 48 mm nominal with a few microns
// of jitter per value slot.
func (s *Simulator) buildFrame(machineID uint16, complete bool) []byte {
	size := s.layout.minFrameSize()
	frame := make([]byte, size)

	copy(frame[0:7], []byte{0xD0, 0x00, 0x00, 0xFF, 0xFF, 0x03, 0x00})
	binary.LittleEndian.PutUint16(frame[lengthOffset:], uint16(size-headerSize))
	binary.LittleEndian.PutUint16(frame[s.layout.EndCodeOffset:], 0)
	binary.LittleEndian.PutUint16(frame[s.layout.MachineIDOffset:], machineID)

	status := uint16(0)
	if complete {
		status = s.layout.CompleteCode
	}
	binary.LittleEndian.PutUint16(frame[s.layout.StatusOffset:], status)

	for _, off := range s.layout.ValueOffsets {
		jitter := int16(rand.Intn(100) - 50)
		binary.LittleEndian.PutUint16(frame[off:], 48)
		binary.LittleEndian.PutUint16(frame[off+2:], uint16(jitter))
	}

	return frame
}

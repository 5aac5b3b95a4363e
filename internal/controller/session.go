// Package controller owns the per-machine CNC sessions: busy/connectivity
// gating, the write-path reconnect policy, offset write coordination, and
// the out-of-band change poller.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boxboy523/inzi/pkg/config"
	"github.com/boxboy523/inzi/pkg/focas"
	"go.uber.org/zap"
)

// reconnectWait is the fixed delay between reconnection attempts.
var reconnectWait = 5 * time.Second

var (
	// ErrBusy means another operation holds the session's native handle.
	ErrBusy = errors.New("controller busy")
	// ErrNotConnected means the session has no live native handle.
	ErrNotConnected = errors.New("controller unreachable")
)

// Session is the exclusive owner of one machine's native library handle.
// Exactly one Session exists per configured machine for the life of the
// process; reconnects replace the handle inside it, never the Session.
//
// Every native call is bracketed by the busy flag: acquire checks
// busy/connectivity and fails fast, and release always runs, so two native
// calls can never overlap on one handle.
type Session struct {
	ctx     context.Context
	machine config.MachineData
	driver  focas.Driver
	logger  *zap.SugaredLogger

	mu        sync.Mutex
	handle    focas.Handle
	busy      bool
	connected bool
}

// NewSession builds a session for one machine. No connection is attempted;
// call Connect.
func NewSession(ctx context.Context, machine config.MachineData, driver focas.Driver, logger *zap.SugaredLogger) *Session {
	return &Session{
		ctx:     ctx,
		machine: machine,
		driver:  driver,
		logger:  logger,
	}
}

// MachineID returns the configured machine identifier.
func (s *Session) MachineID() uint16 {
	return s.machine.ID
}

// Machine returns the machine's configuration.
func (s *Session) Machine() config.MachineData {
	return s.machine
}

// Connect performs the startup connection attempt. Failure is not fatal: the
// session stays disconnected and RetryConnect or the write path's reconnect
// loop will bring it up when the controller appears.
func (s *Session) Connect() error {
	timeout := time.Duration(s.machine.TimeoutSeconds) * time.Second
	handle, err := s.driver.Connect(s.machine.Hostname, s.machine.Port, timeout)
	if err != nil {
		return fmt.Errorf("could not connect to CNC %s at %s:%d: %w",
			s.machine.Name, s.machine.Hostname, s.machine.Port, err)
	}

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		s.driver.Release(handle)
		return nil
	}
	s.handle = handle
	s.connected = true
	s.mu.Unlock()

	s.logger.Infof("Connected to CNC %s at %s:%d", s.machine.Name, s.machine.Hostname, s.machine.Port)
	return nil
}

// RetryConnect keeps retrying the startup connection in the caller's
// goroutine, one attempt every reconnectWait, until the session comes up or
// the process shuts down. Run for machines that were offline at startup so
// they rejoin without a restart.
func (s *Session) RetryConnect() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
		if s.Connected() {
			return
		}
		if err := s.Connect(); err != nil {
			s.logger.Warnf("CNC %s still unavailable: %v. Retrying in %v", s.machine.Name, err, reconnectWait)
			continue
		}
		return
	}
}

// Busy reports whether a native call is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Connected reports whether the session holds a live handle.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// acquire claims the handle for one native call. Callers that fail to
// acquire must retry on a later cycle; nothing is queued.
func (s *Session) acquire() (focas.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return 0, ErrBusy
	}
	if !s.connected {
		return 0, ErrNotConnected
	}
	s.busy = true
	return s.handle, nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// ReadOffset reads a tool slot's stored offset. Reads are single-shot: a
// failure is returned to the caller and does not trigger reconnection; the
// next cycle simply retries.
func (s *Session) ReadOffset(slot int16) (int32, error) {
	handle, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer s.release()

	value, err := s.driver.ReadOffset(handle, slot)
	if err != nil {
		return 0, fmt.Errorf("read offset for tool %d on %s failed: %w", slot, s.machine.Name, err)
	}
	return value, nil
}

// ReadLife reads a tool slot's remaining life counter. Single-shot like
// ReadOffset.
func (s *Session) ReadLife(slot int16) (int16, error) {
	handle, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer s.release()

	life, err := s.driver.ReadLife(handle, slot)
	if err != nil {
		return 0, fmt.Errorf("read life for tool %d on %s failed: %w", slot, s.machine.Name, err)
	}
	return life, nil
}

// ReadCount reads a tool slot's machined-parts counter.
func (s *Session) ReadCount(slot int16) (int16, error) {
	handle, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer s.release()

	count, err := s.driver.ReadCount(handle, slot)
	if err != nil {
		return 0, fmt.Errorf("read count for tool %d on %s failed: %w", slot, s.machine.Name, err)
	}
	return count, nil
}

// WriteOffset stores an absolute offset for a tool slot. The session is held
// busy for the whole operation, reconnects included: a write that finds the
// controller unreachable, or loses it mid-call, re-acquires a handle every
// few seconds for as long as it takes and then retries the original write,
// with no window for another caller to take the session in between. Only
// shutdown aborts the loop.
func (s *Session) WriteOffset(slot int16, value int32) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	handle := s.handle
	connected := s.connected
	s.mu.Unlock()
	defer s.release()

	if !connected {
		if err := s.reconnect(); err != nil {
			return err
		}
		handle = s.currentHandle()
	}

	for {
		writeErr := s.driver.WriteOffset(handle, slot, value)
		if writeErr == nil {
			s.logger.Infof("wrote offset %d to tool %d on %s", value, slot, s.machine.Name)
			return nil
		}

		s.logger.Errorf("write to tool %d on %s failed: %v. Reconnecting...", slot, s.machine.Name, writeErr)
		s.driver.Release(handle)
		s.mu.Lock()
		s.handle = 0
		s.connected = false
		s.mu.Unlock()

		if err := s.reconnect(); err != nil {
			return err
		}
		handle = s.currentHandle()
	}
}

func (s *Session) currentHandle() focas.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// reconnect retries handle acquisition every reconnectWait until it
// succeeds or the context is cancelled.
func (s *Session) reconnect() error {
	timeout := time.Duration(s.machine.TimeoutSeconds) * time.Second
	for {
		handle, err := s.driver.Connect(s.machine.Hostname, s.machine.Port, timeout)
		if err == nil {
			s.mu.Lock()
			if s.connected {
				s.mu.Unlock()
				s.driver.Release(handle)
				return nil
			}
			s.handle = handle
			s.connected = true
			s.mu.Unlock()
			s.logger.Infof("reconnected to CNC %s at %s:%d", s.machine.Name, s.machine.Hostname, s.machine.Port)
			return nil
		}

		s.logger.Errorf("reconnection to CNC %s at %s:%d failed: %v. Retrying in %v",
			s.machine.Name, s.machine.Hostname, s.machine.Port, err, reconnectWait)
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-time.After(reconnectWait):
		}
	}
}

// Close releases the native handle. Safe when already disconnected.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.driver.Release(s.handle)
		s.handle = 0
		s.connected = false
	}
}

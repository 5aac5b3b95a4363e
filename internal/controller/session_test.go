package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boxboy523/inzi/pkg/config"
	"github.com/boxboy523/inzi/pkg/focas"
	"go.uber.org/zap"
)

var testMachine = config.MachineData{
	ID: 1, Name: "lathe-1", Hostname: focas.SimHost, Port: 8193, TimeoutSeconds: 1,
}

// flakyDriver fails a fixed number of writes before behaving normally.
type flakyDriver struct {
	*focas.SimDriver
	writeFailures int32
}

func (d *flakyDriver) WriteOffset(h focas.Handle, slot int16, value int32) error {
	if atomic.AddInt32(&d.writeFailures, -1) >= 0 {
		return focas.Errno(-16)
	}
	return d.SimDriver.WriteOffset(h, slot, value)
}

func TestSessionReadWrite(t *testing.T) {
	driver := focas.NewSimDriver()
	driver.SetOffset(1, 100)

	s := NewSession(context.Background(), testMachine, driver, zap.NewNop().Sugar())
	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer s.Close()

	if !s.Connected() {
		t.Fatal("session not connected after Connect")
	}

	got, err := s.ReadOffset(1)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != 100 {
		t.Errorf("read offset: got %d, want 100", got)
	}

	if err := s.WriteOffset(1, 150); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if driver.Offset(1) != 150 {
		t.Errorf("controller offset: got %d, want 150", driver.Offset(1))
	}
	if s.Busy() {
		t.Error("session still busy after write returned")
	}
}

func TestReadRejectsWhenNotConnected(t *testing.T) {
	s := NewSession(context.Background(), testMachine, focas.NewSimDriver(), zap.NewNop().Sugar())

	if _, err := s.ReadOffset(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("read on disconnected session: got %v, want ErrNotConnected", err)
	}
}

func TestWriteConnectsDownedSession(t *testing.T) {
	// A write through a session whose controller was unreachable brings the
	// connection up first instead of failing fast.
	driver := focas.NewSimDriver()
	driver.FailConnect(true)

	s := NewSession(context.Background(), testMachine, driver, zap.NewNop().Sugar())
	if err := s.Connect(); err == nil {
		t.Fatal("startup connect should have failed")
	}

	driver.FailConnect(false)
	if err := s.WriteOffset(1, 10); err != nil {
		t.Fatalf("write after controller recovery: %v", err)
	}
	defer s.Close()

	if !s.Connected() {
		t.Error("session not connected after recovered write")
	}
	if driver.Offset(1) != 10 {
		t.Errorf("controller offset: got %d, want 10", driver.Offset(1))
	}
}

func TestStartupRetryReconnects(t *testing.T) {
	oldWait := reconnectWait
	reconnectWait = 10 * time.Millisecond
	defer func() { reconnectWait = oldWait }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := focas.NewSimDriver()
	driver.FailConnect(true)

	s := NewSession(ctx, testMachine, driver, zap.NewNop().Sugar())
	if err := s.Connect(); err == nil {
		t.Fatal("startup connect should have failed")
	}
	go s.RetryConnect()

	// Let a few attempts fail before the controller appears.
	time.Sleep(30 * time.Millisecond)
	driver.FailConnect(false)

	deadline := time.Now().Add(2 * time.Second)
	for !s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("session never reconnected after controller recovery")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()
}

func TestSessionRejectsWhenBusy(t *testing.T) {
	s := NewSession(context.Background(), testMachine, focas.NewSimDriver(), zap.NewNop().Sugar())
	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer s.Close()

	// Hold the handle the way an in-flight native call would.
	if _, err := s.acquire(); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer s.release()

	if !s.Busy() {
		t.Fatal("session not busy while handle is held")
	}
	if _, err := s.ReadOffset(1); !errors.Is(err, ErrBusy) {
		t.Errorf("read on busy session: got %v, want ErrBusy", err)
	}
}

func TestWriteFailureReconnectsAndRetries(t *testing.T) {
	driver := &flakyDriver{SimDriver: focas.NewSimDriver(), writeFailures: 1}
	driver.SetOffset(2, 500)

	s := NewSession(context.Background(), testMachine, driver, zap.NewNop().Sugar())
	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer s.Close()

	// The first write fails, the session reconnects, and the same write is
	// retried on the fresh handle.
	if err := s.WriteOffset(2, 510); err != nil {
		t.Fatalf("write did not recover: %v", err)
	}
	if driver.Offset(2) != 510 {
		t.Errorf("controller offset: got %d, want 510", driver.Offset(2))
	}
	if !s.Connected() {
		t.Error("session not connected after recovery")
	}
}

func TestWriteReconnectAbortsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	driver := focas.NewSimDriver()

	s := NewSession(ctx, testMachine, driver, zap.NewNop().Sugar())
	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	// All writes and all reconnection attempts fail from here on.
	driver.FailWrites(true)
	driver.FailConnect(true)

	done := make(chan error, 1)
	go func() { done <- s.WriteOffset(1, 10) }()

	time.Sleep(50 * time.Millisecond)
	if s.Connected() {
		t.Error("session should be flagged disconnected while reconnecting")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("write after shutdown: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write did not abort on shutdown")
	}
}

func TestWriteHoldsSessionAcrossReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	driver := focas.NewSimDriver()

	s := NewSession(ctx, testMachine, driver, zap.NewNop().Sugar())
	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	driver.FailWrites(true)
	driver.FailConnect(true)

	done := make(chan error, 1)
	go func() { done <- s.WriteOffset(1, 10) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("write never entered the reconnect loop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// While the write is reconnecting no other caller can take the session
	// and preempt the retry of the original write.
	if !s.Busy() {
		t.Error("session not held busy during write reconnect")
	}
	if _, err := s.ReadLife(1); !errors.Is(err, ErrBusy) {
		t.Errorf("read during write reconnect: got %v, want ErrBusy", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("write after shutdown: got %v, want context.Canceled", err)
	}
	if s.Busy() {
		t.Error("session still busy after the write returned")
	}
}

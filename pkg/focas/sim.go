package focas

import (
	"errors"
	"sync"
	"time"
)

// SimHost is the hostname that selects the simulated driver for a machine.
const SimHost = "sim"

var errSimConnect = errors.New("simulated connect failure")

// SimDriver is an in-memory Driver used for bench setups and tests. Each
// connected handle carries its own offset table so reconnects behave like the
// real library: a new handle, same controller-side state.
type SimDriver struct {
	mu          sync.Mutex
	next        Handle
	handles     map[Handle]bool
	offsets     map[int16]int32
	life        map[int16]int16
	count       map[int16]int16
	failConnect bool
	failWrites  bool
	failReads   bool
}

// NewSimDriver returns a simulated driver with empty controller state.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		next:    1,
		handles: make(map[Handle]bool),
		offsets: make(map[int16]int32),
		life:    make(map[int16]int16),
		count:   make(map[int16]int16),
	}
}

// FailConnect makes subsequent Connect calls fail until disabled.
func (d *SimDriver) FailConnect(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failConnect = fail
}

// FailWrites makes subsequent WriteOffset calls fail until disabled.
func (d *SimDriver) FailWrites(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = fail
}

// FailReads makes subsequent ReadOffset calls fail until disabled.
func (d *SimDriver) FailReads(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = fail
}

// SetOffset seeds controller-side offset state for a tool slot.
func (d *SimDriver) SetOffset(slot int16, value int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offsets[slot] = value
}

// Offset returns the current controller-side offset for a tool slot.
func (d *SimDriver) Offset(slot int16) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offsets[slot]
}

// SetLife seeds the tool life counter for a tool slot.
func (d *SimDriver) SetLife(slot int16, life int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.life[slot] = life
}

func (d *SimDriver) Connect(host string, port int16, timeout time.Duration) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failConnect {
		return 0, errSimConnect
	}
	h := d.next
	d.next++
	d.handles[h] = true
	return h, nil
}

func (d *SimDriver) ReadOffset(h Handle, slot int16) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(h); err != nil {
		return 0, err
	}
	if d.failReads {
		return 0, Errno(-16)
	}
	return d.offsets[slot], nil
}

func (d *SimDriver) WriteOffset(h Handle, slot int16, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(h); err != nil {
		return err
	}
	if d.failWrites {
		return Errno(-16)
	}
	d.offsets[slot] = value
	d.count[slot]++
	return nil
}

func (d *SimDriver) ReadLife(h Handle, slot int16) (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(h); err != nil {
		return 0, err
	}
	return d.life[slot], nil
}

func (d *SimDriver) ReadCount(h Handle, slot int16) (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(h); err != nil {
		return 0, err
	}
	return d.count[slot], nil
}

func (d *SimDriver) Release(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handles, h)
	return nil
}

func (d *SimDriver) check(h Handle) error {
	if !d.handles[h] {
		return Errno(-8)
	}
	return nil
}

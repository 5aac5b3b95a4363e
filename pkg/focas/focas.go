// Package focas is the boundary to the CNC vendor's native offset library.
// The daemon only ever talks to controllers through the Driver interface;
// the real shared-library binding satisfies it out of tree, and the
// simulated driver in this package satisfies it for bench and test use.
package focas

import (
	"fmt"
	"time"
)

// Handle identifies one allocated library connection. Zero is never a valid
// handle; the vendor library reserves it for "unallocated".
type Handle uint16

// Driver is the call surface of the vendor library. Every call may be slow
// and may fail; callers must serialize calls per handle themselves.
type Driver interface {
	// Connect allocates a library handle for the controller at host:port.
	Connect(host string, port int16, timeout time.Duration) (Handle, error)

	// ReadOffset returns the stored offset for a tool slot in fixed-point
	// controller units.
	ReadOffset(h Handle, slot int16) (int32, error)

	// WriteOffset stores an absolute offset value for a tool slot.
	WriteOffset(h Handle, slot int16, value int32) error

	// ReadLife returns the remaining tool life counter for a tool slot.
	ReadLife(h Handle, slot int16) (int16, error)

	// ReadCount returns the machined-parts counter for a tool slot.
	ReadCount(h Handle, slot int16) (int16, error)

	// Release frees the handle. Safe to call with a handle that already
	// failed; the library ignores double frees.
	Release(h Handle) error
}

// Errno is a non-zero return code from the vendor library.
type Errno int16

func (e Errno) Error() string {
	return fmt.Sprintf("focas error code %d", int16(e))
}

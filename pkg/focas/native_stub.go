//go:build !focas

package focas

import (
	"errors"
	"time"
)

var errNoNativeSupport = errors.New("built without FOCAS support (rebuild with -tags focas and the vendor library installed)")

type unavailableDriver struct{}

// NewNativeDriver returns the vendor-library driver. In builds without the
// focas tag every connection attempt fails, which leaves the affected
// sessions cycling their reconnect loop; simulated machines are unaffected.
func NewNativeDriver() Driver {
	return unavailableDriver{}
}

func (unavailableDriver) Connect(host string, port int16, timeout time.Duration) (Handle, error) {
	return 0, errNoNativeSupport
}

func (unavailableDriver) ReadOffset(h Handle, slot int16) (int32, error) {
	return 0, errNoNativeSupport
}

func (unavailableDriver) WriteOffset(h Handle, slot int16, value int32) error {
	return errNoNativeSupport
}

func (unavailableDriver) ReadLife(h Handle, slot int16) (int16, error) {
	return 0, errNoNativeSupport
}

func (unavailableDriver) ReadCount(h Handle, slot int16) (int16, error) {
	return 0, errNoNativeSupport
}

func (unavailableDriver) Release(h Handle) error {
	return nil
}

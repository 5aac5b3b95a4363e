//go:build focas

package focas

/*
#cgo LDFLAGS: -lfwlib32
#include <stdlib.h>

typedef unsigned short FWLIBHNDL;

typedef struct odbtofs {
	short datano;
	short type;
	long  data;
} ODBTOFS;

typedef struct odbtlife3 {
	short datano;
	short dummy;
	long  data;
} ODBTLIFE3;

extern short cnc_allclibhndl3(const char *ip, unsigned short port, long timeout, FWLIBHNDL *handle);
extern short cnc_freelibhndl(FWLIBHNDL handle);
extern short cnc_rdtofs(FWLIBHNDL handle, short number, short type, short length, ODBTOFS *tofs);
extern short cnc_wrtofs(FWLIBHNDL handle, short number, short type, short length, long data);
extern short cnc_rdlife(FWLIBHNDL handle, short number, ODBTLIFE3 *life);
extern short cnc_rdcount(FWLIBHNDL handle, short number, ODBTLIFE3 *count);
*/
import "C"

import (
	"time"
	"unsafe"
)

// tofsLength is the fixed request length the offset read/write calls expect.
const tofsLength = 8

type nativeDriver struct{}

// NewNativeDriver returns the vendor-library driver.
func NewNativeDriver() Driver {
	return nativeDriver{}
}

func (nativeDriver) Connect(host string, port int16, timeout time.Duration) (Handle, error) {
	cIP := C.CString(host)
	defer C.free(unsafe.Pointer(cIP))

	var handle C.FWLIBHNDL
	ret := C.cnc_allclibhndl3(cIP, C.ushort(port), C.long(timeout/time.Second), &handle)
	if ret != 0 {
		return 0, Errno(ret)
	}
	return Handle(handle), nil
}

func (nativeDriver) ReadOffset(h Handle, slot int16) (int32, error) {
	var tofs C.ODBTOFS
	ret := C.cnc_rdtofs(C.FWLIBHNDL(h), C.short(slot), 0, tofsLength, &tofs)
	if ret != 0 {
		return 0, Errno(ret)
	}
	return int32(tofs.data), nil
}

func (nativeDriver) WriteOffset(h Handle, slot int16, value int32) error {
	ret := C.cnc_wrtofs(C.FWLIBHNDL(h), C.short(slot), 0, tofsLength, C.long(value))
	if ret != 0 {
		return Errno(ret)
	}
	return nil
}

func (nativeDriver) ReadLife(h Handle, slot int16) (int16, error) {
	var life C.ODBTLIFE3
	ret := C.cnc_rdlife(C.FWLIBHNDL(h), C.short(slot), &life)
	if ret != 0 {
		return 0, Errno(ret)
	}
	return int16(life.data), nil
}

func (nativeDriver) ReadCount(h Handle, slot int16) (int16, error) {
	var count C.ODBTLIFE3
	ret := C.cnc_rdcount(C.FWLIBHNDL(h), C.short(slot), &count)
	if ret != 0 {
		return 0, Errno(ret)
	}
	return int16(count.data), nil
}

func (nativeDriver) Release(h Handle) error {
	if ret := C.cnc_freelibhndl(C.FWLIBHNDL(h)); ret != 0 {
		return Errno(ret)
	}
	return nil
}

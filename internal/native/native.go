//go:build cgo

package native

/*
#cgo CXXFLAGS: -std=c++17
#cgo CFLAGS: -I${SRCDIR}
#cgo CXXFLAGS: -I${SRCDIR}

#include <stdlib.h>
#include "processor.h"
*/
import "C"

import (
	"runtime"
	"unsafe"
)

// Built reports whether the native processor was compiled into the binary.
func Built() bool { return true }

// Version returns the version string reported by the native processor.
func Version() string {
	return C.GoString(C.openbot_native_version())
}

// ProcessText runs the native processing routine over data and returns its
// output. The native side copies the input and never retains Go memory; the
// returned slice is owned by the caller.
func ProcessText(data []byte) ([]byte, error) {
	var (
		out    *C.uint8_t
		outLen C.size_t
		in     *C.uint8_t
	)
	if len(data) > 0 {
		in = (*C.uint8_t)(unsafe.Pointer(&data[0]))
	}

	rc := C.openbot_process_text(in, C.size_t(len(data)), &out, &outLen)
	runtime.KeepAlive(data)
	if rc != C.OPENBOT_OK {
		return nil, codeToError(int(rc))
	}
	if out == nil || outLen == 0 {
		return []byte{}, nil
	}

	res := C.GoBytes(unsafe.Pointer(out), C.int(outLen))
	C.free(unsafe.Pointer(out))
	return res, nil
}

//go:build linux

package park

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futex(2) operations. FUTEX_PRIVATE_FLAG restricts the wait to this process.
const (
	futexWait    = 0
	futexWake    = 1
	futexPrivate = 128
)

const futexSupported = true

func (p *Parker) futexUnpark() {
	if atomic.SwapUint32(&p.key, 1) == 0 {
		futex(&p.key, futexWake|futexPrivate, 1, nil)
	}
}

// futexPark waits up to ns nanoseconds, or forever when ns < 0. The calling
// goroutine holds its OS thread until the system call returns.
func (p *Parker) futexPark(ns int64) {
	if atomic.SwapUint32(&p.key, 0) == 1 {
		return
	}
	var ts *unix.Timespec
	if ns >= 0 {
		t := unix.NsecToTimespec(ns)
		ts = &t
	}
	// The kernel re-checks key == 0 atomically, so an Unpark that lands
	// between the swap above and the wait makes the wait fail with EAGAIN.
	futex(&p.key, futexWait|futexPrivate, 0, ts)
	atomic.SwapUint32(&p.key, 0)
}

// futex issues the raw system call. EINTR, EAGAIN and ETIMEDOUT all surface
// to callers as a (possibly spurious) return, so the errno is discarded.
func futex(addr *uint32, op int, val uint32, ts *unix.Timespec) {
	//nolint:gosec // G103: the kernel needs the raw address of the permit word
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(op),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0, 0)
}

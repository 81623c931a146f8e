//go:build windows

// LockFileEx/UnlockFileEx byte-range locking for Windows.
package jify

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const lockfileExclusiveLock = 0x00000002

func osLockByte(f *os.File, position int64, exclusive bool) error {
	var flags uint32
	if exclusive {
		flags |= lockfileExclusiveLock
	}
	h := syscall.Handle(f.Fd())
	var overlapped syscall.Overlapped
	overlapped.Offset = uint32(position)
	overlapped.OffsetHigh = uint32(position >> 32)

	r1, _, err := procLockFileEx.Call(
		uintptr(h),
		uintptr(flags),
		0,
		1, // length low
		0, // length high
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return err
	}
	return nil
}

func osUnlockByte(f *os.File, position int64) error {
	h := syscall.Handle(f.Fd())
	var overlapped syscall.Overlapped
	overlapped.Offset = uint32(position)
	overlapped.OffsetHigh = uint32(position >> 32)

	r1, _, err := procUnlockFileEx.Call(
		uintptr(h),
		0,
		1,
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return err
	}
	return nil
}

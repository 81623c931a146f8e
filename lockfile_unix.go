//go:build unix || linux || darwin

// fcntl(2) byte-range locking for Unix platforms.
package jify

import (
	"os"

	"golang.org/x/sys/unix"
)

func osLockByte(f *os.File, position int64, exclusive bool) error {
	typ := int16(unix.F_RDLCK)
	if exclusive {
		typ = unix.F_WRLCK
	}
	lk := unix.Flock_t{
		Type:   typ,
		Whence: int16(os.SEEK_SET),
		Start:  position,
		Len:    1,
	}
	// F_SETLKW blocks until the byte range is available.
	return unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &lk)
}

func osUnlockByte(f *os.File, position int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(os.SEEK_SET),
		Start:  position,
		Len:    1,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
}

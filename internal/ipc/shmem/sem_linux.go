//go:build linux

package shmem

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Semaphore indices within the set. The first slot is reserved: the
// original protocol allocated it for a general lock that the readers-writer
// algorithm never uses, and every attached process must agree on indices.
const (
	semGeneral     = 0
	semReaderMutex = 1
	semWriteLock   = 2
	semCount       = 3
)

// semget/semctl flag values not exported by x/sys/unix.
const (
	ipcCreate = 0o1000
	ipcExcl   = 0o2000
	ipcRmid   = 0
	semSetVal = 16

	// semUndo makes the kernel reverse the operation if the process exits
	// while holding the semaphore, so a crashed lock holder cannot wedge
	// the set.
	semUndo = 0x1000
)

// sembuf mirrors the kernel struct consumed by semop(2).
type sembuf struct {
	semNum uint16
	semOp  int16
	semFlg int16
}

// semSet is a handle on one allocated semaphore set.
type semSet struct {
	id int
}

// semCreate allocates a new set of semCount semaphores for key and
// initializes each to 1 (unlocked).
func semCreate(key int) (*semSet, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), semCount, ipcCreate|ipcExcl|0o666)
	if errno != 0 {
		return nil, errors.Wrap(errno, "semget")
	}
	s := &semSet{id: int(id)}
	for i := 0; i < semCount; i++ {
		if err := s.setVal(i, 1); err != nil {
			s.remove()
			return nil, err
		}
	}
	return s, nil
}

// semOpen locates the existing set for key.
func semOpen(key int) (*semSet, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), semCount, 0o666)
	if errno != 0 {
		return nil, errors.Wrap(errno, "semget")
	}
	return &semSet{id: int(id)}, nil
}

func (s *semSet) setVal(num, val int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), uintptr(num), semSetVal, uintptr(val), 0, 0)
	if errno != 0 {
		return errors.Wrapf(errno, "semctl setval %d", num)
	}
	return nil
}

// op performs a single semaphore operation with SEM_UNDO, bounded by
// timeout. A zero timeout blocks indefinitely. Returns the raw errno so
// callers can distinguish EINTR (retryable) from EAGAIN (timed out).
func (s *semSet) op(num int, delta int, timeout time.Duration) error {
	buf := sembuf{semNum: uint16(num), semOp: int16(delta), semFlg: semUndo}

	var errno unix.Errno
	if timeout > 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		_, _, errno = unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(s.id),
			uintptr(unsafe.Pointer(&buf)), 1, uintptr(unsafe.Pointer(&ts)), 0, 0)
	} else {
		_, _, errno = unix.Syscall(unix.SYS_SEMOP, uintptr(s.id),
			uintptr(unsafe.Pointer(&buf)), 1)
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// remove destroys the semaphore set. Only the creator calls this.
func (s *semSet) remove() error {
	_, _, errno := unix.Syscall(unix.SYS_SEMCTL, uintptr(s.id), 0, ipcRmid)
	if errno != 0 {
		return errors.Wrap(errno, "semctl rmid")
	}
	return nil
}

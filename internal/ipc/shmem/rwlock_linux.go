//go:build linux

package shmem

import (
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
)

// rwLock implements the classic readers-writers protocol over the shared
// segment's metadata: READER_MUTEX guards readerCount, WRITE_LOCK is held
// either by one writer or by the first-arriving reader on behalf of the
// whole reader group. Readers are favored: a writer can starve while new
// readers keep arriving before the group empties.
type rwLock struct {
	sems   *semSet
	seg    segment
	policy RetryPolicy
}

// wait performs P (delta -1) on one semaphore under the retry policy.
func (l *rwLock) wait(num int) error {
	attempt := func() error {
		err := l.sems.op(num, -1, l.policy.Timeout)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			return err // retryable
		case errors.Is(err, unix.EAGAIN):
			return backoff.Permanent(ipc.ErrLockTimeout)
		default:
			return backoff.Permanent(errors.Wrap(err, "semaphore wait"))
		}
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), l.policy.Attempts)
	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, unix.EINTR) {
			return ipc.ErrLockTimeout
		}
		return err
	}
	return nil
}

// signal performs V (delta +1); never blocks.
func (l *rwLock) signal(num int) error {
	if err := l.sems.op(num, 1, 0); err != nil {
		return errors.Wrap(err, "semaphore signal")
	}
	return nil
}

// acquireWrite takes exclusive ownership and marks the segment as being
// written, so a generic unlock can pick the release path.
func (l *rwLock) acquireWrite() error {
	if err := l.wait(semWriteLock); err != nil {
		return err
	}
	l.seg.setWriting(true)
	return nil
}

func (l *rwLock) releaseWrite() error {
	l.seg.setWriting(false)
	return l.signal(semWriteLock)
}

// acquireRead admits one more reader. The first reader of the group takes
// WRITE_LOCK for everyone; a failure there rolls the count back under
// READER_MUTEX so writers are not starved by a phantom reader.
func (l *rwLock) acquireRead() error {
	if err := l.wait(semReaderMutex); err != nil {
		return err
	}

	count := l.seg.readerCount() + 1
	l.seg.setReaderCount(count)

	if count == 1 {
		if err := l.wait(semWriteLock); err != nil {
			l.seg.setReaderCount(count - 1)
			if sigErr := l.signal(semReaderMutex); sigErr != nil {
				return errors.Wrap(err, "rollback failed: "+sigErr.Error())
			}
			return err
		}
	}

	return l.signal(semReaderMutex)
}

// releaseRead retires one reader; the last reader of the group returns
// WRITE_LOCK to writers.
func (l *rwLock) releaseRead() error {
	if err := l.wait(semReaderMutex); err != nil {
		return err
	}

	count := l.seg.readerCount() - 1
	l.seg.setReaderCount(count)

	if count == 0 {
		if err := l.signal(semWriteLock); err != nil {
			l.signal(semReaderMutex)
			return err
		}
	}

	return l.signal(semReaderMutex)
}

// unlock releases whichever lock the caller holds, branching on the
// writing flag. Callers never hold read and write locks at the same time.
func (l *rwLock) unlock() error {
	if l.seg.writing() {
		return l.releaseWrite()
	}
	return l.releaseRead()
}

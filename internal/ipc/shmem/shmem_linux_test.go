//go:build linux

package shmem

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
)

func TestSegmentLayout(t *testing.T) {
	seg := segment{mem: make([]byte, SegmentSize)}

	assert.Equal(t, "", seg.data())

	n := seg.setData("hello")
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", seg.data())

	// Shorter content after longer must not leak the old tail.
	seg.setData("hi")
	assert.Equal(t, "hi", seg.data())

	// Truncation keeps the null terminator inside the buffer.
	long := strings.Repeat("z", DataCapacity+100)
	n = seg.setData(long)
	assert.Equal(t, DataCapacity-1, n)
	assert.Equal(t, long[:DataCapacity-1], seg.data())

	seg.setReaderCount(7)
	assert.Equal(t, int32(7), seg.readerCount())
	seg.setWriting(true)
	assert.True(t, seg.writing())
	seg.setWriting(false)
	assert.False(t, seg.writing())
	seg.setWriterPid(1234)
	assert.Equal(t, int32(1234), seg.writerPid())

	now := time.Now()
	seg.setModifiedAt(now)
	assert.Equal(t, now.UnixNano(), seg.modifiedAt().UnixNano())
}

func TestKeyDerivation(t *testing.T) {
	dir := t.TempDir()
	key, path, err := DeriveKey(dir)
	require.NoError(t, err)
	assert.NotZero(t, key)

	// The same file yields the same key for any process naming it.
	again, err := KeyForPath(path)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	// Distinct files yield distinct keys with overwhelming likelihood.
	key2, _, err := DeriveKey(dir)
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	c := New(logging.NewNop(), WithKeyDir(t.TempDir()),
		WithRetryPolicy(RetryPolicy{Timeout: 2 * time.Second, Attempts: 3}))
	t.Cleanup(func() { c.Destroy() })
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Create())

	wrec, err := c.Write("hello world")
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusSent, wrec.Status)
	assert.Equal(t, len("hello world"), wrec.Bytes)

	rrec, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello world", rrec.Message)
	assert.Equal(t, ipc.StatusReceived, rrec.Status)
	assert.Equal(t, wrec.SenderPid, rrec.SenderPid)

	require.NoError(t, c.Destroy())

	_, err = c.Read()
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrNotAttached)
}

func TestWriteBeforeCreate(t *testing.T) {
	c := newTestChannel(t)
	_, err := c.Write("too soon")
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrNotAttached)
	assert.Equal(t, ipc.StatusErrAttach, c.LastOp().Status)
}

func TestWriteTruncates(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Create())

	long := strings.Repeat("a", DataCapacity*2)
	rec, err := c.Write(long)
	require.NoError(t, err)
	assert.Equal(t, DataCapacity-1, rec.Bytes)

	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, long[:DataCapacity-1], got.Message)
}

func TestLastWriterWins(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Create())

	_, err := c.Write("first")
	require.NoError(t, err)
	_, err = c.Write("second")
	require.NoError(t, err)

	rec, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Message)
}

func TestAttachByKey(t *testing.T) {
	creator := newTestChannel(t)
	require.NoError(t, creator.Create())
	_, err := creator.Write("shared state")
	require.NoError(t, err)

	peer := New(logging.NewNop())
	t.Cleanup(func() { peer.Destroy() })
	require.NoError(t, peer.Attach(creator.Key()))

	rec, err := peer.Read()
	require.NoError(t, err)
	assert.Equal(t, "shared state", rec.Message)

	// Non-creator detach must leave the segment alive for the creator.
	require.NoError(t, peer.Destroy())
	rec, err = creator.Read()
	require.NoError(t, err)
	assert.Equal(t, "shared state", rec.Message)
}

func TestAttachUnknownKey(t *testing.T) {
	c := New(logging.NewNop())
	err := c.Attach(0x7f123456)
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrNotFound)
}

func TestDoubleCreate(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Create())
	err := c.Create()
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrInvalidState)
}

func TestDestroyRemovesSegment(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Create())
	key := c.Key()
	require.NoError(t, c.Destroy())

	// Creator destroy removes the OS segment: the old key dangles.
	peer := New(logging.NewNop())
	err := peer.Attach(key)
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrNotFound)
}

func TestReadLockTimeoutRollsBack(t *testing.T) {
	c := New(logging.NewNop(), WithKeyDir(t.TempDir()),
		WithRetryPolicy(RetryPolicy{Timeout: 200 * time.Millisecond, Attempts: 1}))
	t.Cleanup(func() { c.Destroy() })
	require.NoError(t, c.Create())

	// Hold the write lock out of band so the first reader's WRITE_LOCK
	// acquisition must time out.
	require.NoError(t, c.lock.sems.op(semWriteLock, -1, 0))

	rec, err := c.Read()
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrLockTimeout)
	assert.Equal(t, ipc.StatusErrLock, rec.Status)

	// The increment was rolled back: no phantom reader starves writers.
	assert.Equal(t, int32(0), c.seg.readerCount())

	require.NoError(t, c.lock.sems.op(semWriteLock, 1, 0))
	_, err = c.Write("after release")
	require.NoError(t, err)

	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "after release", got.Message)
}

func TestDestroyIdempotent(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.Create())
	require.NoError(t, c.Destroy())
	require.NoError(t, c.Destroy())
}

// TestConcurrentReadersAndWriter drives N reader goroutines against one
// writer through attached peers and checks the protocol's core invariants:
// no lock cycle fails, every read observes one of the written values
// intact, and the reader count settles back to zero.
func TestConcurrentReadersAndWriter(t *testing.T) {
	creator := newTestChannel(t)
	require.NoError(t, creator.Create())
	_, err := creator.Write("v0")
	require.NoError(t, err)

	const readers = 8
	const iterations = 40

	var wg sync.WaitGroup
	errCh := make(chan error, readers+1)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			peer := New(logging.NewNop())
			defer peer.Destroy()
			if err := peer.Attach(creator.Key()); err != nil {
				errCh <- err
				return
			}
			for j := 0; j < iterations; j++ {
				rec, err := peer.Read()
				if err != nil {
					errCh <- err
					return
				}
				if !strings.HasPrefix(rec.Message, "v") {
					errCh <- assert.AnError
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		writer := New(logging.NewNop())
		defer writer.Destroy()
		if err := writer.Attach(creator.Key()); err != nil {
			errCh <- err
			return
		}
		for j := 1; j <= iterations; j++ {
			if _, err := writer.Write("v" + strings.Repeat("x", j%5)); err != nil {
				errCh <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// All lock cycles complete: the group count is back to zero.
	assert.Equal(t, int32(0), creator.seg.readerCount())
}

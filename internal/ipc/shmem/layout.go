//go:build linux

package shmem

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Segment layout. The data buffer comes first, followed by synchronization
// metadata. All multi-byte fields are little-endian; every attached process
// must agree on these offsets.
const (
	// DataCapacity is the fixed size of the message buffer. Content is
	// null-terminated, so the longest storable message is one byte less.
	DataCapacity = 1024

	offModified    = DataCapacity // int64 unix nanos
	offWriterPid   = offModified + 8
	offReaderCount = offWriterPid + 4
	offWriting     = offReaderCount + 4

	// SegmentSize is the total byte size passed to shmget.
	SegmentSize = offWriting + 4
)

// segment provides typed access over the attached byte slice. The metadata
// fields are only touched under the semaphore protocol; segment itself does
// no locking.
type segment struct {
	mem []byte
}

func (s segment) data() string {
	buf := s.mem[:DataCapacity]
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// setData copies msg into the buffer, truncating to capacity while keeping
// the null terminator.
func (s segment) setData(msg string) int {
	n := len(msg)
	if n > DataCapacity-1 {
		n = DataCapacity - 1
	}
	copy(s.mem[:n], msg[:n])
	s.mem[n] = 0
	return n
}

func (s segment) readerCount() int32 {
	return int32(binary.LittleEndian.Uint32(s.mem[offReaderCount:]))
}

func (s segment) setReaderCount(n int32) {
	binary.LittleEndian.PutUint32(s.mem[offReaderCount:], uint32(n))
}

func (s segment) writing() bool {
	return binary.LittleEndian.Uint32(s.mem[offWriting:]) != 0
}

func (s segment) setWriting(v bool) {
	var raw uint32
	if v {
		raw = 1
	}
	binary.LittleEndian.PutUint32(s.mem[offWriting:], raw)
}

func (s segment) writerPid() int32 {
	return int32(binary.LittleEndian.Uint32(s.mem[offWriterPid:]))
}

func (s segment) setWriterPid(pid int32) {
	binary.LittleEndian.PutUint32(s.mem[offWriterPid:], uint32(pid))
}

func (s segment) modifiedAt() time.Time {
	return time.Unix(0, int64(binary.LittleEndian.Uint64(s.mem[offModified:])))
}

func (s segment) setModifiedAt(t time.Time) {
	binary.LittleEndian.PutUint64(s.mem[offModified:], uint64(t.UnixNano()))
}

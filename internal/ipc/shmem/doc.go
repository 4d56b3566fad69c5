// Package shmem implements the System V shared-memory channel: a fixed
// 1 KiB data buffer plus synchronization metadata in one segment, guarded
// by a three-semaphore readers-writer protocol. Unlike the pipe and socket
// channels there is no spawned child; any process attaching by key can
// read or write.
//
// The implementation is Linux-only. On other platforms every operation
// returns an error.
package shmem

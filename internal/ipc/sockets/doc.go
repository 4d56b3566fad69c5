// Package sockets implements the connected-pair local socket channel.
// A socketpair gives both ends a bidirectional stream; in practice the
// parent writes and the spawned child reads, mirroring the pipe channel
// but with a larger buffer.
package sockets

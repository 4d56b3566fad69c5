// Package pipes implements the anonymous-pipe channel. The parent holds
// the write end; a spawned child inherits the read end and echoes every
// newline-delimited message it receives as a JSON record on stdout.
package pipes

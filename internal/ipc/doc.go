// Package ipc defines the shared error taxonomy and operation status tags
// for the three channel implementations (pipes, sockets, shared memory).
//
// Every channel converts OS-level failures into one of these sentinel
// errors at its own boundary; callers match with errors.Is and never see
// raw errno values. EOF on a receive loop is terminal but deliberately not
// part of the taxonomy: it is the normal end of a channel's life.
package ipc

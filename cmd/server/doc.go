// Package main is the entry point for the IPC lab backend.
//
// The binary runs in one of four modes:
//   - serve: REST API over the coordinator (default)
//   - daemon: headless coordinator with all mechanisms started
//   - interactive: console for driving the coordinator by hand
//   - child: hidden responder mode used by the pipe/socket channels,
//     which re-execute this binary with the channel end on fd 3
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# REST API
//	./server serve --port 8090
//
//	# Headless with all mechanisms running
//	./server daemon
//
//	# Console
//	./server interactive
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

// Package http provides HTTP handlers and routing for the IPC REST API.
//
// This package implements all HTTP endpoints using the Gin framework:
// health checks, mechanism lifecycle, message sending, generic command
// execution, and log/detail inspection.
//
// Endpoints:
//   - Health: / and /health
//   - Status: /ipc/status
//   - Lifecycle: /ipc/start, /ipc/stop, /ipc/restart
//   - Messaging: /ipc/send, /ipc/receive/:mechanism
//   - Commands: /ipc/command
//   - Inspection: /ipc/logs/:mechanism, /ipc/detail/:mechanism
package http

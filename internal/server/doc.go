// Package server provides HTTP server setup and initialization for the
// IPC lab backend.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (CORS, recovery)
//   - Channel construction (pipes, sockets, shared memory)
//   - Coordinator initialization and signal handling
//   - Prometheus metrics endpoint
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Construct the three channel managers
//  4. Initialize the coordinator
//  5. Setup HTTP routes and middleware
//  6. Start HTTP server
//  7. Graceful shutdown on signal
package server

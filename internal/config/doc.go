// Package config provides 12-factor configuration management for the IPC
// lab backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level, output format, optional log file
//   - Shmem: Shared-memory key directory and lock bounds
//   - Coord: Coordinator restart settle delay
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV, LOG_FILE
//   - SHM_KEY_DIR, SHM_LOCK_TIMEOUT, SHM_LOCK_RETRIES
//   - RESTART_SETTLE_DELAY
package config

// Package coordinator owns the lifecycle of all IPC channels: start, stop,
// restart, message routing, status aggregation, per-mechanism log rings,
// and signal-driven shutdown. Every operation degrades failures into
// logged results; nothing a channel does can crash the coordinator.
package coordinator

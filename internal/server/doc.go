// Package server implements the Bridgr realtime core: WebSocket presence
// tracking, typed event relay between user pairs, and WebRTC call signaling.
//
// The implementation is organized into specialized files for configuration,
// the hub run loop, per-connection clients, the connection registry, event
// routing, and call-session management to keep the codebase maintainable and
// testable as the project grows.
package server

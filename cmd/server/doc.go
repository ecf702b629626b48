// Package main is the entry point for the packsmith registry server.
//
// The server hosts a NuGet-compatible package feed backed by the local
// filesystem: clients push and restore packages over the v3 protocol
// while an accompanying JSON API manages accounts and API credentials.
//
// The server provides:
//   - NuGet v3 service index, search, registration and flat-container feeds
//   - Package publishing with configurable duplicate handling
//   - Session, Basic and API-key authentication with three auth modes
//   - Prometheus metrics and a health endpoint
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML file overlay (-config flag)
//   - Defaults for development
//
// Usage:
//
//	# Environment-driven
//	PORT=5555 STORAGE_ROOT=/var/lib/packsmith ./server
//
//	# With a config file
//	./server -config /etc/packsmith/config.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

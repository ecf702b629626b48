// Package server provides HTTP server setup and initialization for the
// registry.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, metrics, CORS, rate limiting, identity)
//   - Package store and user store initialization
//   - Initial admin bootstrap
//
// Server Lifecycle:
//  1. Load configuration from environment/file
//  2. Initialize logger (production or development)
//  3. Open the package store and rebuild the index from disk
//  4. Open the user store and seed the initial admin if configured
//  5. Setup HTTP routes and middleware
//  6. Start HTTP server
//  7. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg, _ := config.Load("")
//	srv, err := server.New(cfg, logger)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server

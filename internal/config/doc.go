// Package config provides 12-factor configuration management for the
// registry server.
//
// Configuration is loaded from environment variables with sensible
// defaults; an optional YAML file overlays the environment so deployments
// can keep a single checked-in config.
//
// Configuration Sections:
//   - Server: HTTP listener, external base URL, trusted proxies
//   - Storage: package root, duplicate policy, missing-package response
//   - Auth: mode, password policy, session lifetimes, initial admin
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//
// Environment Variables:
//   - HOST, PORT, BASE_URL, TRUSTED_PROXIES
//   - STORAGE_ROOT, DUPLICATE_POLICY, MISSING_PACKAGE_RESPONSE
//   - AUTH_MODE, MIN_PASSWORD_SCORE, SESSION_TTL, REMEMBER_TTL
//   - INITIAL_ADMIN, INITIAL_ADMIN_PASSWORD
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config

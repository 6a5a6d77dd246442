// Package config loads the warden process configuration.
//
// # Sources
//
// Settings are resolved in order, later sources winning:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML file, named by -config or WARDEN_CONFIG
//  3. WARDEN_* environment variables
//
// The result is validated before it is returned.
//
// # Example file
//
//	server:
//	  port: "9090"
//	database:
//	  driver: postgres
//	  dsn: postgres://warden@db:5432/warden?sslmode=disable
//	redis:
//	  url: redis://redis:6379/0
//	log:
//	  level: info
//	  format: json
//	invitations:
//	  ttl: 168h
//	  cleanup_schedule: "0 * * * *"
//
// # Environment variables
//
//	WARDEN_PORT="9090"
//	WARDEN_DB_DRIVER="sqlite3"
//	WARDEN_DB_DSN="file:warden.db?_foreign_keys=on"
//	WARDEN_REDIS_URL="redis://localhost:6379"
//	WARDEN_LOG_LEVEL="debug"
//	WARDEN_OTEL_ENABLED="true"
//	WARDEN_CACHE_SIZE="4096"
//	WARDEN_INVITATION_TTL="72h"
//
// # Reloading
//
// A Watcher reloads the file on change; the process applies the new log
// level without restarting. Other settings need a restart.
package config

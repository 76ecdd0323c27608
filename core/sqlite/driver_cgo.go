//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package sqlite

import (
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
)

const (
	driverName       = "sqlite3"
	driverType       = "cgo"
	driverPackage    = "github.com/mattn/go-sqlite3"
	busyTimeoutParam = "_busy_timeout=5000"
)

//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite" // registers "sqlite"
)

const (
	driverName       = "sqlite"
	driverType       = "purego"
	driverPackage    = "modernc.org/sqlite"
	busyTimeoutParam = "_pragma=busy_timeout(5000)"
)

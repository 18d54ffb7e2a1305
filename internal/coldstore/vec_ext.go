//go:build sqlite_vec && cgo

package coldstore

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers the sqlite-vec extension with the mattn/go-sqlite3 driver
	// so CREATE VIRTUAL TABLE ... USING vec0(...) works on every connection.
	vec.Auto()
}

//go:build !(sqlite_vec && cgo)

package knowledge

import (
	// Pure-Go sqlite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

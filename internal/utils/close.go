package utils

import (
	"io"
)

// Close closes c and ignores any error.
// Use for best-effort cleanup in defer where error handling is not critical,
// e.g. response bodies that were already fully read.
func Close(c io.Closer) {
	_ = c.Close()
}

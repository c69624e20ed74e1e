//go:build mono

package mono

import (
	_ "unsafe" // for go:linkname
)

// https://pkg.go.dev/runtime#pkg-overview
//
//go:linkname fastNanoTime runtime.nanotime
func fastNanoTime() int64

func init() { nanoTimeImpl = fastNanoTime }

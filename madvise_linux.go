//go:build linux

package xisort

import "golang.org/x/sys/unix"

// madviseSequential hints that a mapped input region will be read front to
// back, so the kernel can read ahead aggressively during run generation.
// Best-effort: errors are silently ignored.
func madviseSequential(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
}

//go:build windows

package mirror

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isCrossDeviceErr reports whether err is the Windows equivalent of
// EXDEV (ERROR_NOT_SAME_DEVICE), the signal that src and dst are on
// different volumes and MoveFile can't rename across them directly.
func isCrossDeviceErr(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}

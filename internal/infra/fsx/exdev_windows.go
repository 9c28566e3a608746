//go:build windows

package fsx

import (
	"errors"
	"os"
	"syscall"
)

// Windows 的跨卷 rename 返回 ERROR_NOT_SAME_DEVICE（0x11），而非 POSIX EXDEV。
const errNotSameDevice = syscall.Errno(0x11)

func isEXDEV(err error) bool {
	var le *os.LinkError
	if errors.As(err, &le) {
		err = le.Err
	}
	return errors.Is(err, errNotSameDevice) || errors.Is(err, syscall.EXDEV)
}

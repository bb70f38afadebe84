// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package fij

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Execute opens device, issues exactly one IoctlExecAndFault request with req
// and closes the device again. The call blocks until the driver is done with
// the target. On success req.Result holds the driver's answer.
func Execute(device string, req *ExecRequest) error {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return &OSError{Op: "open", Device: device, Errno: errnoOf(err)}
	}
	defer unix.Close(fd)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(IoctlExecAndFault),
		uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		return &OSError{Op: "ioctl", Device: device, Errno: errno}
	}
	return nil
}

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}

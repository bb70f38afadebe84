// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package fij

import "syscall"

func Execute(device string, req *ExecRequest) error {
	return &OSError{Op: "open", Device: device, Errno: syscall.ENOSYS}
}

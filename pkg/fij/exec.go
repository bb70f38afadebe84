// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fij

import (
	"errors"
	"fmt"
	"syscall"
)

// OSError is returned by Execute when opening the device or issuing the request fails.
type OSError struct {
	Op     string
	Device string
	Errno  syscall.Errno
}

func (err *OSError) Error() string {
	return fmt.Sprintf("%v %v: %v", err.Op, err.Device, err.Errno)
}

func (err *OSError) Unwrap() error {
	return err.Errno
}

// IsBusy reports whether err says that the driver is already serving another request.
func IsBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY)
}

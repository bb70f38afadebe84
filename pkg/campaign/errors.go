// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"errors"
	"fmt"
	"io/fs"
)

// DeviceError reports a missing device node (Kind "device") or target executable (Kind "target").
type DeviceError struct {
	Kind string
	Path string
}

func (err *DeviceError) Error() string {
	if err.Kind == "target" {
		return fmt.Sprintf("target path %v does not exist", err.Path)
	}
	return fmt.Sprintf("device %v does not exist", err.Path)
}

func (err *DeviceError) Unwrap() error {
	return fs.ErrNotExist
}

// RetryError is returned when the device stays busy after all retries.
type RetryError struct {
	Attempts int
	Err      error
}

func (err *RetryError) Error() string {
	return fmt.Sprintf("device busy after %v attempts: %v", err.Attempts, err.Err)
}

func (err *RetryError) Unwrap() error {
	return err.Err
}

var ErrPhaseExhausted = errors.New("no successful iterations")

// PhaseError says that every iteration of a phase failed.
type PhaseError struct {
	Phase    Phase
	Target   string
	Attempts int
	// Last is the error of the last failed iteration.
	Last error
}

func (err *PhaseError) Error() string {
	return fmt.Sprintf("%v: all %v %v runs failed (last error: %v)",
		err.Target, err.Attempts, err.Phase, err.Last)
}

func (err *PhaseError) Is(target error) bool {
	return target == ErrPhaseExhausted
}

func (err *PhaseError) Unwrap() error {
	return err.Last
}

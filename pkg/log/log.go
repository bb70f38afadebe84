// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to standard log package with some extensions:
//   - verbosity levels
//   - global verbosity setting that can be used by multiple packages
//   - error messages that are always printed regardless of verbosity
package log

import (
	"flag"
	"fmt"
	"io"
	golog "log"
	"os"
	"sync"
)

var (
	flagV  = flag.Int("vv", 0, "verbosity")
	mu     sync.Mutex
	errOut io.Writer = os.Stderr
)

// V reports whether messages of verbosity v are printed.
func V(v int) bool {
	return v <= *flagV
}

// SetVerbosity overrides the -vv flag, mostly for tests and programmatic use.
func SetVerbosity(v int) {
	*flagV = v
}

func Logf(v int, msg string, args ...any) {
	if V(v) {
		golog.Printf(msg, args...)
	}
}

// Errorf reports a non-fatal failure. It is printed to stderr at any verbosity.
func Errorf(msg string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(errOut, msg+"\n", args...)
}

// SetErrorOutput redirects Errorf and returns a function that restores the previous writer.
func SetErrorOutput(w io.Writer) func() {
	mu.Lock()
	defer mu.Unlock()
	prev := errOut
	errOut = w
	return func() {
		mu.Lock()
		defer mu.Unlock()
		errOut = prev
	}
}

func Fatalf(msg string, args ...any) {
	golog.Fatalf(msg, args...)
}

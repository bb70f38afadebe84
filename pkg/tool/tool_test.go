// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInstallProfiling(t *testing.T) {
	dir := t.TempDir()
	cpu, mem := filepath.Join(dir, "cpu.prof"), filepath.Join(dir, "mem.prof")
	stop := installProfiling(cpu, mem)
	stop()
	for _, file := range []string{cpu, mem} {
		st, err := os.Stat(file)
		if err != nil {
			t.Fatal(err)
		}
		if st.Size() == 0 {
			t.Errorf("%v is empty", file)
		}
	}
}

func TestInstallProfilingDisabled(t *testing.T) {
	installProfiling("", "")()
}

// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// fij-analyze classifies injection outcomes of finished campaigns. Usage:
//
//	fij-analyze ../fij_logs/<campaign> [...]
//
// Results are stored in <campaign>/diff/summary.csv.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fij-project/fij/pkg/analyzer"
	"github.com/fij-project/fij/pkg/tool"
)

func main() {
	defer tool.Init()()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: fij-analyze campaign_dir...\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	failed := false
	for _, root := range flag.Args() {
		rep, err := analyzer.Analyze(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v: %v\n", root, err)
			failed = true
			continue
		}
		fmt.Printf("%v (golden %v)\n", root, rep.Golden)
		fmt.Printf("  injected: %v, not injected: %v\n", rep.Injected, rep.NotInjected)
		for _, o := range []analyzer.Outcome{analyzer.Crash, analyzer.SDC, analyzer.Benign} {
			fmt.Printf("  %-7v %v (%.2f%%)\n", o+":", rep.Counts[o], rep.Percent(o))
		}
		fmt.Printf("  %-7v %v\n", analyzer.Error+":", rep.Counts[analyzer.Error])
	}
	if failed {
		tool.Failf("some campaigns could not be analyzed")
	}
}

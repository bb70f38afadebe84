// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fij

import (
	"math/rand"
	"testing"

	"github.com/fij-project/fij/pkg/testutil"
)

func TestNormalizeRandom(t *testing.T) {
	rnd := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		p := testutil.RandValue[ParameterBlock](t, rnd)
		p.Normalize()
		if err := checkNormalized(&p); err != "" {
			t.Fatalf("iteration %v: %v\n%+v", i, err, p)
		}
		again := p
		again.Normalize()
		if again != p {
			t.Fatalf("iteration %v: Normalize is not idempotent\n%+v\n%+v", i, p, again)
		}
	}
}

func checkNormalized(p *ParameterBlock) string {
	for _, flag := range []int32{p.OnlyMem, p.AllThreads, p.NoInjection, p.ThreadPresent,
		p.ProcessPresent, p.TargetPCPresent, p.RegBitPresent} {
		if flag != 0 && flag != 1 {
			return "flag is not 0/1"
		}
	}
	switch {
	case p.ThreadPresent == 0 && p.Thread != 0:
		return "stale thread"
	case p.ProcessPresent == 0 && p.NProcess != 0:
		return "stale nprocess"
	case p.TargetPCPresent == 0 && p.TargetPC != 0:
		return "stale pc"
	case p.RegBitPresent == 0 && p.RegBit != 0:
		return "stale reg_bit"
	case p.RegBit < 0 || p.RegBit > 63:
		return "reg_bit out of range"
	case p.TargetReg < RegNone || p.TargetReg > RegRIP:
		return "bad target_reg"
	case p.WeightMem < 0:
		return "negative weight_mem"
	case p.MinDelayMs != 0 && p.MaxDelayMs != 0 && p.MaxDelayMs < p.MinDelayMs:
		return "unordered delays"
	case p.Path() != "" && p.Name() == "":
		return "no process name"
	}
	return ""
}

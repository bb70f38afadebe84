// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"math"
	"slices"
	"time"
)

// Calibrate picks the injection window from baseline durations:
// the fastest run rounded to milliseconds, at least 1ms.
func Calibrate(baseline []time.Duration) int32 {
	if len(baseline) == 0 {
		return 1
	}
	ms := math.Round(Millis(slices.Min(baseline)))
	return int32(max(1, min(ms, math.MaxInt32)))
}

// MeanStddev returns the mean and the sample standard deviation (n-1 divisor) of vals.
// Stddev is 0 for fewer than 2 values.
func MeanStddev(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	sq := 0.0
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(vals)-1))
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// This file provides prometheus/streamz style metrics (Val type) for instrumenting
// campaigns. Values live in a registry (set type); package-level New uses the global one.
//
//	statBusy := stat.New("busy retries", "Requests rejected with EBUSY", stat.Prometheus("fij_busy_retries"))
//	statBusy.Add(1)
//
// The campaign runner prints Collect() at the end of a batch.

type UI struct {
	Name  string
	Desc  string
	Value string
	V     int
}

func New(name, desc string, opts ...any) *Val {
	return global.New(name, desc, opts...)
}

func Collect() []UI {
	return global.Collect()
}

var global = newSet(prometheus.DefaultRegisterer)

type set struct {
	mu   sync.Mutex
	reg  prometheus.Registerer
	vals map[string]*Val
}

const histogramBuckets = 255

func newSet(reg prometheus.Registerer) *set {
	return &set{
		reg:  reg,
		vals: make(map[string]*Val),
	}
}

// Additional options for Val metrics.

// Prometheus exports the metric to Prometheus under the given name.
type Prometheus string

// Distribution says to collect histogram of individual samples rather than a sum.
// Val then reports the mean, Quantile reports percentiles.
type Distribution struct{}

func (s *set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name: name,
		desc: desc,
	}
	var promName string
	for _, o := range opts {
		switch opt := o.(type) {
		case Distribution:
			v.hist = true
		case Prometheus:
			promName = string(opt)
		default:
			panic(fmt.Sprintf("unknown stats option %#v", o))
		}
	}
	if promName != "" && s.reg != nil {
		// Re-registration of the same name (e.g. a second set in tests) is not an error for us.
		s.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: promName,
			Help: desc,
		},
			func() float64 { return float64(v.Val()) },
		))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[name] = v
	return v
}

func (s *set) Collect() []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UI
	for _, v := range s.vals {
		val := v.Val()
		res = append(res, UI{
			Name:  v.name,
			Desc:  v.desc,
			Value: v.format(val),
			V:     val,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res
}

type Val struct {
	name    string
	desc    string
	val     atomic.Uint64
	hist    bool
	histMu  sync.Mutex
	histVal *gohistogram.NumericHistogram
}

func (v *Val) Add(val int) {
	if v.hist {
		v.histMu.Lock()
		if v.histVal == nil {
			v.histVal = gohistogram.NewHistogram(histogramBuckets)
		}
		v.histVal.Add(float64(val))
		v.histMu.Unlock()
		return
	}
	v.val.Add(uint64(val))
}

func (v *Val) Val() int {
	if v.hist {
		v.histMu.Lock()
		defer v.histMu.Unlock()
		if v.histVal == nil {
			return 0
		}
		return int(v.histVal.Mean())
	}
	return int(v.val.Load())
}

// Quantile returns the q-th quantile (0 < q <= 1) of a Distribution metric.
func (v *Val) Quantile(q float64) float64 {
	if !v.hist {
		panic(fmt.Sprintf("stat %v is not a distribution", v.name))
	}
	v.histMu.Lock()
	defer v.histMu.Unlock()
	if v.histVal == nil {
		return 0
	}
	return v.histVal.Quantile(q)
}

func (v *Val) format(val int) string {
	if !v.hist {
		return fmt.Sprint(val)
	}
	return fmt.Sprintf("mean %v (p50 %.0f, p90 %.0f)", val, v.Quantile(0.5), v.Quantile(0.9))
}

// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	a := assert.New(t)
	reg := prometheus.NewRegistry()
	set := newSet(reg)
	a.Empty(set.Collect())

	v0 := set.New("v0", "desc0", Prometheus("fij_test_v0"))
	a.Equal(v0.Val(), 0)
	v0.Add(2)
	v0.Add(3)
	a.Equal(v0.Val(), 5)
	a.Equal(float64(5), gauge(t, reg, "fij_test_v0"))

	v1 := set.New("v1", "desc1", Distribution{})
	for _, ms := range []int{10, 10, 10, 40} {
		v1.Add(ms)
	}
	a.Equal(v1.Val(), 17)
	a.InDelta(10, v1.Quantile(0.5), 5)

	a.Equal([]UI{
		{Name: "v0", Desc: "desc0", Value: "5", V: 5},
		{Name: "v1", Desc: "desc1", Value: v1.format(17), V: 17},
	}, set.Collect())
}

func TestQuantileNotDistribution(t *testing.T) {
	v := newSet(nil).New("plain", "plain counter")
	assert.Panics(t, func() { v.Quantile(0.5) })
}

func TestUnknownOption(t *testing.T) {
	assert.Panics(t, func() { newSet(nil).New("bad", "bad", 42) })
}

func TestEmptyDistribution(t *testing.T) {
	v := newSet(nil).New("d", "d", Distribution{})
	assert.Equal(t, 0, v.Val())
	assert.Equal(t, float64(0), v.Quantile(0.9))
}

func gauge(t *testing.T, reg *prometheus.Registry, name string) float64 {
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %v is not registered", name)
	return 0
}

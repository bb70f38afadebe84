// Copyright 2022 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package testutil contains helpers for randomized tests.
package testutil

import (
	"math/rand"
	"os"
	"reflect"
	"strconv"
	"testing"
	"testing/quick"
)

// IterCount is the number of iterations of a randomized test.
func IterCount() int {
	iters := 1000
	if testing.Short() {
		iters /= 10
	}
	if RaceEnabled {
		iters /= 10
	}
	return iters
}

// RandSource returns a random source seeded from FIJ_SEED or the current time.
// The seed is logged so that a failure can be reproduced.
func RandSource(t *testing.T) rand.Source {
	seed := rand.Int63()
	if fixed := os.Getenv("FIJ_SEED"); fixed != "" {
		seed, _ = strconv.ParseInt(fixed, 0, 64)
	}
	if os.Getenv("CI") != "" {
		seed = 0
	}
	t.Logf("seed=%v", seed)
	return rand.NewSource(seed)
}

// RandValue fills a value of the same type as typ with random data.
func RandValue[T any](t *testing.T, rnd *rand.Rand) T {
	var zero T
	return randValue(t, rnd, reflect.TypeOf(zero)).Interface().(T)
}

func randValue(t *testing.T, rnd *rand.Rand, typ reflect.Type) reflect.Value {
	v := reflect.New(typ).Elem()
	switch typ.Kind() {
	default:
		var ok bool
		v, ok = quick.Value(typ, rnd)
		if !ok {
			t.Fatalf("failed to generate random value of type %v", typ)
		}
	case reflect.Int32:
		// Mostly small values, sometimes extremes.
		switch rnd.Intn(4) {
		case 0:
			v.SetInt(int64(int32(rnd.Uint32())))
		default:
			v.SetInt(int64(rnd.Intn(200) - 100))
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			v.Index(i).Set(randValue(t, rnd, typ.Elem()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			v.Field(i).Set(randValue(t, rnd, typ.Field(i).Type))
		}
	}
	return v
}

// Writer forwards writes to the test log.
type Writer struct {
	testing.TB
}

func (w *Writer) Write(data []byte) (int, error) {
	w.TB.Logf("%s", data)
	return len(data), nil
}

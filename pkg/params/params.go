// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package params turns loosely typed campaign configuration into
// normalized fij.ParameterBlock values.
//
// Recognized knobs (all optional):
//
//	value, args      argument string for the target ("value" wins when non-empty)
//	runs             number of injection runs (default 1, <= 0 disables the entry)
//	baseline_runs    per-entry override of the number of baseline runs
//	process_name     defaults to the base name of the target path
//	weight_mem       integer, clamped to >= 0
//	min_delay_ms     integer
//	max_delay_ms     integer
//	only_mem         boolean
//	no_injection     boolean
//	all_threads      boolean
//	thread           integer, sets thread_present
//	nprocess         integer, sets process_present
//	pc               integer or "0x..." string, sets target_pc_present
//	reg              register name (rax..rsp, pc/rip)
//	bit              integer in [0,63], sets reg_bit_present
package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fij-project/fij/pkg/fij"
)

// BasePathVar is substituted with the document's base_path in target paths and arguments.
const BasePathVar = "{base_path}"

// ConfigError describes a malformed campaign entry.
type ConfigError struct {
	Target string
	Key    string
	Reason string
}

func (err *ConfigError) Error() string {
	switch {
	case err.Target != "" && err.Key != "":
		return fmt.Sprintf("target %v: %v: %v", err.Target, err.Key, err.Reason)
	case err.Key != "":
		return fmt.Sprintf("%v: %v", err.Key, err.Reason)
	case err.Target != "":
		return fmt.Sprintf("target %v: %v", err.Target, err.Reason)
	}
	return err.Reason
}

// Params is the resolved form of one (target, argument set) entry.
type Params struct {
	Path         string // target path after base_path substitution
	Args         string // argument template after base_path substitution
	Runs         int
	BaselineRuns int // 0 means the caller's default
	Block        fij.ParameterBlock
}

// Resolve builds Params for target path from cfg, the already merged
// configuration layers (global defaults < target defaults < argument set).
func Resolve(basePath, path string, cfg map[string]any) (*Params, error) {
	if path == "" {
		return nil, &ConfigError{Reason: "each target must have a 'path'"}
	}
	path = Substitute(path, basePath)
	r := &resolver{target: path, cfg: cfg}
	res := &Params{
		Path: path,
		Runs: int(r.int("runs", 1)),
	}
	res.BaselineRuns = int(r.int("baseline_runs", 0))
	res.Args = Substitute(r.args(), basePath)

	p := &res.Block
	p.SetPath(path)
	if name := r.str("process_name"); name != "" {
		p.SetName(name)
	}
	p.SetArgs(res.Args)

	p.WeightMem = r.int32("weight_mem")
	p.MinDelayMs = r.int32("min_delay_ms")
	p.MaxDelayMs = r.int32("max_delay_ms")

	p.OnlyMem = r.bool("only_mem")
	p.NoInjection = r.bool("no_injection")
	p.AllThreads = r.bool("all_threads")

	p.Thread, p.ThreadPresent = r.present("thread")
	p.NProcess, p.ProcessPresent = r.present("nprocess")
	p.TargetPC, p.TargetPCPresent = r.present("pc")
	p.RegBit, p.RegBitPresent = r.present("bit")
	p.TargetReg = fij.RegID(r.str("reg"))

	if r.err != nil {
		return nil, r.err
	}
	p.Normalize()
	return res, nil
}

// Substitute replaces every BasePathVar in s with basePath.
// With an empty basePath s is returned unchanged.
func Substitute(s, basePath string) string {
	if basePath == "" {
		return s
	}
	return strings.ReplaceAll(s, BasePathVar, basePath)
}

// resolver accumulates the first error so Resolve can read all knobs linearly.
type resolver struct {
	target string
	cfg    map[string]any
	err    error
}

func (r *resolver) fail(key, reason string, args ...any) {
	if r.err == nil {
		r.err = &ConfigError{Target: r.target, Key: key, Reason: fmt.Sprintf(reason, args...)}
	}
}

func (r *resolver) str(key string) string {
	v, ok := r.cfg[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "want a string, got %T", v)
	}
	return s
}

func (r *resolver) args() string {
	if v := r.str("value"); v != "" {
		return v
	}
	return r.str("args")
}

func (r *resolver) int(key string, def int64) int64 {
	v, ok := r.cfg[key]
	if !ok {
		return def
	}
	n, err := Int(v)
	if err != nil {
		r.fail(key, "%v", err)
	}
	return n
}

func (r *resolver) int32(key string) int32 {
	n := r.int(key, 0)
	if n < math.MinInt32 || n > math.MaxInt32 {
		r.fail(key, "value %v is out of range", n)
		return 0
	}
	return int32(n)
}

func (r *resolver) bool(key string) int32 {
	if Bool(r.cfg[key]) {
		return 1
	}
	return 0
}

// present returns the value of key and 1 if key is configured, and 0, 0 otherwise.
func (r *resolver) present(key string) (int32, int32) {
	if _, ok := r.cfg[key]; !ok {
		return 0, 0
	}
	return r.int32(key), 1
}

// Bool coerces a configuration value to a boolean: booleans pass through,
// numbers are true iff nonzero, strings are true iff they are one of
// "1", "true", "yes", "on" (case-insensitive, surrounding space ignored).
// Everything else is false.
func Bool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}

// Int coerces a configuration value to an integer. Fractional numbers are
// truncated toward zero, strings are parsed with base prefixes ("0x10", "0o7").
func Int(v any) (int64, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("bad number %q", val.String())
		}
		return floatInt(f)
	case float64:
		return floatInt(val)
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("want an integer, got %q", val)
		}
		return n, nil
	}
	return 0, fmt.Errorf("want an integer, got %T", v)
}

func floatInt(f float64) (int64, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f > math.MaxInt64 {
		return 0, fmt.Errorf("number %v is out of range", f)
	}
	return int64(f), nil
}

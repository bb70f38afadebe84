// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package job expands a campaign configuration document into independent jobs,
// one per (target, argument set) pair.
//
// Example document:
//
//	{
//		"base_path": "/opt/bench",
//		"defaults": {"weight_mem": 1, "runs": 100},
//		"targets": [
//			{
//				"path": "{base_path}/bin/sort",
//				"defaults": {"only_mem": true},
//				"args": [
//					{"args": "{base_path}/in.txt -o {campaign}/injection_{run}/out.txt"},
//					{"args": "-r {base_path}/in.txt", "runs": 10}
//				]
//			}
//		]
//	}
package job

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fij-project/fij/pkg/config"
	"github.com/fij-project/fij/pkg/fij"
	"github.com/fij-project/fij/pkg/log"
	"github.com/fij-project/fij/pkg/params"
)

// Config is the top-level configuration document.
type Config struct {
	BasePath string         `json:"base_path"`
	Defaults map[string]any `json:"defaults"`
	Targets  []Target       `json:"targets"`
}

type Target struct {
	Path     string           `json:"path"`
	Defaults map[string]any   `json:"defaults"`
	Args     []map[string]any `json:"args"`
}

// Job is one campaign: a single target with a single argument set.
type Job struct {
	Path string
	// Args is the argument template, it may contain {campaign} and {run}.
	Args         string
	Runs         int
	BaselineRuns int // 0 means the runner default
	// Params is owned by the job and is never shared with other jobs.
	Params fij.ParameterBlock
}

func (job *Job) String() string {
	return job.Params.Label()
}

// Load parses the configuration file and builds all jobs it describes.
func Load(filename string) ([]*Job, error) {
	return LoadPatched(filename, nil)
}

// LoadPatched is like Load, but deep-merges the JSON object patch into the document first.
// E.g. {"defaults": {"runs": 1}} makes a quick run of a whole campaign file.
func LoadPatched(filename string, patch []byte) ([]*Job, error) {
	cfg := new(Config)
	if err := config.LoadPatchedFile(filename, patch, cfg); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) || filename == "" {
			return nil, err
		}
		return nil, &params.ConfigError{Reason: fmt.Sprintf("%v: %v", filename, err)}
	}
	return Build(cfg)
}

// Parse is like Load for an in-memory JSON document.
func Parse(data []byte) ([]*Job, error) {
	cfg := new(Config)
	if err := config.LoadData(data, cfg); err != nil {
		return nil, &params.ConfigError{Reason: err.Error()}
	}
	return Build(cfg)
}

// Build resolves every (target, argument set) pair of cfg in document order.
// A target without argument sets yields one job without arguments.
// Entries with runs <= 0 are skipped.
func Build(cfg *Config) ([]*Job, error) {
	var jobs []*Job
	for ti, target := range cfg.Targets {
		if target.Path == "" {
			return nil, &params.ConfigError{Reason: fmt.Sprintf("targets[%v]: each target must have a 'path'", ti)}
		}
		argSets := target.Args
		if len(argSets) == 0 {
			argSets = []map[string]any{{}}
		}
		for _, argSet := range argSets {
			merged := config.MergeValues(cfg.Defaults, target.Defaults, argSet)
			res, err := params.Resolve(cfg.BasePath, target.Path, merged)
			if err != nil {
				return nil, err
			}
			if res.Runs <= 0 {
				log.Logf(1, "skipping %v: runs=%v", res.Block.Label(), res.Runs)
				continue
			}
			jobs = append(jobs, &Job{
				Path:         res.Path,
				Args:         res.Args,
				Runs:         res.Runs,
				BaselineRuns: res.BaselineRuns,
				Params:       res.Block,
			})
		}
	}
	return jobs, nil
}

// Single builds one job for a target given directly on the command line.
func Single(path, args string, runs int, knobs map[string]any) (*Job, error) {
	merged := config.MergeValues(knobs, map[string]any{"args": args, "runs": runs})
	res, err := params.Resolve("", path, merged)
	if err != nil {
		return nil, err
	}
	return &Job{
		Path:         res.Path,
		Args:         res.Args,
		Runs:         res.Runs,
		BaselineRuns: res.BaselineRuns,
		Params:       res.Block,
	}, nil
}

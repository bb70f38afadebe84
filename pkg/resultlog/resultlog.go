// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package resultlog lays out campaign output directories and writes per-iteration records.
//
// A campaign root looks like:
//
//	<logs>/<name>/
//		no_inj/injection_{i}/   baseline outputs of the target
//		injection_{i}/          injection outputs of the target
//		injection_{i}/injection_{i}.json
//		summary.json
package resultlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fij-project/fij/pkg/fij"
	"github.com/fij-project/fij/pkg/hash"
	"github.com/fij-project/fij/pkg/osutil"
)

const (
	DefaultLogsDir = "../fij_logs"
	NoInjDir       = "no_inj"
	SummaryFile    = "summary.json"

	maxNameLen = 100
	hashLen    = 8
)

var ErrTooManyCollisions = osutil.ErrTooManyCollisions

var slugRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func slug(s string) string {
	return strings.ToLower(strings.Trim(slugRe.ReplaceAllString(strings.TrimSpace(s), "_"), "_"))
}

// CampaignName returns a file system friendly directory name for a campaign
// of the target path with arguments args: "<name>_+_<args>", or "<name>"
// without arguments. Long names are cut and made unique with a hash suffix.
func CampaignName(path, args string) string {
	name := slug(filepath.Base(path))
	if args != "" {
		name += "_+_" + slug(args)
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen] + "_" + hash.Short(name, hashLen)
	}
	return name
}

// Logger writes the artifacts of a single campaign under Root.
type Logger struct {
	Root string
	Now  func() time.Time
}

// Create makes a fresh campaign root named name under logsDir.
// An existing directory is never reused: name(1), name(2), ... are tried instead.
func Create(logsDir, name string) (*Logger, error) {
	if logsDir == "" {
		logsDir = DefaultLogsDir
	}
	root, err := osutil.MkdirUnique(logsDir, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign dir: %w", err)
	}
	return &Logger{Root: root, Now: time.Now}, nil
}

// NoInjDir is the sub-root for baseline outputs.
func (l *Logger) NoInjDir() string {
	return filepath.Join(l.Root, NoInjDir)
}

// BaselineDir creates and returns the output directory of baseline iteration i.
func (l *Logger) BaselineDir(i int) (string, error) {
	return mkdir(filepath.Join(l.NoInjDir(), iterName(i)))
}

// InjectionDir creates and returns the output directory of injection iteration i.
func (l *Logger) InjectionDir(i int) (string, error) {
	return mkdir(filepath.Join(l.Root, iterName(i)))
}

func mkdir(dir string) (string, error) {
	if err := osutil.MkdirAll(dir); err != nil {
		return "", fmt.Errorf("failed to create %v: %w", dir, err)
	}
	return dir, nil
}

func iterName(i int) string {
	return "injection_" + strconv.Itoa(i)
}

// RecordPath returns the path of the JSON record of injection iteration i under root.
func RecordPath(root string, i int) string {
	return filepath.Join(root, iterName(i), iterName(i)+".json")
}

// Record is the content of injection_{i}.json.
type Record struct {
	Iteration  int     `json:"iteration"`
	Timestamp  string  `json:"timestamp"`
	DurationMs float64 `json:"duration_ms"`
	Result     Result  `json:"result"`
}

// Result mirrors fij.ResultBlock with stable JSON names.
type Result struct {
	Status        int32  `json:"status"`
	TargetTGID    int32  `json:"target_tgid"`
	FaultInjected int32  `json:"fault_injected"`
	DurationNs    uint64 `json:"duration_ns"`
	SeqNo         uint64 `json:"seq_no"`
}

func MakeResult(res *fij.ResultBlock) Result {
	return Result{
		Status:        res.Status,
		TargetTGID:    res.TargetTGID,
		FaultInjected: res.FaultInjected,
		DurationNs:    res.DurationNs,
		SeqNo:         res.SeqNo,
	}
}

// LogInjection writes the record of a successful injection iteration.
func (l *Logger) LogInjection(i int, dur time.Duration, res *fij.ResultBlock) error {
	dir, err := l.InjectionDir(i)
	if err != nil {
		return err
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	rec := &Record{
		Iteration:  i,
		Timestamp:  now().UTC().Format(time.RFC3339),
		DurationMs: float64(dur) / float64(time.Millisecond),
		Result:     MakeResult(res),
	}
	return writeJSON(filepath.Join(dir, iterName(i)+".json"), rec)
}

// ReadRecord parses injection_{i}.json of a campaign root.
func ReadRecord(root string, i int) (*Record, error) {
	rec := new(Record)
	if err := readJSON(RecordPath(root, i), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteSummary stores v as summary.json in the campaign root.
func (l *Logger) WriteSummary(v any) error {
	return writeJSON(filepath.Join(l.Root, SummaryFile), v)
}

func writeJSON(file string, v any) error {
	data, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to serialize %v: %w", file, err)
	}
	data = append(data, '\n')
	if err := osutil.WriteFile(file, data); err != nil {
		return fmt.Errorf("failed to write %v: %w", file, err)
	}
	return nil
}

func readJSON(file string, v any) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %v: %w", file, err)
	}
	return nil
}

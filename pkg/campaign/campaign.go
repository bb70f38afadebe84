// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package campaign runs fault injection campaigns against the fij device.
//
// A campaign for one job first runs the target several times without injection
// to measure how long it takes (baseline), picks the injection window from the
// fastest baseline run (calibration) and then runs the target the requested
// number of times with a fault injected somewhere in that window.
package campaign

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/fij-project/fij/pkg/fij"
	"github.com/fij-project/fij/pkg/job"
	"github.com/fij-project/fij/pkg/log"
	"github.com/fij-project/fij/pkg/params"
	"github.com/fij-project/fij/pkg/resultlog"
	"github.com/fij-project/fij/pkg/stat"
	"github.com/google/uuid"
)

type Phase int

const (
	PhaseInit Phase = iota
	PhaseBaseline
	PhaseCalibrate
	PhaseInject
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInit:      "init",
	PhaseBaseline:  "baseline",
	PhaseCalibrate: "calibrate",
	PhaseInject:    "injection",
	PhaseDone:      "done",
	PhaseFailed:    "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// State is the progress of a running campaign.
type State struct {
	Phase      Phase
	Iteration  int
	Baseline   []time.Duration
	Injection  []time.Duration
	MaxDelayMs int32
}

type Options struct {
	// BaselineRuns is used for jobs that do not set their own count.
	BaselineRuns int
	// PreDelay is slept before every request.
	PreDelay time.Duration
	// MaxRetries is the number of extra attempts for a request rejected with EBUSY.
	MaxRetries int
	RetryDelay time.Duration
	// LogsDir is where campaign directories are created.
	LogsDir string

	Executor Executor
	Sleep    func(time.Duration)
	Now      func() time.Time
	// OnState, if set, is called on every phase transition.
	OnState func(State)
}

func DefaultOptions() Options {
	return Options{
		BaselineRuns: 5,
		PreDelay:     50 * time.Millisecond,
		MaxRetries:   5,
		RetryDelay:   50 * time.Millisecond,
		LogsDir:      resultlog.DefaultLogsDir,
	}
}

func (opts *Options) fill() {
	if opts.LogsDir == "" {
		opts.LogsDir = resultlog.DefaultLogsDir
	}
	if opts.Executor == nil {
		opts.Executor = fij.Execute
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.MaxRetries = max(opts.MaxRetries, 0)
}

// Summary is the outcome of a campaign. It is also stored as summary.json in the campaign root.
type Summary struct {
	ID                 string    `json:"id"`
	Root               string    `json:"root"`
	Path               string    `json:"path"`
	Args               string    `json:"args"`
	BaselineRequested  int       `json:"baseline_requested"`
	BaselineSucceeded  int       `json:"baseline_succeeded"`
	MinBaselineMs      float64   `json:"min_baseline_ms"`
	MaxDelayMs         int32     `json:"max_delay_ms"`
	InjectionRequested int       `json:"injection_requested"`
	InjectionSucceeded int       `json:"injection_succeeded"`
	FaultsInjected     int       `json:"faults_injected"`
	MeanMs             float64   `json:"mean_ms"`
	StddevMs           float64   `json:"stddev_ms"`
	DurationsMs        []float64 `json:"durations_ms"`
}

var (
	statCampaigns = stat.New("campaigns", "Finished campaigns",
		stat.Prometheus("fij_campaigns"))
	statBaselineRuns = stat.New("baseline runs", "Successful baseline iterations",
		stat.Prometheus("fij_baseline_runs"))
	statBaselineFailed = stat.New("baseline failures", "Failed baseline iterations",
		stat.Prometheus("fij_baseline_failures"))
	statInjectionRuns = stat.New("injection runs", "Successful injection iterations",
		stat.Prometheus("fij_injection_runs"))
	statInjectionFailed = stat.New("injection failures", "Failed injection iterations",
		stat.Prometheus("fij_injection_failures"))
	statFaults = stat.New("faults injected", "Injection iterations where the driver reported a fault",
		stat.Prometheus("fij_faults_injected"))
	statBusy = stat.New("busy retries", "Requests retried because the device was busy",
		stat.Prometheus("fij_busy_retries"))
	statInjectionTime = stat.New("injection time", "Wall time of injection iterations (ms)",
		stat.Distribution{}, stat.Prometheus("fij_injection_time_ms"))
)

type runner struct {
	device string
	job    *job.Job
	opts   Options
	logger *resultlog.Logger
	state  State
}

// Run executes the whole campaign for job on device.
// Failures of single iterations are logged and skipped. An error is returned
// if the campaign cannot start, if every iteration of a phase fails,
// or if results cannot be stored.
func Run(device string, job *job.Job, opts Options) (*Summary, error) {
	opts.fill()
	if device == "" {
		device = fij.DefaultDevice
	}
	r := &runner{
		device: device,
		job:    job,
		opts:   opts,
	}
	summary, err := r.run()
	if err != nil {
		r.setPhase(PhaseFailed)
		return summary, err
	}
	r.setPhase(PhaseDone)
	statCampaigns.Add(1)
	return summary, nil
}

func (r *runner) run() (*Summary, error) {
	baselineRuns, err := r.init()
	if err != nil {
		return nil, err
	}
	label := r.job.Params.Label()
	summary := &Summary{
		ID:                 uuid.New().String(),
		Root:               r.logger.Root,
		Path:               r.job.Path,
		Args:               r.job.Args,
		BaselineRequested:  baselineRuns,
		InjectionRequested: r.job.Runs,
	}
	log.Logf(0, "=== campaign for %v: runs=%v device=%v dir=%v", label, r.job.Runs, r.device, r.logger.Root)

	if err := r.baseline(baselineRuns); err != nil {
		return summary, err
	}
	summary.BaselineSucceeded = len(r.state.Baseline)
	summary.MinBaselineMs = Millis(slices.Min(r.state.Baseline))

	r.setPhase(PhaseCalibrate)
	r.state.MaxDelayMs = Calibrate(r.state.Baseline)
	summary.MaxDelayMs = r.state.MaxDelayMs
	log.Logf(0, "baseline: %v/%v successful, min %.3f ms, max_delay_ms=%v",
		summary.BaselineSucceeded, baselineRuns, summary.MinBaselineMs, summary.MaxDelayMs)

	faults, err := r.inject()
	if err != nil {
		return summary, err
	}
	summary.InjectionSucceeded = len(r.state.Injection)
	summary.FaultsInjected = faults
	for _, d := range r.state.Injection {
		summary.DurationsMs = append(summary.DurationsMs, Millis(d))
	}
	summary.MeanMs, summary.StddevMs = MeanStddev(summary.DurationsMs)
	log.Logf(0, "injection: %v/%v successful, %v faults, mean %.3f ms, stddev %.3f ms",
		summary.InjectionSucceeded, r.job.Runs, faults, summary.MeanMs, summary.StddevMs)

	if err := r.logger.WriteSummary(summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// init validates the job and creates the campaign directory.
// It returns the effective number of baseline runs.
func (r *runner) init() (int, error) {
	r.setPhase(PhaseInit)
	if _, err := os.Stat(r.device); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, &DeviceError{Kind: "device", Path: r.device}
		}
		return 0, fmt.Errorf("failed to access device: %w", err)
	}
	label := r.job.Params.Label()
	if r.job.Runs <= 0 {
		return 0, &params.ConfigError{Target: label, Key: "runs",
			Reason: fmt.Sprintf("must be positive, got %v", r.job.Runs)}
	}
	baselineRuns := r.opts.BaselineRuns
	if r.job.BaselineRuns != 0 {
		baselineRuns = r.job.BaselineRuns
	}
	if baselineRuns <= 0 {
		return 0, &params.ConfigError{Target: label, Key: "baseline_runs",
			Reason: fmt.Sprintf("must be positive, got %v", baselineRuns)}
	}
	if path := r.job.Params.Path(); path != "" {
		if _, err := os.Stat(path); err != nil {
			return 0, &DeviceError{Kind: "target", Path: path}
		}
	}
	logger, err := resultlog.Create(r.opts.LogsDir, resultlog.CampaignName(r.job.Params.Path(), r.job.Args))
	if err != nil {
		return 0, err
	}
	logger.Now = r.opts.Now
	r.logger = logger
	return baselineRuns, nil
}

func (r *runner) baseline(runs int) error {
	r.setPhase(PhaseBaseline)
	var lastErr error
	for i := 0; i < runs; i++ {
		r.state.Iteration = i
		if _, err := r.logger.BaselineDir(i); err != nil {
			return err
		}
		args := ExpandArgs(r.job.Args, r.logger.NoInjDir(), i)
		dur, _, err := r.call(r.job.Params, args, true, 0)
		if err != nil {
			lastErr = err
			statBaselineFailed.Add(1)
			log.Errorf("baseline run %v/%v of %v failed: %v", i+1, runs, r.job, err)
			continue
		}
		statBaselineRuns.Add(1)
		r.state.Baseline = append(r.state.Baseline, dur)
		log.Logf(1, "baseline run %v/%v: %.3f ms", i+1, runs, Millis(dur))
	}
	if len(r.state.Baseline) == 0 {
		return &PhaseError{Phase: PhaseBaseline, Target: r.job.String(), Attempts: runs, Last: lastErr}
	}
	return nil
}

func (r *runner) inject() (int, error) {
	r.setPhase(PhaseInject)
	var lastErr error
	faults := 0
	for i := 0; i < r.job.Runs; i++ {
		r.state.Iteration = i
		if _, err := r.logger.InjectionDir(i); err != nil {
			return faults, err
		}
		args := ExpandArgs(r.job.Args, r.logger.Root, i)
		dur, res, err := r.call(r.job.Params, args, false, r.state.MaxDelayMs)
		if err != nil {
			lastErr = err
			statInjectionFailed.Add(1)
			log.Errorf("injection run %v/%v of %v failed: %v", i+1, r.job.Runs, r.job, err)
			continue
		}
		if err := r.logger.LogInjection(i, dur, &res); err != nil {
			return faults, err
		}
		statInjectionRuns.Add(1)
		statInjectionTime.Add(int(Millis(dur)))
		if res.FaultInjected != 0 {
			faults++
			statFaults.Add(1)
		}
		r.state.Injection = append(r.state.Injection, dur)
		log.Logf(1, "injection run %v/%v: %.3f ms, status=%v tgid=%v fault=%v seq=%v",
			i+1, r.job.Runs, Millis(dur), res.Status, res.TargetTGID, res.FaultInjected, res.SeqNo)
	}
	if len(r.state.Injection) == 0 {
		return faults, &PhaseError{Phase: PhaseInject, Target: r.job.String(), Attempts: r.job.Runs, Last: lastErr}
	}
	return faults, nil
}

func (r *runner) setPhase(phase Phase) {
	r.state.Phase = phase
	r.state.Iteration = 0
	log.Logf(2, "campaign phase: %v", phase)
	if r.opts.OnState != nil {
		r.opts.OnState(r.state)
	}
}

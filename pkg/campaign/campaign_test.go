// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/fij-project/fij/pkg/fij"
	"github.com/fij-project/fij/pkg/job"
	"github.com/fij-project/fij/pkg/log"
	"github.com/fij-project/fij/pkg/params"
	"github.com/fij-project/fij/pkg/resultlog"
	"github.com/fij-project/fij/pkg/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice records requests and answers them with scripted errors and durations.
type fakeDevice struct {
	now       time.Time
	reqs      []fij.ExecRequest
	errs      map[int]error
	durations []time.Duration
	sleeps    []time.Duration
	result    fij.ResultBlock
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		now:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		errs: make(map[int]error),
		result: fij.ResultBlock{
			TargetTGID:    100,
			FaultInjected: 1,
			DurationNs:    1000,
		},
	}
}

func (d *fakeDevice) exec(device string, req *fij.ExecRequest) error {
	call := len(d.reqs)
	d.reqs = append(d.reqs, *req)
	if err := d.errs[call]; err != nil {
		return err
	}
	dur := 10 * time.Millisecond
	if call < len(d.durations) {
		dur = d.durations[call]
	}
	d.now = d.now.Add(dur)
	req.Result = d.result
	req.Result.SeqNo = uint64(call)
	return nil
}

func (d *fakeDevice) clock() time.Time {
	return d.now
}

func (d *fakeDevice) sleep(dur time.Duration) {
	d.sleeps = append(d.sleeps, dur)
}

func busy() error {
	return &fij.OSError{Op: "ioctl", Device: "fake", Errno: syscall.EBUSY}
}

type env struct {
	device string
	target string
	logs   string
	dev    *fakeDevice
}

func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	e := &env{
		device: filepath.Join(dir, "fij"),
		target: filepath.Join(dir, "target"),
		logs:   filepath.Join(dir, "logs"),
		dev:    newFakeDevice(),
	}
	t.Cleanup(log.SetErrorOutput(&testutil.Writer{TB: t}))
	require.NoError(t, os.WriteFile(e.device, nil, 0600))
	require.NoError(t, os.WriteFile(e.target, nil, 0700))
	return e
}

func (e *env) options() Options {
	return Options{
		BaselineRuns: 3,
		PreDelay:     time.Millisecond,
		MaxRetries:   5,
		RetryDelay:   2 * time.Millisecond,
		LogsDir:      e.logs,
		Executor:     e.dev.exec,
		Sleep:        e.dev.sleep,
		Now:          e.dev.clock,
	}
}

func (e *env) job(t *testing.T, runs int) *job.Job {
	j, err := job.Single(e.target, "-o {campaign}/injection_{run}/out", runs, map[string]any{"weight_mem": 1})
	require.NoError(t, err)
	return j
}

func ms(vals ...float64) []time.Duration {
	var res []time.Duration
	for _, v := range vals {
		res = append(res, time.Duration(v*float64(time.Millisecond)))
	}
	return res
}

func TestRun(t *testing.T) {
	e := newEnv(t)
	e.dev.durations = ms(12, 9, 15, 10, 10, 10)
	j := e.job(t, 3)
	orig := j.Params
	var phases []Phase
	opts := e.options()
	opts.OnState = func(s State) { phases = append(phases, s.Phase) }

	summary, err := Run(e.device, j, opts)
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseInit, PhaseBaseline, PhaseCalibrate, PhaseInject, PhaseDone}, phases)
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, "target_+_-o_campaign_injection__run_out", filepath.Base(summary.Root))
	want := &Summary{
		ID:                 summary.ID,
		Root:               summary.Root,
		Path:               e.target,
		Args:               "-o {campaign}/injection_{run}/out",
		BaselineRequested:  3,
		BaselineSucceeded:  3,
		MinBaselineMs:      9,
		MaxDelayMs:         9,
		InjectionRequested: 3,
		InjectionSucceeded: 3,
		FaultsInjected:     3,
		MeanMs:             10,
		StddevMs:           0,
		DurationsMs:        []float64{10, 10, 10},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatal(diff)
	}

	require.Len(t, e.dev.reqs, 6)
	for i, req := range e.dev.reqs {
		p := req.Params
		if i < 3 {
			assert.Equal(t, int32(1), p.NoInjection, "call %v", i)
			assert.Equal(t, fmt.Sprintf("-o %v/no_inj/injection_%v/out", summary.Root, i), p.Args())
			assert.Equal(t, int32(0), p.MaxDelayMs, "call %v", i)
		} else {
			assert.Equal(t, int32(0), p.NoInjection, "call %v", i)
			assert.Equal(t, fmt.Sprintf("-o %v/injection_%v/out", summary.Root, i-3), p.Args())
			assert.Equal(t, int32(9), p.MaxDelayMs, "call %v", i)
		}
		assert.Equal(t, int32(1), p.WeightMem)
		assert.Equal(t, e.target, p.Path())
	}
	// The job template is never modified by the calls.
	assert.Equal(t, orig, j.Params)
	// Pre-delay once per call, no retries.
	assert.Equal(t, ms(1, 1, 1, 1, 1, 1), e.dev.sleeps)

	for i := 0; i < 3; i++ {
		assert.DirExists(t, filepath.Join(summary.Root, "no_inj", fmt.Sprintf("injection_%v", i)))
		rec, err := resultlog.ReadRecord(summary.Root, i)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Iteration)
		assert.Equal(t, 10.0, rec.DurationMs)
		assert.Equal(t, uint64(i+3), rec.Result.SeqNo)
		assert.Equal(t, "2025-01-02T03:04:05Z"[:11], rec.Timestamp[:11])
	}
	assert.FileExists(t, filepath.Join(summary.Root, resultlog.SummaryFile))
}

func TestRunSecondCampaignGetsNewDir(t *testing.T) {
	e := newEnv(t)
	s1, err := Run(e.device, e.job(t, 1), e.options())
	require.NoError(t, err)
	s2, err := Run(e.device, e.job(t, 1), e.options())
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(s1.Root)+"(1)", filepath.Base(s2.Root))
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestRunBaselineOverride(t *testing.T) {
	e := newEnv(t)
	j := e.job(t, 1)
	j.BaselineRuns = 2
	summary, err := Run(e.device, j, e.options())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.BaselineRequested)
	assert.Len(t, e.dev.reqs, 3)
}

func TestRunPreconditions(t *testing.T) {
	e := newEnv(t)

	_, err := Run(filepath.Join(t.TempDir(), "nodev"), e.job(t, 1), e.options())
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr), "got %v", err)
	assert.Equal(t, "device", devErr.Kind)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	j := e.job(t, 1)
	j.Runs = 0
	_, err = Run(e.device, j, e.options())
	var cfgErr *params.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "runs", cfgErr.Key)

	opts := e.options()
	opts.BaselineRuns = 0
	_, err = Run(e.device, e.job(t, 1), opts)
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "baseline_runs", cfgErr.Key)

	j = e.job(t, 1)
	j.Params.SetPath(filepath.Join(t.TempDir(), "missing"))
	_, err = Run(e.device, j, e.options())
	require.True(t, errors.As(err, &devErr), "got %v", err)
	assert.Equal(t, "target", devErr.Kind)

	assert.Empty(t, e.dev.reqs)
	assert.NoDirExists(t, e.logs)
}

func TestRunBaselineExhausted(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		e.dev.errs[i] = &fij.OSError{Op: "ioctl", Device: "fake", Errno: syscall.EINVAL}
	}
	var last State
	opts := e.options()
	opts.OnState = func(s State) { last = s }
	_, err := Run(e.device, e.job(t, 5), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPhaseExhausted))
	assert.True(t, errors.Is(err, syscall.EINVAL))
	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, PhaseBaseline, phaseErr.Phase)
	assert.Equal(t, PhaseFailed, last.Phase)
	assert.Len(t, e.dev.reqs, 3)
}

func TestRunInjectionFailures(t *testing.T) {
	e := newEnv(t)
	e.dev.errs[4] = &fij.OSError{Op: "ioctl", Device: "fake", Errno: syscall.ESRCH}
	summary, err := Run(e.device, e.job(t, 3), e.options())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.InjectionSucceeded)
	assert.Len(t, summary.DurationsMs, 2)
	_, err = resultlog.ReadRecord(summary.Root, 1)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	// The directory of the failed iteration is still there for the target's output.
	assert.DirExists(t, filepath.Join(summary.Root, "injection_1"))

	e = newEnv(t)
	for i := 3; i < 6; i++ {
		e.dev.errs[i] = &fij.OSError{Op: "ioctl", Device: "fake", Errno: syscall.ESRCH}
	}
	_, err = Run(e.device, e.job(t, 3), e.options())
	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr), "got %v", err)
	assert.Equal(t, PhaseInject, phaseErr.Phase)
}

func TestRunBusyRetried(t *testing.T) {
	e := newEnv(t)
	e.dev.errs[0] = busy()
	e.dev.errs[1] = busy()
	summary, err := Run(e.device, e.job(t, 1), e.options())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.BaselineSucceeded)
	assert.Len(t, e.dev.reqs, 6)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		busy       int
		maxRetries int
		attempts   int
		err        bool
	}{
		{busy: 0, maxRetries: 5, attempts: 1},
		{busy: 4, maxRetries: 5, attempts: 5},
		{busy: 5, maxRetries: 5, attempts: 6},
		{busy: 4, maxRetries: 3, attempts: 4, err: true},
		{busy: 1, maxRetries: 0, attempts: 1, err: true},
	}
	for i, test := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			e := newEnv(t)
			for call := 0; call < test.busy; call++ {
				e.dev.errs[call] = busy()
			}
			opts := e.options()
			opts.MaxRetries = test.maxRetries
			r := &runner{device: e.device, opts: opts}
			r.opts.fill()
			_, _, err := r.call(fij.ParameterBlock{}, "", true, 0)
			assert.Len(t, e.dev.reqs, test.attempts)
			if !test.err {
				require.NoError(t, err)
				// One pre-delay plus one retry delay per busy answer.
				assert.Len(t, e.dev.sleeps, 1+test.busy)
				return
			}
			var retryErr *RetryError
			require.True(t, errors.As(err, &retryErr), "got %v", err)
			assert.Equal(t, test.attempts, retryErr.Attempts)
			assert.True(t, errors.Is(err, syscall.EBUSY))
		})
	}
}

func TestRetryOtherErrors(t *testing.T) {
	e := newEnv(t)
	e.dev.errs[0] = &fij.OSError{Op: "open", Device: "fake", Errno: syscall.ENOENT}
	r := &runner{device: e.device, opts: e.options()}
	r.opts.fill()
	_, _, err := r.call(fij.ParameterBlock{}, "", false, 5)
	assert.True(t, errors.Is(err, syscall.ENOENT))
	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr))
	assert.Len(t, e.dev.reqs, 1)
}

func TestExpandArgs(t *testing.T) {
	tests := []struct {
		tmpl string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"{campaign}/injection_{run}/out", "/c/injection_7/out"},
		{"{run}{run} {campaign}{campaign}", "77 /c/c"},
		{"{Campaign}", "{Campaign}"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, ExpandArgs(test.tmpl, "/c", 7), test.tmpl)
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "baseline", PhaseBaseline.String())
	assert.Equal(t, "injection", PhaseInject.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}

// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"strconv"
	"strings"
	"time"

	"github.com/fij-project/fij/pkg/fij"
	"github.com/fij-project/fij/pkg/log"
)

// Executor issues one request to the device. fij.Execute is the real one.
type Executor func(device string, req *fij.ExecRequest) error

const (
	CampaignVar = "{campaign}"
	RunVar      = "{run}"
)

// ExpandArgs substitutes the output directory and the iteration index into an argument template.
func ExpandArgs(tmpl, campaignDir string, run int) string {
	return strings.NewReplacer(CampaignVar, campaignDir, RunVar, strconv.Itoa(run)).Replace(tmpl)
}

// call issues a single request built from a copy of params.
// params itself is never modified.
func (r *runner) call(params fij.ParameterBlock, args string, noInjection bool, maxDelayMs int32) (
	time.Duration, fij.ResultBlock, error) {
	req := &fij.ExecRequest{Params: params}
	req.Params.SetArgs(args)
	if noInjection {
		req.Params.NoInjection = 1
	} else {
		req.Params.NoInjection = 0
		req.Params.MaxDelayMs = maxDelayMs
	}
	if r.opts.PreDelay > 0 {
		r.opts.Sleep(r.opts.PreDelay)
	}
	var dur time.Duration
	err := r.retry(func() error {
		req.Result = fij.ResultBlock{}
		start := r.opts.Now()
		err := r.opts.Executor(r.device, req)
		dur = r.opts.Now().Sub(start)
		return err
	})
	return dur, req.Result, err
}

// retry runs fn until it succeeds, fails with a non-busy error,
// or has been retried MaxRetries times because of EBUSY.
func (r *runner) retry(fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !fij.IsBusy(err) {
			return err
		}
		if attempt > r.opts.MaxRetries {
			return &RetryError{Attempts: attempt, Err: err}
		}
		statBusy.Add(1)
		log.Logf(2, "device busy, retry %v/%v in %v", attempt, r.opts.MaxRetries, r.opts.RetryDelay)
		r.opts.Sleep(r.opts.RetryDelay)
	}
}

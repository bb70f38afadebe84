// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"errors"
	"fmt"

	"github.com/fij-project/fij/pkg/job"
	"github.com/fij-project/fij/pkg/log"
)

type BatchOptions struct {
	// KeepGoing continues with the next job after a failed one.
	// By default the batch stops at the first failure.
	KeepGoing bool
	// Shutdown is checked between jobs, a closed channel stops the batch.
	Shutdown <-chan struct{}
}

type Result struct {
	Job     *job.Job
	Summary *Summary
	Err     error
}

// RunBatch runs campaigns for jobs one after another.
// It returns results for every started job. With KeepGoing the returned error
// joins all job failures, otherwise it is the failure of the last started job.
func RunBatch(device string, jobs []*job.Job, opts Options, batch BatchOptions) ([]*Result, error) {
	var results []*Result
	var errs []error
	for i, j := range jobs {
		if shutdown(batch.Shutdown) {
			log.Logf(0, "shutdown requested, %v of %v jobs not started", len(jobs)-i, len(jobs))
			break
		}
		log.Logf(0, "job %v/%v: %v", i+1, len(jobs), j)
		summary, err := Run(device, j, opts)
		results = append(results, &Result{Job: j, Summary: summary, Err: err})
		if err == nil {
			continue
		}
		err = fmt.Errorf("job %v (%v): %w", i+1, j, err)
		if !batch.KeepGoing {
			return results, err
		}
		log.Errorf("%v", err)
		errs = append(errs, err)
	}
	return results, errors.Join(errs...)
}

func shutdown(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

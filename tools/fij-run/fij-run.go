// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// fij-run runs fault injection campaigns through the fij driver.
//
// Campaigns for all targets of configuration files:
//
//	fij-run [flags] campaign.json [campaign2.yaml ...]
//
// A single campaign for one target:
//
//	fij-run [flags] -path /usr/bin/sort -args "-o {campaign}/injection_{run}/out in.txt" -runs 100
//
// The argument template may refer to the output directory of the current
// iteration as {campaign}/injection_{run}.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/fij-project/fij/pkg/analyzer"
	"github.com/fij-project/fij/pkg/campaign"
	"github.com/fij-project/fij/pkg/config"
	"github.com/fij-project/fij/pkg/fij"
	"github.com/fij-project/fij/pkg/job"
	"github.com/fij-project/fij/pkg/log"
	"github.com/fij-project/fij/pkg/osutil"
	"github.com/fij-project/fij/pkg/stat"
	"github.com/fij-project/fij/pkg/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	flagDevice       = flag.String("device", fij.DefaultDevice, "fij device node")
	flagBaselineRuns = flag.Int("baseline_runs", 5, "baseline runs per campaign (unless set in the config)")
	flagPreDelay     = flag.Duration("pre_delay", campaign.DefaultOptions().PreDelay, "delay before every request")
	flagRetries      = flag.Int("retries", 5, "retries of a request rejected because the device is busy")
	flagRetryDelay   = flag.Duration("retry_delay", campaign.DefaultOptions().RetryDelay, "delay between busy retries")
	flagLogs         = flag.String("logs", campaign.DefaultOptions().LogsDir, "directory for campaign results")
	flagKeepGoing    = flag.Bool("keep_going", false, "continue with the next campaign after a failed one")
	flagAnalyze      = flag.Bool("analyze", false, "classify injection outcomes after every campaign")
	flagHTTP         = flag.String("http", "", "serve Prometheus metrics on this address (e.g. :8080)")
	flagSummary      = flag.String("summary", "", "write summaries of all campaigns to this JSON file")
	flagOverride     = flag.String("override", "", "JSON object merged into every config file, e.g. '{\"defaults\": {\"runs\": 1}}'")

	flagPath      = flag.String("path", "", "target executable (single campaign mode)")
	flagArgs      = flag.String("args", "", "target argument template (single campaign mode)")
	flagRuns      = flag.Int("runs", 10, "injection runs (single campaign mode)")
	flagWeightMem = flag.Int("weight_mem", 0, "weight of memory vs register faults (single campaign mode)")
)

func main() {
	defer tool.Init()()
	jobs, err := loadJobs()
	if err != nil {
		tool.Fail(err)
	}
	if len(jobs) == 0 {
		tool.Failf("nothing to run: no enabled targets")
	}
	if *flagHTTP != "" {
		serveMetrics(*flagHTTP)
	}
	opts := campaign.DefaultOptions()
	opts.BaselineRuns = *flagBaselineRuns
	opts.PreDelay = *flagPreDelay
	opts.MaxRetries = *flagRetries
	opts.RetryDelay = *flagRetryDelay
	opts.LogsDir = *flagLogs

	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	results, err := campaign.RunBatch(*flagDevice, jobs, opts, campaign.BatchOptions{
		KeepGoing: *flagKeepGoing,
		Shutdown:  shutdown,
	})
	report(results)
	if *flagSummary != "" {
		if err := saveSummaries(*flagSummary, results); err != nil {
			log.Errorf("failed to save summaries: %v", err)
		}
	}
	if err != nil {
		tool.Fail(err)
	}
}

func loadJobs() ([]*job.Job, error) {
	if *flagPath != "" {
		if flag.NArg() != 0 {
			return nil, fmt.Errorf("-path and configuration files are mutually exclusive")
		}
		j, err := job.Single(*flagPath, *flagArgs, *flagRuns, map[string]any{"weight_mem": *flagWeightMem})
		if err != nil {
			return nil, err
		}
		return []*job.Job{j}, nil
	}
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: fij-run [flags] campaign.json...\n")
		fmt.Fprintf(os.Stderr, "       fij-run [flags] -path=target [-args=args] [-runs=N]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	var jobs []*job.Job
	for _, file := range flag.Args() {
		fileJobs, err := job.LoadPatched(file, []byte(*flagOverride))
		if err != nil {
			return nil, err
		}
		log.Logf(1, "%v: %v jobs", file, len(fileJobs))
		jobs = append(jobs, fileJobs...)
	}
	return jobs, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen on %v: %v", addr, err)
	}
	log.Logf(0, "serving metrics on http://%v/metrics", ln.Addr())
	go func() {
		if err := http.Serve(ln, mux); err != nil {
			log.Errorf("metrics server failed: %v", err)
		}
	}()
}

func report(results []*campaign.Result) {
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("FAILED %v: %v\n", res.Job, res.Err)
			continue
		}
		s := res.Summary
		fmt.Printf("%v\n", res.Job)
		fmt.Printf("  dir:       %v\n", s.Root)
		fmt.Printf("  baseline:  %v/%v ok, min %.3f ms, max_delay_ms=%v\n",
			s.BaselineSucceeded, s.BaselineRequested, s.MinBaselineMs, s.MaxDelayMs)
		fmt.Printf("  injection: %v/%v ok, %v faults, mean %.3f ms, stddev %.3f ms\n",
			s.InjectionSucceeded, s.InjectionRequested, s.FaultsInjected, s.MeanMs, s.StddevMs)
		if !*flagAnalyze {
			continue
		}
		rep, err := analyzer.Analyze(s.Root)
		if err != nil {
			log.Errorf("analysis of %v failed: %v", s.Root, err)
			continue
		}
		fmt.Printf("  outcomes:  crash %v, sdc %v, benign %v, errors %v\n",
			rep.Counts[analyzer.Crash], rep.Counts[analyzer.SDC], rep.Counts[analyzer.Benign], rep.Counts[analyzer.Error])
	}
	for _, st := range stat.Collect() {
		log.Logf(1, "%-20v %v", st.Name+":", st.Value)
	}
}

func saveSummaries(file string, results []*campaign.Result) error {
	var summaries []*campaign.Summary
	for _, res := range results {
		if res.Summary != nil {
			summaries = append(summaries, res.Summary)
		}
	}
	return config.SaveFile(file, summaries)
}

// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package analyzer classifies the outcome of every injection of a finished campaign
// by comparing the target's output against the golden output of the first baseline run.
package analyzer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fij-project/fij/pkg/log"
	"github.com/fij-project/fij/pkg/osutil"
	"github.com/fij-project/fij/pkg/resultlog"
)

type Outcome string

const (
	Benign Outcome = "BENIGN"
	Crash  Outcome = "CRASH"
	SDC    Outcome = "SDC"
	Error  Outcome = "ERROR"
)

const (
	DiffDir    = "diff"
	SummaryCSV = "summary.csv"
)

// Entry is the classification of a single injection iteration.
type Entry struct {
	Index    int
	Outcome  Outcome
	Details  string
	JSONFile string
}

type Report struct {
	Root   string
	Golden string
	// Injected is the number of iterations where a fault was injected.
	Injected int
	// NotInjected is the number of readable records without an injected fault.
	NotInjected int
	Counts      map[Outcome]int
	// Entries lists all iterations that were not classified as benign.
	Entries []Entry
}

var injectionDirRe = regexp.MustCompile(`^injection_([0-9]+)$`)

// Analyze classifies all injection iterations of the campaign in root and
// writes copies of the differing files and summary.csv into root/diff.
// An existing root/diff is replaced.
func Analyze(root string) (*Report, error) {
	golden := filepath.Join(root, resultlog.NoInjDir, "injection_0")
	if !osutil.IsExist(golden) {
		golden = filepath.Join(root, resultlog.NoInjDir)
	}
	if !osutil.IsExist(golden) {
		return nil, fmt.Errorf("no golden run in %v", root)
	}
	goldenFiles, err := outputFiles(golden)
	if err != nil {
		return nil, err
	}
	iters, err := iterations(root)
	if err != nil {
		return nil, err
	}
	diffRoot := filepath.Join(root, DiffDir)
	if err := os.RemoveAll(diffRoot); err != nil {
		return nil, err
	}
	if err := osutil.MkdirAll(diffRoot); err != nil {
		return nil, err
	}
	rep := &Report{
		Root:   root,
		Golden: golden,
		Counts: make(map[Outcome]int),
	}
	log.Logf(0, "analyzing %v iterations of %v against %v", len(iters), root, golden)
	for _, i := range iters {
		entry, injected, err := classify(root, golden, goldenFiles, i)
		if err != nil {
			return nil, err
		}
		if entry.Outcome == Error {
			rep.Counts[Error]++
			rep.Entries = append(rep.Entries, entry)
			continue
		}
		if !injected {
			rep.NotInjected++
			continue
		}
		rep.Injected++
		rep.Counts[entry.Outcome]++
		if entry.Outcome != Benign {
			rep.Entries = append(rep.Entries, entry)
		}
	}
	if err := writeCSV(filepath.Join(diffRoot, SummaryCSV), rep); err != nil {
		return nil, err
	}
	log.Logf(0, "total: %v, crashed: %v, sdc: %v, benign: %v, errors: %v",
		rep.Injected, rep.Counts[Crash], rep.Counts[SDC], rep.Counts[Benign], rep.Counts[Error])
	return rep, nil
}

func classify(root, golden string, goldenFiles []string, i int) (Entry, bool, error) {
	jsonFile := fmt.Sprintf("injection_%v.json", i)
	entry := Entry{Index: i, JSONFile: jsonFile}
	rec, err := resultlog.ReadRecord(root, i)
	if err != nil {
		log.Logf(1, "injection %v: %v", i, err)
		entry.Outcome = Error
		entry.Details = "JSON missing/corrupt"
		return entry, false, nil
	}
	if rec.Result.FaultInjected != 1 {
		return entry, false, nil
	}
	injDir := filepath.Join(root, fmt.Sprintf("injection_%v", i))
	diffDir := filepath.Join(root, DiffDir, fmt.Sprintf("diff_%v", i))
	entry.Outcome = Benign
	if rec.Result.Status != 0 {
		entry.Outcome = Crash
		entry.Details = fmt.Sprintf("Exit: %v", rec.Result.Status)
	} else {
		var details []string
		for _, name := range goldenFiles {
			gFile := filepath.Join(golden, name)
			iFile := filepath.Join(injDir, name)
			if !osutil.IsExist(iFile) {
				details = append(details, "MISSING: "+name)
				continue
			}
			same, err := identical(gFile, iFile)
			if err != nil {
				return entry, true, err
			}
			if same {
				continue
			}
			if err := copyPair(gFile, iFile, diffDir, name); err != nil {
				return entry, true, err
			}
			details = append(details, fmt.Sprintf("SDC %v (Binary Mismatch)", name))
		}
		if len(details) != 0 {
			entry.Outcome = SDC
			entry.Details = strings.Join(details, " | ")
		}
	}
	if entry.Outcome != Benign {
		if err := osutil.MkdirAll(diffDir); err != nil {
			return entry, true, err
		}
		if err := osutil.CopyFile(resultlog.RecordPath(root, i), filepath.Join(diffDir, jsonFile)); err != nil {
			return entry, true, err
		}
	}
	return entry, true, nil
}

// outputFiles returns names of regular non-JSON files in dir.
func outputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if !ent.Type().IsRegular() || filepath.Ext(ent.Name()) == ".json" {
			continue
		}
		files = append(files, ent.Name())
	}
	return files, nil
}

// iterations returns sorted indexes of all injection_{i} directories in root.
func iterations(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var res []int
	for _, ent := range entries {
		m := injectionDirRe.FindStringSubmatch(ent.Name())
		if m == nil || !ent.IsDir() {
			continue
		}
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		res = append(res, i)
	}
	sort.Ints(res)
	return res, nil
}

func identical(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

func copyPair(golden, injected, diffDir, name string) error {
	if err := osutil.MkdirAll(diffDir); err != nil {
		return err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if err := osutil.CopyFile(golden, filepath.Join(diffDir, stem+"_GOLDEN"+ext)); err != nil {
		return err
	}
	return osutil.CopyFile(injected, filepath.Join(diffDir, stem+"_INJ"+ext))
}

func writeCSV(file string, rep *Report) error {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	w.Write([]string{"index", "type", "details", "json_file"})
	for _, ent := range rep.Entries {
		w.Write([]string{strconv.Itoa(ent.Index), string(ent.Outcome), ent.Details, ent.JSONFile})
	}
	w.Write([]string{"", "", "", ""})
	w.Write([]string{"STATS", "TOTAL INJECTIONS", strconv.Itoa(rep.Injected), ""})
	for _, o := range []Outcome{Crash, SDC, Benign} {
		w.Write([]string{"STATS", string(o), fmt.Sprintf("%v (%.2f%%)", rep.Counts[o], rep.Percent(o)), ""})
	}
	w.Write([]string{"STATS", string(Error), strconv.Itoa(rep.Counts[Error]), ""})
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return osutil.WriteFile(file, buf.Bytes())
}

// Percent returns the share of injected iterations with outcome o.
func (rep *Report) Percent(o Outcome) float64 {
	if rep.Injected == 0 {
		return 0
	}
	return float64(rep.Counts[o]) * 100 / float64(rep.Injected)
}

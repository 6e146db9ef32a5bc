// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"
)

type Counts struct {
	Done    int `json:"done"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type StageReport struct {
	Stage string `json:"stage"`
	Counts
}

// Report collects per stage counts of one run.
type Report struct {
	RunId    string         `json:"runId"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Stages   []*StageReport `json:"stages"`
}

func NewReport(runId string) *Report {
	return &Report{RunId: runId, Started: time.Now()}
}

func (r *Report) stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s
		}
	}
	s := &StageReport{Stage: name}
	r.Stages = append(r.Stages, s)
	return s
}

func (r *Report) done(stage string)    { r.stage(stage).Done++ }
func (r *Report) skipped(stage string) { r.stage(stage).Skipped++ }
func (r *Report) failed(stage string)  { r.stage(stage).Failed++ }

func (r *Report) Counts(stage string) Counts {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Counts
		}
	}
	return Counts{}
}

func (r *Report) Failures() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Failed
	}
	return n
}

func (r *Report) Print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tDONE\tSKIPPED\tFAILED")
	for _, s := range r.Stages {
		fmt.Fprintf(tw, "%v\t%d\t%d\t%d\n", s.Stage, s.Done, s.Skipped, s.Failed)
	}
	tw.Flush()
}

// Write stores the report as <dir>/report-<runId>.json.
func (r *Report) Write(dir string) (string, error) {
	r.Finished = time.Now()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report-"+r.RunId+".json")
	return path, os.WriteFile(path, b, 0o644)
}

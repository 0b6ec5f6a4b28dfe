package scenario

import (
	"fmt"
	"strings"
	"time"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Name       string
	Duration   time.Duration
	Err        error
	Screenshot string
}

// Report summarises a run.
type Report struct {
	RunID       string
	ArtifactDir string
	Steps       []StepResult
	// Results are the files the rebuild reported.
	Results []string
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	for _, st := range r.Steps {
		if st.Err != nil {
			return true
		}
	}
	return false
}

// String renders one line per step, then the rebuild results.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", r.RunID)
	for _, st := range r.Steps {
		status := "ok"
		if st.Err != nil {
			status = "FAIL: " + st.Err.Error()
		}
		fmt.Fprintf(&b, "  %-18s %8s  %s\n", st.Name, st.Duration.Round(time.Millisecond), status)
		if st.Screenshot != "" {
			fmt.Fprintf(&b, "  %-18s screenshot %s\n", "", st.Screenshot)
		}
	}
	for _, res := range r.Results {
		fmt.Fprintf(&b, "  dumped %s\n", res)
	}
	return b.String()
}

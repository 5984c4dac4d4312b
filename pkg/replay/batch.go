package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

// BatchResult summarizes one session within a batch run.
type BatchResult struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Mismatches int    `json:"mismatches,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchReport aggregates a directory of session validations.
type BatchReport struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Results  []BatchResult `json:"results"`
	Canceled bool          `json:"canceled,omitempty"`
}

// ValidateBatch validates every *.json session in a directory, in name
// order. A session that fails to load counts as failed with its error
// attached — a malformed file must never inflate the pass count. On
// cancellation the aggregate collected so far is returned with the context
// error.
func ValidateBatch(ctx context.Context, dir string, hooks Hooks, opts Options) (*BatchReport, error) {
	if err := hooks.validate(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	report := &BatchReport{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			return report, err
		}

		result := BatchResult{Name: name}
		sess, err := session.Load(filepath.Join(dir, name))
		if err != nil {
			result.Error = err.Error()
			report.Failed++
			report.Results = append(report.Results, result)
			continue
		}

		run, err := Validate(ctx, sess, hooks, opts)
		if err != nil {
			result.Error = err.Error()
			if run != nil && run.Canceled {
				report.Canceled = true
				report.Failed++
				report.Results = append(report.Results, result)
				return report, err
			}
			report.Failed++
			report.Results = append(report.Results, result)
			continue
		}

		result.Passed = run.Passed()
		result.Mismatches = len(run.Mismatches)
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}

	return report, nil
}

// Package results collects per-subfile compilation outcomes and
// persists run reports for later inspection.
package results

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"tex2docx/internal/types"
)

// ReportFileName is the report written into the temp directory after a run
const ReportFileName = "conversion_report.json"

// Recorder is a thread-safe store of compilation results keyed by
// subfile name. Compile workers write into it concurrently.
type Recorder struct {
	mu      sync.RWMutex
	results map[string]types.CompileResult
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{
		results: make(map[string]types.CompileResult),
	}
}

// Record stores one compilation result, replacing any earlier result
// for the same subfile
func (r *Recorder) Record(result types.CompileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.Filename] = result
}

// Get returns the result recorded for filename
func (r *Recorder) Get(filename string) (types.CompileResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[filename]
	return result, ok
}

// Len returns the number of recorded results
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}

// All returns every recorded result, sorted by filename for
// deterministic reporting
func (r *Recorder) All() []types.CompileResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]types.CompileResult, 0, len(r.results))
	for _, result := range r.results {
		all = append(all, result)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Filename < all[j].Filename
	})
	return all
}

// Failed returns the results of subfiles that did not compile
func (r *Recorder) Failed() []types.CompileResult {
	var failed []types.CompileResult
	for _, result := range r.All() {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// FailedNames returns the filenames of failed subfiles
func (r *Recorder) FailedNames() []string {
	var names []string
	for _, result := range r.Failed() {
		names = append(names, result.Filename)
	}
	return names
}

// SucceededCount returns how many subfiles compiled
func (r *Recorder) SucceededCount() int {
	count := 0
	for _, result := range r.All() {
		if result.Success {
			count++
		}
	}
	return count
}

// SaveReport writes a conversion report as indented JSON
func SaveReport(path string, report *types.ConversionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadReport reads a conversion report written by SaveReport
func LoadReport(path string) (*types.ConversionReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var report types.ConversionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

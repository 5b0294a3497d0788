// Package artifacts lays out the working directories and writes the JSON
// reports of a completed run.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lherron/hsmerge/internal/domain"
)

// TimestampLayout is shared by the three files of one run.
const TimestampLayout = "20060102_150405"

// Layout names the directories a run reads from and writes to.
type Layout struct {
	LogDir          string
	DataDir         string
	IntermediateDir string
	OutputsDir      string
	ErrorsDir       string
}

// NewLayout derives the standard subdirectories from a data directory.
func NewLayout(logDir, dataDir string) Layout {
	return Layout{
		LogDir:          logDir,
		DataDir:         dataDir,
		IntermediateDir: filepath.Join(dataDir, "intermediate"),
		OutputsDir:      filepath.Join(dataDir, "outputs"),
		ErrorsDir:       filepath.Join(dataDir, "errors"),
	}
}

// EnsureLayout creates every directory of the layout. Existing directories are
// left alone.
func EnsureLayout(l Layout) error {
	for _, dir := range []string{l.LogDir, l.DataDir, l.IntermediateDir, l.OutputsDir, l.ErrorsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Report is what a run hands over for persistence.
type Report struct {
	Missing   []domain.MissingRecord
	Snapshots [][]domain.EnrichedCompany
	Results   [][]domain.MergeResult
}

// Paths lists the files written by Write.
type Paths struct {
	Missing  string `json:"missing" yaml:"missing"`
	Snapshot string `json:"snapshot" yaml:"snapshot"`
	Results  string `json:"results" yaml:"results"`
}

// Write persists the three artifacts stamped with at.
func Write(l Layout, r Report, at time.Time) (Paths, error) {
	ts := at.Format(TimestampLayout)
	paths := Paths{
		Missing:  filepath.Join(l.ErrorsDir, "missing_companies_"+ts+".json"),
		Snapshot: filepath.Join(l.IntermediateDir, "companies_with_child_parent_"+ts+".json"),
		Results:  filepath.Join(l.OutputsDir, "merged_companies_"+ts+".json"),
	}

	missing := r.Missing
	if missing == nil {
		missing = []domain.MissingRecord{}
	}
	snapshots := r.Snapshots
	if snapshots == nil {
		snapshots = [][]domain.EnrichedCompany{}
	}
	results := r.Results
	if results == nil {
		results = [][]domain.MergeResult{}
	}

	if err := writeJSON(paths.Missing, missing); err != nil {
		return Paths{}, err
	}
	if err := writeJSON(paths.Snapshot, snapshots); err != nil {
		return Paths{}, err
	}
	if err := writeJSON(paths.Results, results); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// Marshal renders v the way artifacts are written to disk.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func writeJSON(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

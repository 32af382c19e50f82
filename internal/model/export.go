package model

import "time"

// RunExport is the top-level JSON structure produced by the export command.
type RunExport struct {
	ExportedAt string      `json:"exported_at"`
	NumRuns    int         `json:"num_runs"`
	Runs       []RunRecord `json:"runs"`
}

// NewRunExport wraps runs for export, stamping the export time.
func NewRunExport(runs []RunRecord, at time.Time) RunExport {
	if runs == nil {
		runs = []RunRecord{}
	}
	return RunExport{
		ExportedAt: FormatTimestamp(at),
		NumRuns:    len(runs),
		Runs:       runs,
	}
}

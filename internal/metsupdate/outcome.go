package metsupdate

import (
	"time"

	"github.com/henrycmeen/dimo/internal/reconcile"
	"github.com/henrycmeen/dimo/internal/validate"
)

// Outcome summarizes a run. It is returned on failure too, filled up to the
// point the run reached.
type Outcome struct {
	RunID        string `json:"run_id"`
	State        State  `json:"state"`
	FailedAfter  State  `json:"failed_after,omitempty"`
	DryRun       bool   `json:"dry_run"`
	DocumentPath string `json:"document"`
	ContentDir   string `json:"content_dir"`
	BackupPath   string `json:"backup,omitempty"`
	LogPath      string `json:"log,omitempty"`
	SchemaPath   string `json:"schema,omitempty"`

	FilesScanned int   `json:"files_scanned"`
	BytesScanned int64 `json:"bytes_scanned"`
	FilesIgnored int   `json:"files_ignored"`
	CacheHits    int   `json:"cache_hits"`

	Entries    int `json:"entries"`
	Refreshed  int `json:"refreshed"`
	Relocated  int `json:"relocated"`
	Unresolved int `json:"unresolved"`
	Ambiguous  int `json:"ambiguous"`
	Skipped    int `json:"skipped"`
	Modified   int `json:"modified"`

	Unreferenced []string `json:"unreferenced"`

	PreValidation  validate.Report `json:"pre_validation"`
	PostValidation validate.Report `json:"post_validation"`

	Changes  []reconcile.Change `json:"changes"`
	Duration time.Duration      `json:"duration_ns"`
	Error    string             `json:"error,omitempty"`
}

func (o *Outcome) applyReconcile(res *reconcile.Result) {
	o.Entries = res.Entries
	o.Refreshed = res.Refreshed
	o.Relocated = res.Relocated
	o.Unresolved = res.Unresolved
	o.Ambiguous = res.Ambiguous
	o.Skipped = res.Skipped
	o.Modified = res.Modified
	o.Changes = res.Changes
}

// Succeeded reports whether the run reached DONE.
func (o *Outcome) Succeeded() bool {
	return o.State == StateDone
}

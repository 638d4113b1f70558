// Package metsupdate runs the reconciliation pipeline: back up the METS
// document, scan and hash the content tree, reconcile the file entries,
// validate, and write the result atomically unless it is a dry run.
package metsupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/henrycmeen/dimo/internal/audit"
	"github.com/henrycmeen/dimo/internal/checksum"
	"github.com/henrycmeen/dimo/internal/hashcache"
	"github.com/henrycmeen/dimo/internal/index"
	"github.com/henrycmeen/dimo/internal/mets"
	"github.com/henrycmeen/dimo/internal/persist"
	"github.com/henrycmeen/dimo/internal/reconcile"
	"github.com/henrycmeen/dimo/internal/scanner"
	"github.com/henrycmeen/dimo/internal/validate"
	"github.com/henrycmeen/dimo/internal/workspace"
)

// Options configures one run. Zero values pick the workspace defaults.
type Options struct {
	// Workspace root; relative document and content paths resolve against it.
	// Defaults to the working directory.
	Workspace    string
	DocumentPath string
	ContentDir   string
	// SchemaPath resolves against the working directory. A missing schema
	// disables validation.
	SchemaPath string

	DryRun    bool
	Strict    bool
	Workers   int
	Timeout   time.Duration
	TieBreak  reconcile.TieBreak
	Algorithm checksum.Algorithm
	Exclude   []string
	HashCache bool

	Console io.Writer
	Verbose bool
}

// Reconcile is Update with workspace defaults for everything but the
// document, the content directory and the dry-run flag.
func Reconcile(ctx context.Context, documentPath, contentDir string, dryRun bool) (*Outcome, error) {
	return Update(ctx, Options{DocumentPath: documentPath, ContentDir: contentDir, DryRun: dryRun})
}

// Update runs the pipeline once. The returned Outcome is never nil. A fatal
// failure is returned as *StageError; the original document is untouched in
// that case.
func Update(ctx context.Context, opts Options) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{State: StateInit, DryRun: opts.DryRun, Unreferenced: []string{}}
	defer func() { out.Duration = time.Since(start) }()

	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.Default
	}
	if opts.TieBreak == "" {
		opts.TieBreak = reconcile.TieBreakSmallest
	}

	var layoutOpts []workspace.Option
	if opts.DocumentPath != "" {
		layoutOpts = append(layoutOpts, workspace.WithDocument(opts.DocumentPath))
	}
	if opts.ContentDir != "" {
		layoutOpts = append(layoutOpts, workspace.WithContentDir(opts.ContentDir))
	}
	if opts.SchemaPath != "" {
		layoutOpts = append(layoutOpts, workspace.WithSchema(opts.SchemaPath))
	}

	layout, err := workspace.New(opts.Workspace, layoutOpts...)
	if err != nil {
		return out, failEarly(out, err)
	}
	out.DocumentPath = layout.DocumentPath
	out.ContentDir = layout.ContentDir

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	alog, err := audit.Open(audit.Options{
		Path:    layout.AuditLogPath(),
		Console: opts.Console,
		Verbose: opts.Verbose,
	})
	if err != nil {
		return out, failEarly(out, err)
	}
	defer alog.Close()

	out.RunID = alog.RunID()
	out.LogPath = alog.Path()

	r := &run{
		opts:   opts,
		layout: layout,
		logger: alog.Logger(),
		out:    out,
		state:  StateInit,
	}
	return out, r.execute(ctx)
}

func failEarly(out *Outcome, err error) error {
	se := stageError(StateInit, KindFilesystem, err)
	out.State = StateFailed
	out.FailedAfter = StateInit
	out.Error = se.Error()
	return se
}

type run struct {
	opts   Options
	layout *workspace.Layout
	logger *slog.Logger
	out    *Outcome
	state  State
}

func (r *run) advance(s State) {
	r.state = s
	r.out.State = s
	r.logger.Debug("pipeline state", "state", string(s))
}

func (r *run) fail(kind Kind, err error) error {
	se := stageError(r.state, kind, err)
	r.out.State = StateFailed
	r.out.FailedAfter = r.state
	r.out.Error = se.Error()
	r.logger.Error("run failed", "after", string(se.State), "kind", string(se.Kind), "error", se.Err)
	return se
}

func (r *run) execute(ctx context.Context) error {
	log := r.logger
	log.Info("run started",
		"document", r.layout.DocumentPath,
		"content", r.layout.ContentDir,
		"dry_run", r.opts.DryRun,
		"strict", r.opts.Strict,
		"tie_break", string(r.opts.TieBreak),
		"algorithm", r.opts.Algorithm.String(),
	)

	lock, err := r.layout.Lock()
	if err != nil {
		if errors.Is(err, workspace.ErrWorkspaceLocked) {
			return r.fail(KindLocked, err)
		}
		return r.fail(KindFilesystem, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release workspace lock", "error", err)
		}
	}()

	// the backup and the parse use the same bytes
	original, err := os.ReadFile(r.layout.DocumentPath)
	if err != nil {
		return r.fail(KindFilesystem, fmt.Errorf("read document: %w", err))
	}

	backupPath, err := persist.Backup(r.layout.LogsDir, r.layout.DocumentPath, original, log)
	if err != nil {
		return r.fail(KindFilesystem, err)
	}
	r.out.BackupPath = backupPath
	r.advance(StateBackedUp)

	var validator validate.Validator
	if xsd := r.loadSchema(); xsd != nil {
		defer xsd.Close()
		validator = xsd
	}
	r.out.PreValidation = validate.Check(validator, validate.StagePre, original, log)

	doc, err := mets.Parse(original)
	if err != nil {
		return r.fail(KindParse, err)
	}
	if err := ctx.Err(); err != nil {
		return r.fail(KindCanceled, err)
	}

	idx, err := r.scan(ctx)
	if err != nil {
		return r.fail(KindFilesystem, err)
	}
	r.advance(StateScanned)

	res, err := reconcile.New(idx, reconcile.Options{
		TieBreak: r.opts.TieBreak,
		Logger:   log,
	}).Run(ctx, doc)
	if res != nil {
		r.out.applyReconcile(res)
	}
	if err != nil {
		return r.fail(KindCanceled, err)
	}
	r.reportUnreferenced(res.Unreferenced(idx))
	r.advance(StateReconciled)

	doc.SetSchemaLocation(filepath.Base(r.layout.SchemaPath))
	data, err := doc.Bytes()
	if err != nil {
		return r.fail(KindWrite, err)
	}

	r.out.PostValidation = validate.Check(validator, validate.StagePost, data, log)
	if r.opts.Strict && r.out.PostValidation.Failed() {
		return r.fail(KindValidation, fmt.Errorf("post-check %s: %s", r.out.PostValidation.Status, r.out.PostValidation.Message))
	}
	r.advance(StateValidated)

	if r.opts.DryRun {
		log.Info("dry run, document left unchanged", "would_modify", res.Modified)
		r.advance(StateDryRunSkipped)
	} else {
		if err := persist.WriteAtomic(ctx, r.layout.DocumentPath, data, log); err != nil {
			return r.fail(KindWrite, err)
		}
		r.advance(StateWritten)
	}

	r.advance(StateDone)
	log.Info("run complete",
		"entries", r.out.Entries,
		"refreshed", r.out.Refreshed,
		"relocated", r.out.Relocated,
		"unresolved", r.out.Unresolved,
		"ambiguous", r.out.Ambiguous,
		"modified", r.out.Modified,
		"unreferenced", len(r.out.Unreferenced),
		"dry_run", r.opts.DryRun,
	)
	return nil
}

func (r *run) loadSchema() *validate.XSD {
	path, ok := validate.Locate(r.layout.SchemaPath)
	if !ok {
		r.logger.Warn("schema not found, validation skipped", "schema", path)
		return nil
	}
	xsd, err := validate.NewXSD(path)
	if err != nil {
		r.logger.Warn("schema could not be loaded, validation skipped", "schema", path, "error", err)
		return nil
	}
	r.out.SchemaPath = xsd.Path()
	r.logger.Debug("schema loaded", "schema", xsd.Path())
	return xsd
}

func (r *run) scan(ctx context.Context) (*index.Index, error) {
	var cache *hashcache.Cache
	var digests scanner.DigestCache
	if r.opts.HashCache {
		c, err := hashcache.Open(r.layout.HashCachePath(), r.logger)
		if err != nil {
			r.logger.Warn("hash cache unavailable, hashing every file", "error", err)
		} else {
			cache = c
			digests = c
			defer cache.Close()
		}
	}

	idx, stats, err := scanner.Scan(ctx, scanner.Options{
		Root:      r.layout.ContentDir,
		Algorithm: r.opts.Algorithm,
		Workers:   r.opts.Workers,
		FoldCase:  index.FoldCase(),
		Exclude:   r.opts.Exclude,
		SkipPaths: []string{r.layout.DocumentPath, r.layout.LogsDir},
		Cache:     digests,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.out.FilesScanned = stats.Files
	r.out.BytesScanned = stats.Bytes
	r.out.FilesIgnored = stats.Ignored
	r.out.CacheHits = stats.CacheHits

	if cache != nil {
		keep := make(map[string]struct{}, idx.Len())
		for _, p := range idx.Paths() {
			keep[p] = struct{}{}
		}
		if n, err := cache.Prune(keep); err != nil {
			r.logger.Warn("failed to prune hash cache", "error", err)
		} else if n > 0 {
			r.logger.Debug("pruned hash cache", "removed", n)
		}
	}
	return idx, nil
}

func (r *run) reportUnreferenced(paths []string) {
	r.out.Unreferenced = append(r.out.Unreferenced[:0], paths...)
	if len(paths) == 0 {
		return
	}
	for _, p := range paths {
		r.logger.Debug("content file not referenced by any entry", "path", p)
	}
	r.logger.Warn("content files not referenced by the document",
		"count", humanize.Comma(int64(len(paths))),
		"first", paths[0],
	)
}

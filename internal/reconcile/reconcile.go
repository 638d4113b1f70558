// Package reconcile updates the file entries of a METS document from the
// record index: exact path first, then a unique-or-tie-broken basename match.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/henrycmeen/dimo/internal/index"
	"github.com/henrycmeen/dimo/internal/mets"
)

// TieBreak decides what happens when several content files share the
// basename an entry is looking for.
type TieBreak string

const (
	// TieBreakSmallest picks the lexicographically smallest relative path.
	TieBreakSmallest TieBreak = "smallest"
	// TieBreakReject leaves the entry unchanged and warns.
	TieBreakReject TieBreak = "reject"
)

// ParseTieBreak validates a tie-break policy name.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case "", TieBreakSmallest:
		return TieBreakSmallest, nil
	case TieBreakReject:
		return TieBreakReject, nil
	}
	return "", fmt.Errorf("unknown tie-break policy %q (want %q or %q)", s, TieBreakSmallest, TieBreakReject)
}

// Action is what happened to one entry.
type Action string

const (
	ActionRefreshed  Action = "refreshed"  // exact path match
	ActionRelocated  Action = "relocated"  // basename match, href rewritten
	ActionUnresolved Action = "unresolved" // no match, entry untouched
	ActionAmbiguous  Action = "ambiguous"  // several basename matches rejected
	ActionSkipped    Action = "skipped"    // no FLocat or empty href
)

// Attrs is a snapshot of the attributes the reconciler owns.
type Attrs struct {
	Href         string `json:"href"`
	Size         string `json:"size"`
	Checksum     string `json:"checksum"`
	ChecksumType string `json:"checksum_type"`
}

// Change records the outcome for one entry.
type Change struct {
	Position   int    `json:"position"`
	ID         string `json:"id,omitempty"`
	Action     Action `json:"action"`
	Candidate  string `json:"candidate"`
	Matched    string `json:"matched,omitempty"`
	Candidates int    `json:"candidates,omitempty"`
	Before     Attrs  `json:"before"`
	After      Attrs  `json:"after"`
}

// Modified reports whether any owned attribute changed.
func (c Change) Modified() bool {
	return c.Before != c.After
}

// Result aggregates a reconciliation pass.
type Result struct {
	Entries    int      `json:"entries"`
	Refreshed  int      `json:"refreshed"`
	Relocated  int      `json:"relocated"`
	Unresolved int      `json:"unresolved"`
	Ambiguous  int      `json:"ambiguous"`
	Skipped    int      `json:"skipped"`
	Modified   int      `json:"modified"`
	Changes    []Change `json:"changes"`

	matched mapset.Set[string]
}

// Unreferenced lists indexed files no entry was matched to, sorted.
func (r *Result) Unreferenced(idx *index.Index) []string {
	var out []string
	for _, p := range idx.Paths() {
		if !r.matched.Contains(idx.Key(p)) {
			out = append(out, p)
		}
	}
	return out
}

// Options configures a Reconciler.
type Options struct {
	TieBreak TieBreak
	Logger   *slog.Logger
}

// Reconciler applies an immutable index to a document. The document is
// mutated sequentially from a single goroutine.
type Reconciler struct {
	idx      *index.Index
	tieBreak TieBreak
	logger   *slog.Logger
}

func New(idx *index.Index, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tb := opts.TieBreak
	if tb == "" {
		tb = TieBreakSmallest
	}
	return &Reconciler{idx: idx, tieBreak: tb, logger: logger}
}

// Run visits every entry in document order. It stops with ctx.Err() if the
// context ends; entries already visited stay mutated.
func (r *Reconciler) Run(ctx context.Context, doc *mets.Document) (*Result, error) {
	entries := doc.Entries()
	res := &Result{
		Entries: len(entries),
		Changes: make([]Change, 0, len(entries)),
		matched: mapset.NewThreadUnsafeSet[string](),
	}
	r.logger.Info("reconciling file entries", "entries", len(entries), "files", r.idx.Len())

	for pos, fe := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ch := r.reconcileEntry(pos, fe, res)
		if ch.Modified() {
			res.Modified++
		}
		res.Changes = append(res.Changes, ch)
	}

	r.logger.Info("reconciliation complete",
		"entries", res.Entries,
		"refreshed", res.Refreshed,
		"relocated", res.Relocated,
		"unresolved", res.Unresolved,
		"ambiguous", res.Ambiguous,
		"skipped", res.Skipped,
		"modified", res.Modified,
	)
	return res, nil
}

func (r *Reconciler) reconcileEntry(pos int, fe *mets.FileEntry, res *Result) Change {
	ch := Change{Position: pos, ID: fe.ID(), Before: snapshot(fe)}
	log := r.logger.With("position", pos, "id", ch.ID)

	if !fe.HasLocation() {
		ch.Action = ActionSkipped
		ch.After = ch.Before
		res.Skipped++
		log.Debug("entry has no location reference, skipping")
		return ch
	}

	candidate, _ := CandidatePath(fe.Href())
	ch.Candidate = candidate
	log.Debug("checking entry", "href", fe.Href(), "candidate", candidate)

	if rec, ok := r.idx.Lookup(candidate); ok {
		apply(fe, rec)
		ch.Action = ActionRefreshed
		ch.Matched = rec.RelativePath
		ch.After = snapshot(fe)
		res.Refreshed++
		res.matched.Add(r.idx.Key(rec.RelativePath))
		if ch.Modified() {
			log.Info("updated file metadata", changeAttrs(ch)...)
		} else {
			log.Debug("file metadata up to date", "path", rec.RelativePath)
		}
		return ch
	}

	matches := r.idx.ByName(path.Base(candidate))
	switch {
	case candidate == "" || len(matches) == 0:
		ch.Action = ActionUnresolved
		ch.After = ch.Before
		res.Unresolved++
		log.Warn("no match for entry, left unchanged", "href", fe.Href(), "candidate", candidate)
		return ch

	case len(matches) > 1 && r.tieBreak == TieBreakReject:
		ch.Action = ActionAmbiguous
		ch.Candidates = len(matches)
		ch.After = ch.Before
		res.Ambiguous++
		log.Warn("ambiguous basename match, left unchanged",
			"candidate", candidate,
			"candidates", len(matches),
			"first", matches[0].RelativePath,
		)
		return ch
	}

	rec := matches[0]
	if len(matches) > 1 {
		log.Warn("ambiguous basename match, picked smallest path",
			"candidate", candidate,
			"candidates", len(matches),
			"picked", rec.RelativePath,
		)
	}
	apply(fe, rec)
	ch.Action = ActionRelocated
	ch.Matched = rec.RelativePath
	ch.Candidates = len(matches)
	ch.After = snapshot(fe)
	res.Relocated++
	res.matched.Add(r.idx.Key(rec.RelativePath))
	log.Info("relocated file entry", changeAttrs(ch)...)
	return ch
}

func apply(fe *mets.FileEntry, rec index.FileRecord) {
	fe.SetSize(rec.Size)
	fe.SetChecksum(rec.Checksum)
	fe.SetChecksumType(rec.Algorithm.String())
	fe.SetHref(CanonicalHref(rec.RelativePath))
}

func snapshot(fe *mets.FileEntry) Attrs {
	return Attrs{
		Href:         fe.Href(),
		Size:         fe.SizeAttr(),
		Checksum:     fe.Checksum(),
		ChecksumType: fe.ChecksumType(),
	}
}

func changeAttrs(ch Change) []any {
	attrs := []any{"path", ch.Matched}
	if ch.Before.Href != ch.After.Href {
		attrs = append(attrs, "href_old", ch.Before.Href, "href_new", ch.After.Href)
	}
	if ch.Before.Size != ch.After.Size {
		attrs = append(attrs, "size_old", quoteEmpty(ch.Before.Size), "size_new", ch.After.Size)
	}
	if ch.Before.Checksum != ch.After.Checksum {
		attrs = append(attrs, "checksum_old", quoteEmpty(ch.Before.Checksum), "checksum_new", ch.After.Checksum)
	}
	if ch.Before.ChecksumType != ch.After.ChecksumType {
		attrs = append(attrs, "checksum_type_old", quoteEmpty(ch.Before.ChecksumType), "checksum_type_new", ch.After.ChecksumType)
	}
	return attrs
}

func quoteEmpty(s string) string {
	if s == "" {
		return strconv.Quote(s)
	}
	return s
}

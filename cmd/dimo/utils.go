package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/henrycmeen/dimo/internal/metsupdate"
	"github.com/henrycmeen/dimo/internal/validate"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
	label  = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("248"))
)

const (
	exitFailure = 1
	exitLocked  = 3
)

func exitCode(err error) int {
	if errors.Is(err, metsupdate.ErrLocked) {
		return exitLocked
	}
	return exitFailure
}

func printSummary(w io.Writer, out *metsupdate.Outcome) {
	title := "METS update"
	if out.DryRun {
		title += " " + yellow.Render("(dry run)")
	}
	fmt.Fprintln(w, bold.Render(title))

	row := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintln(w, label.Render(name)+value)
	}

	row("Document", out.DocumentPath)
	row("Content", out.ContentDir)
	row("Backup", out.BackupPath)
	row("Log", out.LogPath)
	row("Scanned", fmt.Sprintf("%s files, %s", humanize.Comma(int64(out.FilesScanned)), humanize.Bytes(uint64(out.BytesScanned))))
	row("Entries", fmt.Sprintf("%d total: %s refreshed, %s relocated, %s unresolved, %s ambiguous, %d skipped",
		out.Entries,
		green.Render(fmt.Sprint(out.Refreshed)),
		cyan.Render(fmt.Sprint(out.Relocated)),
		warnCount(out.Unresolved),
		warnCount(out.Ambiguous),
		out.Skipped,
	))
	row("Modified", fmt.Sprint(out.Modified))
	row("Unreferenced", warnCount(len(out.Unreferenced)))
	row("Validation", "pre "+reportStatus(out.PreValidation)+", post "+reportStatus(out.PostValidation))

	state := green.Render(string(out.State))
	if out.State == metsupdate.StateFailed {
		state = red.Render(string(out.State)) + gray.Render(" after "+string(out.FailedAfter))
	}
	row("State", state+gray.Render(" in "+out.Duration.Round(time.Millisecond).String()))
}

func warnCount(n int) string {
	if n == 0 {
		return "0"
	}
	return yellow.Render(fmt.Sprint(n))
}

func reportStatus(r validate.Report) string {
	s := strings.ReplaceAll(string(r.Status), "_", " ")
	switch r.Status {
	case validate.StatusValid:
		return green.Render(s)
	case validate.StatusSkipped, "":
		return gray.Render("skipped")
	default:
		return red.Render(s)
	}
}

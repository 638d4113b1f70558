package scanner

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_Defaults(t *testing.T) {
	root := t.TempDir()
	l, err := NewIgnoreList(root, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	cases := []struct {
		rel    string
		isDir  bool
		ignore bool
	}{
		{".DS_Store", false, true},
		{"A/B/.DS_Store", false, true},
		{"A/._doc.pdf", false, true},
		{"A/Thumbs.db", false, true},
		{"A/doc.pdf.dimo.tmp.123", false, true},
		{IgnoreFileName, false, true},
		{"A/desktop.ini", false, true},
		{"A/doc.pdf", false, false},
		{"A/notes.swp", false, false},
		{"A/report.pdf.crdownload", false, false},
		{"A", true, false},
	}
	for _, c := range cases {
		t.Run(c.rel, func(t *testing.T) {
			assert.Equal(t, c.ignore, l.ShouldIgnore(c.rel, filepath.Join(root, c.rel), c.isDir))
		})
	}
}

func TestIgnoreList_CustomFileAndGlobs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("# comment\nscratch/\n*.log\n"), 0o644))

	l, err := NewIgnoreList(root, []string{"*.tmp", "A/**/draft-*"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.True(t, l.ShouldIgnore("scratch", filepath.Join(root, "scratch"), true))
	assert.True(t, l.ShouldIgnore("B/run.log", filepath.Join(root, "B/run.log"), false))
	assert.True(t, l.ShouldIgnore("B/C/x.tmp", filepath.Join(root, "B/C/x.tmp"), false), "globs without slash match basenames")
	assert.True(t, l.ShouldIgnore("A/x/y/draft-1.pdf", filepath.Join(root, "A/x/y/draft-1.pdf"), false))
	assert.False(t, l.ShouldIgnore("B/draft-1.pdf", filepath.Join(root, "B/draft-1.pdf"), false))
}

func TestIgnoreList_AbsPaths(t *testing.T) {
	root := t.TempDir()
	logs := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))

	l, err := NewIgnoreList(root, nil, []string{logs}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(logs)
	require.NoError(t, err)
	assert.True(t, l.ShouldIgnore("logs", resolved, true))
	assert.False(t, l.ShouldIgnore("content", filepath.Join(root, "content"), true))
}

package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestOpen_WritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", FileName)
	var console bytes.Buffer

	l, err := Open(Options{Path: path, Console: &console})
	require.NoError(t, err)

	l.Logger().Info("run started", "document", "dias-mets.xml")
	l.Logger().Debug("debug detail")
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2, "file gets debug records")
	assert.True(t, strings.HasPrefix(lines[0], "seq=1 time="))
	assert.Contains(t, lines[0], `msg="run started"`)
	assert.Contains(t, lines[0], "run="+l.RunID())
	assert.Contains(t, lines[0], "document=dias-mets.xml")
	assert.True(t, strings.HasPrefix(lines[1], "seq=2 "))

	out := console.String()
	assert.Contains(t, out, "run started")
	assert.NotContains(t, out, "debug detail", "console defaults to info")
	assert.NotContains(t, out, "\x1b[", "no colour when not a terminal")
}

func TestOpen_VerboseConsole(t *testing.T) {
	var console bytes.Buffer
	l, err := Open(Options{Path: filepath.Join(t.TempDir(), FileName), Console: &console, Verbose: true})
	require.NoError(t, err)

	l.Logger().Debug("debug detail")
	require.NoError(t, l.Close())
	assert.Contains(t, console.String(), "debug detail")
}

func TestOpen_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	first, err := Open(Options{Path: path})
	require.NoError(t, err)
	first.Logger().Info("first")
	require.NoError(t, first.Close())

	second, err := Open(Options{Path: path})
	require.NoError(t, err)
	second.Logger().Info("second")
	require.NoError(t, second.Close())

	assert.NotEqual(t, first.RunID(), second.RunID())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "msg=first")
	assert.Contains(t, lines[0], "run="+first.RunID())
	assert.Contains(t, lines[1], "msg=second")
	assert.Contains(t, lines[1], "run="+second.RunID())
}

func TestLog_ConcurrentWritesDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l, err := Open(Options{Path: path})
	require.NoError(t, err)

	const workers, each = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			log := l.Logger().With("worker", w)
			for i := 0; i < each; i++ {
				log.Info("hashed file", "path", fmt.Sprintf("dir/%d/%d.bin", w, i))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, workers*each)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "seq="), line)
		assert.Equal(t, 1, strings.Count(line, "msg="), line)
	}
}

func TestLineWriter(t *testing.T) {
	var out bytes.Buffer
	w := newLineWriter(&out)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	n, err := w.Write([]byte("a=1\nb="))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "seq=1 time=2024-01-02T03:04:05Z a=1\n", out.String())

	_, err = w.Write([]byte("2\r\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t,
		"seq=1 time=2024-01-02T03:04:05Z a=1\n"+
			"seq=2 time=2024-01-02T03:04:05Z b=2\n"+
			"seq=3 time=2024-01-02T03:04:05Z tail\n",
		out.String())

	require.NoError(t, w.Close())
}

package audit

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// lineWriter prefixes every complete line with a sequence number and an
// RFC3339 timestamp before passing it to target. Partial lines are held until
// their newline arrives or the writer is closed.
type lineWriter struct {
	mu      sync.Mutex
	target  io.Writer
	seq     atomic.Uint64
	pending bytes.Buffer
	now     func() time.Time
}

func newLineWriter(target io.Writer) *lineWriter {
	return &lineWriter{target: target, now: time.Now}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending.Write(p)
	for {
		i := bytes.IndexByte(w.pending.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.pending.Next(i + 1)
		if err := w.writeLine(bytes.TrimRight(line, "\r\n")); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *lineWriter) writeLine(line []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(line) + 48)
	buf.WriteString(slog.Uint64("seq", w.seq.Add(1)).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", w.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := w.target.Write(buf.Bytes())
	return err
}

// Close flushes a trailing partial line.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() == 0 {
		return nil
	}
	line := bytes.Clone(w.pending.Bytes())
	w.pending.Reset()
	return w.writeLine(line)
}

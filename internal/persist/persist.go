// Package persist takes the verbatim backup of a document and replaces it
// atomically with new content.
package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/henrycmeen/dimo/internal/checksum"
	"github.com/henrycmeen/dimo/internal/utils"
	"github.com/shirou/gopsutil/v4/disk"
)

const (
	// BackupSuffix is appended to the document name inside the logs dir.
	BackupSuffix = ".bak"
	// TempMarker is part of every temp file name; scanners ignore it.
	TempMarker = ".dimo.tmp."

	// headroom kept free on the volume beyond the file itself
	freeSpaceHeadroom = 1 << 20
	defaultPerm       = 0o644
)

var (
	ErrInsufficientSpace = errors.New("persist: insufficient free space")
	ErrIntegrity         = errors.New("persist: integrity check failed")
)

// BackupPath is where the backup of docPath lives inside logsDir.
func BackupPath(logsDir, docPath string) string {
	return filepath.Join(logsDir, filepath.Base(docPath)+BackupSuffix)
}

// Backup writes data to the backup location and reads it back to confirm it
// matches byte for byte.
func Backup(logsDir, docPath string, data []byte, logger *slog.Logger) (string, error) {
	dst := BackupPath(logsDir, docPath)
	if err := utils.EnsureDir(logsDir); err != nil {
		return "", fmt.Errorf("create logs dir: %w", err)
	}

	if err := writeAtomic(context.Background(), dst, data, defaultPerm); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		return "", fmt.Errorf("read back backup: %w", err)
	}
	if !bytes.Equal(got, data) {
		return "", fmt.Errorf("%w: backup %s differs from source", ErrIntegrity, dst)
	}

	logger.Info("backup written", "path", dst, "size", humanize.Bytes(uint64(len(data))))
	return dst, nil
}

// WriteAtomic replaces path with data. The content goes to a temp file in the
// same directory, is synced, takes over the original permissions and is then
// renamed over path. The context is checked right before the rename; on any
// failure path is left as it was.
func WriteAtomic(ctx context.Context, path string, data []byte, logger *slog.Logger) error {
	dir := filepath.Dir(path)

	if err := checkFreeSpace(dir, len(data)); err != nil {
		return err
	}

	perm := os.FileMode(defaultPerm)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := writeAtomic(ctx, path, data, perm); err != nil {
		return err
	}
	if err := syncDir(dir); err != nil {
		logger.Debug("directory sync failed", "dir", dir, "error", err)
	}

	logger.Info("document written", "path", path, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

func writeAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	expected, err := checksum.Bytes(data, checksum.Default)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+TempMarker+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	hasher, err := checksum.Default.New()
	if err != nil {
		return err
	}
	if _, err := io.MultiWriter(tempFile, hasher).Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if got := fmt.Sprintf("%x", hasher.Sum(nil)); got != expected {
		return fmt.Errorf("%w: expected %s got %s", ErrIntegrity, expected, got)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	success = true
	return nil
}

func checkFreeSpace(dir string, size int) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		// unknown filesystem; let the write itself fail if space runs out
		return nil
	}
	need := uint64(size) + freeSpaceHeadroom
	if usage.Free < need {
		return fmt.Errorf("%w on %s: need %s, have %s", ErrInsufficientSpace, dir, humanize.Bytes(need), humanize.Bytes(usage.Free))
	}
	return nil
}

// syncDir makes the rename durable. Not every platform can fsync a directory.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

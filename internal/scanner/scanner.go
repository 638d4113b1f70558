// Package scanner walks a content root and builds the record index, hashing
// files on a bounded worker pool.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/henrycmeen/dimo/internal/checksum"
	"github.com/henrycmeen/dimo/internal/index"
	"github.com/henrycmeen/dimo/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	AutoDetectWorkers = 0

	// progressEvery controls how often a progress line is logged.
	progressEvery = 10000
)

var (
	ErrContentDirMissing = errors.New("content directory does not exist")
	ErrNotADirectory     = errors.New("content path is not a directory")
)

// DigestCache short-circuits hashing of files that have not changed.
type DigestCache interface {
	Lookup(relPath string, size int64, mtime time.Time, algo checksum.Algorithm) (string, bool, error)
	Store(relPath string, size int64, mtime time.Time, algo checksum.Algorithm, sum string) error
}

// Options configures a scan.
type Options struct {
	Root      string
	Algorithm checksum.Algorithm
	Workers   int
	FoldCase  bool
	Exclude   []string    // doublestar globs relative to Root
	SkipPaths []string    // absolute paths never indexed (document, logs dir)
	Cache     DigestCache // optional
	Logger    *slog.Logger
}

// Stats summarizes a scan.
type Stats struct {
	Files     int
	Bytes     int64
	Ignored   int
	Symlinks  int
	CacheHits int
	Duration  time.Duration
}

// Scan walks opts.Root and returns the frozen index. Any unreadable file or
// directory aborts the scan.
func Scan(ctx context.Context, opts Options) (*index.Index, *Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.Default
	}
	workers := opts.Workers
	if workers <= AutoDetectWorkers {
		workers = runtime.NumCPU()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve content root %s: %w", opts.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrContentDirMissing, root)
		}
		return nil, nil, fmt.Errorf("stat content root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	root = realPath(root)

	ignore, err := NewIgnoreList(root, opts.Exclude, opts.SkipPaths, logger)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	builder := index.NewBuilder(opts.FoldCase)
	stats := &Stats{}
	var (
		bytes     atomic.Int64
		cacheHits atomic.Int64
		hashed    atomic.Int64
	)

	logger.Info("scanning content directory", "root", root, "workers", workers, "algorithm", opts.Algorithm)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	walkErr := filepath.WalkDir(root, func(absPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", absPath, walkErr)
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if absPath == root {
			return nil
		}

		relPath, ok := utils.RelWithin(root, absPath)
		if !ok {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			stats.Symlinks++
			logger.Debug("skipping symlink", "path", relPath)
			return nil
		}

		if ignore.ShouldIgnore(relPath, absPath, d.IsDir()) {
			stats.Ignored++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		stats.Files++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, hit, err := hashOne(absPath, relPath, opts, logger)
			if err != nil {
				return err
			}
			if hit {
				cacheHits.Add(1)
			}
			bytes.Add(rec.Size)
			if n := hashed.Add(1); n%progressEvery == 0 {
				logger.Info("scan progress", "files", n, "bytes", humanize.Bytes(uint64(bytes.Load())))
			}
			return builder.Add(rec)
		})
		return nil
	})

	// Wait first: a worker failure cancels gctx and the walk reports only that.
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if walkErr != nil {
		return nil, nil, walkErr
	}

	idx := builder.Freeze()
	stats.Bytes = bytes.Load()
	stats.CacheHits = int(cacheHits.Load())
	stats.Duration = time.Since(start)

	logger.Info("scan complete",
		"root", root,
		"files", idx.Len(),
		"size", humanize.Bytes(uint64(stats.Bytes)),
		"ignored", stats.Ignored,
		"symlinks", stats.Symlinks,
		"cache_hits", stats.CacheHits,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	return idx, stats, nil
}

func hashOne(absPath, relPath string, opts Options, logger *slog.Logger) (index.FileRecord, bool, error) {
	rec := index.FileRecord{
		RelativePath: relPath,
		AbsolutePath: absPath,
		Algorithm:    opts.Algorithm,
	}

	var (
		info os.FileInfo
		err  error
	)
	if opts.Cache != nil {
		info, err = os.Stat(absPath)
		if err != nil {
			return rec, false, fmt.Errorf("stat %s: %w", absPath, err)
		}
		sum, ok, err := opts.Cache.Lookup(relPath, info.Size(), info.ModTime(), opts.Algorithm)
		if err != nil {
			logger.Warn("hash cache lookup failed", "path", relPath, "error", err)
		} else if ok {
			rec.Size = info.Size()
			rec.Checksum = sum
			return rec, true, nil
		}
	}

	sum, err := checksum.File(absPath, opts.Algorithm)
	if err != nil {
		return rec, false, fmt.Errorf("checksum %s: %w", relPath, err)
	}
	rec.Size = sum.Size
	rec.Checksum = sum.Hex

	if opts.Cache != nil && info.Size() == sum.Size {
		if err := opts.Cache.Store(relPath, sum.Size, info.ModTime(), opts.Algorithm, sum.Hex); err != nil {
			logger.Warn("hash cache store failed", "path", relPath, "error", err)
		}
	}
	return rec, false, nil
}

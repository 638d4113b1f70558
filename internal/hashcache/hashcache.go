// Package hashcache remembers digests between runs so unchanged files need
// not be re-read. A cached digest is only trusted when path, size,
// modification time and algorithm all match.
package hashcache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/henrycmeen/dimo/internal/checksum"
	"github.com/henrycmeen/dimo/internal/db"
	"github.com/jmoiron/sqlx"
)

// FileName is the cache database name inside the logs directory.
const FileName = "checksums.db"

const schema = `
CREATE TABLE IF NOT EXISTS file_checksums (
    path TEXT NOT NULL,
    algorithm TEXT NOT NULL,
    size INTEGER NOT NULL,
    mtime_ns INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    updated_at TEXT NOT NULL, -- RFC3339
    PRIMARY KEY (path, algorithm)
);
`

// Cache writes are not fsynced; a lost cache only means rehashing.
const pragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=OFF;
PRAGMA temp_store=MEMORY;
`

type dbEntry struct {
	Path      string `db:"path"`
	Algorithm string `db:"algorithm"`
	Size      int64  `db:"size"`
	MTimeNs   int64  `db:"mtime_ns"`
	Checksum  string `db:"checksum"`
	UpdatedAt string `db:"updated_at"`
}

// Cache is a sqlite-backed digest cache. Methods are safe for concurrent use;
// writes are serialized onto the single connection.
type Cache struct {
	db     *sqlx.DB
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	hits int
	miss int
}

// Open opens or creates the cache at path.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	conn, err := db.Open(db.WithPath(path), db.WithPragmas(pragmas), db.WithSchema(schema), db.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open hash cache %s: %w", path, err)
	}
	return &Cache{db: conn, path: path, logger: logger}, nil
}

// Lookup returns the cached digest for relPath if size, mtime and algorithm match.
func (c *Cache) Lookup(relPath string, size int64, mtime time.Time, algo checksum.Algorithm) (string, bool, error) {
	var e dbEntry
	err := c.db.Get(&e, "SELECT path, algorithm, size, mtime_ns, checksum, updated_at FROM file_checksums WHERE path = ? AND algorithm = ?", relPath, string(algo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.count(false)
			return "", false, nil
		}
		return "", false, fmt.Errorf("query cached checksum %s: %w", relPath, err)
	}

	if e.Size != size || e.MTimeNs != mtime.UnixNano() || e.Checksum == "" {
		c.count(false)
		return "", false, nil
	}
	c.count(true)
	return e.Checksum, true, nil
}

// Store inserts or replaces the digest for relPath.
func (c *Cache) Store(relPath string, size int64, mtime time.Time, algo checksum.Algorithm, sum string) error {
	data := dbEntry{
		Path:      relPath,
		Algorithm: string(algo),
		Size:      size,
		MTimeNs:   mtime.UnixNano(),
		Checksum:  sum,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	query := `INSERT OR REPLACE INTO file_checksums (path, algorithm, size, mtime_ns, checksum, updated_at)
	          VALUES (:path, :algorithm, :size, :mtime_ns, :checksum, :updated_at)`
	if _, err := c.db.NamedExec(query, data); err != nil {
		return fmt.Errorf("store checksum for %s: %w", relPath, err)
	}
	return nil
}

// Prune removes rows for paths not in keep. It returns the number removed.
func (c *Cache) Prune(keep map[string]struct{}) (int, error) {
	var paths []string
	if err := c.db.Select(&paths, "SELECT DISTINCT path FROM file_checksums"); err != nil {
		return 0, fmt.Errorf("list cached paths: %w", err)
	}

	removed := 0
	for _, p := range paths {
		if _, ok := keep[p]; ok {
			continue
		}
		if _, err := c.db.Exec("DELETE FROM file_checksums WHERE path = ?", p); err != nil {
			return removed, fmt.Errorf("prune %s: %w", p, err)
		}
		removed++
	}
	return removed, nil
}

// Count returns the number of cached rows.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.Get(&n, "SELECT COUNT(*) FROM file_checksums"); err != nil {
		return 0, fmt.Errorf("count cached checksums: %w", err)
	}
	return n, nil
}

// Stats returns lookup hits and misses since Open.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.miss
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close hash cache: %w", err)
	}
	c.logger.Debug("hash cache closed", "path", c.path)
	return nil
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.miss++
	}
}

// Package workspace describes where a run reads and writes: the workspace
// root, the content tree, the METS document, its logs and the schema.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/henrycmeen/dimo/internal/audit"
	"github.com/henrycmeen/dimo/internal/hashcache"
	"github.com/henrycmeen/dimo/internal/persist"
	"github.com/henrycmeen/dimo/internal/utils"
)

const (
	DefaultDocumentName = "dias-mets.xml"
	DefaultContentDir   = "content"
	DefaultSchemaName   = "dias-mets.xsd"

	logsDir  = "logs"
	lockFile = "dimo.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
	ErrNotADirectory   = errors.New("workspace root is not a directory")
)

// Layout is the resolved, immutable set of paths for one run. Logs live
// beside the document, not necessarily under Root.
type Layout struct {
	Root         string
	ContentDir   string
	DocumentPath string
	LogsDir      string
	SchemaPath   string
}

type Option func(*settings)

type settings struct {
	document string
	content  string
	schema   string
}

// WithDocument overrides the document path. Relative paths resolve against the root.
func WithDocument(path string) Option {
	return func(s *settings) { s.document = path }
}

// WithContentDir overrides the content directory. Relative paths resolve against the root.
func WithContentDir(path string) Option {
	return func(s *settings) { s.content = path }
}

// WithSchema overrides the schema path. Relative paths resolve against the
// working directory.
func WithSchema(path string) Option {
	return func(s *settings) { s.schema = path }
}

// New validates that root is an existing directory and resolves every path.
func New(root string, opts ...Option) (*Layout, error) {
	s := settings{
		document: DefaultDocumentName,
		content:  DefaultContentDir,
		schema:   DefaultSchemaName,
	}
	for _, opt := range opts {
		opt(&s)
	}

	rootPath, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, rootPath)
	}

	docPath, err := utils.ResolveAgainst(rootPath, s.document)
	if err != nil {
		return nil, fmt.Errorf("document path: %w", err)
	}
	contentDir, err := utils.ResolveAgainst(rootPath, s.content)
	if err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	schemaPath, err := utils.ResolvePath(s.schema)
	if err != nil {
		return nil, fmt.Errorf("schema path: %w", err)
	}

	return &Layout{
		Root:         rootPath,
		ContentDir:   contentDir,
		DocumentPath: docPath,
		LogsDir:      filepath.Join(filepath.Dir(docPath), logsDir),
		SchemaPath:   schemaPath,
	}, nil
}

// Init creates the content and logs directories if they are missing.
func (l *Layout) Init() error {
	for _, dir := range []string{l.ContentDir, l.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (l *Layout) BackupPath() string {
	return persist.BackupPath(l.LogsDir, l.DocumentPath)
}

func (l *Layout) AuditLogPath() string {
	return filepath.Join(l.LogsDir, audit.FileName)
}

func (l *Layout) HashCachePath() string {
	return filepath.Join(l.LogsDir, hashcache.FileName)
}

func (l *Layout) LockPath() string {
	return filepath.Join(l.LogsDir, lockFile)
}

// Lock is held for the duration of one run against a document.
type Lock struct {
	flock *flock.Flock
}

// Lock takes the run lock without blocking. A second run on the same
// document gets ErrWorkspaceLocked.
func (l *Layout) Lock() (*Lock, error) {
	if err := utils.EnsureDir(l.LogsDir); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", l.LogsDir, err)
	}

	fl := flock.New(l.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return nil, ErrWorkspaceLocked
	}
	return &Lock{flock: fl}, nil
}

// Unlock releases the lock and removes the lock file.
func (k *Lock) Unlock() error {
	// not ours, leave the file alone
	if !k.flock.Locked() {
		return nil
	}
	if err := k.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(k.flock.Path())
}

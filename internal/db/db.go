// Package db opens the sqlite databases kept in a workspace's logs directory.
package db

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/henrycmeen/dimo/internal/utils"
	"github.com/jmoiron/sqlx"
)

// Pragmas applied to every connection unless overridden with WithPragmas.
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=NORMAL;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=8000;
`

const memoryPath = ":memory:"

type config struct {
	path    string
	pragmas string
	schema  string
	logger  *slog.Logger
}

// Option configures Open.
type Option func(*config)

// WithPath sets the database file. The default is an in-memory database.
func WithPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithPragmas replaces the default pragma block.
func WithPragmas(pragmas string) Option {
	return func(c *config) {
		c.pragmas = pragmas
	}
}

// WithSchema runs the given DDL after connecting. It must be idempotent.
func WithSchema(schema string) Option {
	return func(c *config) {
		c.schema = schema
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Open connects to sqlite, applies pragmas and the optional schema.
func Open(opts ...Option) (*sqlx.DB, error) {
	cfg := &config{
		path:    memoryPath,
		pragmas: defaultPragma,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := memoryPath
	if cfg.path != memoryPath {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	cfg.logger.Debug("db open", "driver", driverID, "path", cfg.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// pragmas are per connection; a second pooled connection would miss them
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(cfg.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if cfg.schema != "" {
		if _, err := conn.Exec(cfg.schema); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return conn, nil
}

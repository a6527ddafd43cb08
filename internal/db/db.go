package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir  = ".taskroute"
	operationalDB = "operational.db"
	archiveDB     = "archive.db"
)

// Store names one of the two independently-transactional databases.
type Store string

const (
	Operational Store = "operational"
	Archive     Store = "archive"
)

type Config struct {
	Workspace string
}

func dbPath(workspace string, store Store) string {
	if workspace == "" {
		workspace = "."
	}
	name := operationalDB
	if store == Archive {
		name = archiveDB
	}
	return filepath.Join(workspace, workspaceDir, name)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens one of the workspace SQLite databases. Write transactions start
// IMMEDIATE so concurrent writers queue on the busy timeout instead of
// failing on lock upgrade.
func Open(cfg Config, store Store) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", dbPath(cfg.Workspace, store))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", store, err)
	}
	return conn, nil
}

// Pair is the operational and archive handle for one workspace.
type Pair struct {
	Operational *sql.DB
	Archive     *sql.DB
}

// OpenPair opens both stores; the operational handle is closed again if the
// archive cannot be opened.
func OpenPair(cfg Config) (Pair, error) {
	ops, err := Open(cfg, Operational)
	if err != nil {
		return Pair{}, err
	}
	arc, err := Open(cfg, Archive)
	if err != nil {
		ops.Close()
		return Pair{}, err
	}
	return Pair{Operational: ops, Archive: arc}, nil
}

func (p Pair) Close() error {
	var firstErr error
	for _, conn := range []*sql.DB{p.Operational, p.Archive} {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Path returns the db path for the workspace store.
func Path(workspace string, store Store) string {
	return dbPath(workspace, store)
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/store"
)

const dsnOptions = "_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_busy_timeout=5000"

// Store keeps two handles on the same file: a single-connection writer whose
// transactions start with BEGIN IMMEDIATE, and a reader pool.
type Store struct {
	rw     *sql.DB
	ro     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	rw, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s&_txlock=immediate", path, dsnOptions))
	if err != nil {
		return nil, err
	}
	rw.SetMaxOpenConns(1)

	if err := initSchema(rw); err != nil {
		rw.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	ro, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s&_txlock=deferred", path, dsnOptions))
	if err != nil {
		rw.Close()
		return nil, err
	}

	return &Store{
		rw:     rw,
		ro:     ro,
		logger: logger.Get(logger.Store),
	}, nil
}

func (s *Store) View(ctx context.Context, fn func(store.ReadTx) error) error {
	sqlTx, err := s.ro.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer sqlTx.Rollback()

	return fn(&tx{tx: sqlTx})
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}

	if err := fn(&tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Warn("Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	roErr := s.ro.Close()
	if err := s.rw.Close(); err != nil {
		return err
	}
	return roErr
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS segment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id INTEGER NOT NULL,
		type TEXT NOT NULL CHECK(type IN ('virtual', 'direct-attached')),
		tag TEXT NOT NULL,
		gateway TEXT NOT NULL,
		netmask TEXT NOT NULL,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		network_id INTEGER,
		removed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_segment_zone_type ON segment(zone_id, type);
	CREATE INDEX IF NOT EXISTS idx_segment_type ON segment(type);
	CREATE INDEX IF NOT EXISTS idx_segment_network ON segment(network_id);
	CREATE INDEX IF NOT EXISTS idx_segment_zone_tag ON segment(zone_id, tag);

	CREATE TABLE IF NOT EXISTS pod_segment_map (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pod_id INTEGER NOT NULL,
		segment_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pod_segment_pod ON pod_segment_map(pod_id);
	CREATE INDEX IF NOT EXISTS idx_pod_segment_segment ON pod_segment_map(segment_id);

	CREATE TABLE IF NOT EXISTS account_segment_map (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		segment_id INTEGER NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_account_segment_account ON account_segment_map(account_id);

	CREATE TABLE IF NOT EXISTS segment_address (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		segment_id INTEGER NOT NULL,
		zone_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		account_id INTEGER,
		allocated_at DATETIME,
		UNIQUE(segment_id, address)
	);

	CREATE INDEX IF NOT EXISTS idx_segment_address_usage ON segment_address(zone_id, segment_id, allocated_at);
	CREATE INDEX IF NOT EXISTS idx_segment_address_lookup ON segment_address(zone_id, address);
	`

	_, err := db.Exec(schema)
	return err
}

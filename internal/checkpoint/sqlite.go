package checkpoint

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"ceph2swift/internal/storage"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Writes are serialized through a
// mutex and retried on SQLITE_BUSY so concurrent workers cannot corrupt or
// interleave a record update.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the progress database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS objects (
		key TEXT NOT NULL PRIMARY KEY,
		size INTEGER NOT NULL,
		etag TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		error_kind TEXT,
		last_error TEXT,
		dst_checksum TEXT,
		terminal INTEGER DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_objects_status ON objects(status);
	`
	_, err := s.db.Exec(query)
	return err
}

// Get retrieves the record for key, nil when absent.
func (s *SQLiteStore) Get(key string) (*Record, error) {
	var result *Record
	err := s.retryOnBusy(func() error {
		var err error
		result, err = s.getInternal(key)
		return err
	})
	return result, err
}

func (s *SQLiteStore) getInternal(key string) (*Record, error) {
	row := s.db.QueryRow(`
	SELECT key, size, etag, status, attempts, error_kind, last_error, dst_checksum, terminal, updated_at
	FROM objects WHERE key = ?`, key)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save upserts a record atomically. A record already marked terminal or done
// is a sink: the upsert leaves it untouched so interleaved writes from a
// stale retry cannot regress it.
func (s *SQLiteStore) Save(record *Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveInTransaction(record)
	})
}

func (s *SQLiteStore) saveInTransaction(record *Record) error {
	record.UpdatedAt = time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO objects
	(key, size, etag, status, attempts, error_kind, last_error, dst_checksum, terminal, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		size = excluded.size,
		etag = excluded.etag,
		status = excluded.status,
		attempts = excluded.attempts,
		error_kind = excluded.error_kind,
		last_error = excluded.last_error,
		dst_checksum = excluded.dst_checksum,
		terminal = excluded.terminal,
		updated_at = excluded.updated_at
	WHERE objects.terminal = 0 AND objects.status != 'done'
	`

	_, err = tx.Exec(query,
		record.Key,
		record.Size,
		record.ETag,
		string(record.Status),
		record.Attempts,
		string(record.ErrorKind),
		record.LastError,
		record.DstChecksum,
		boolToInt(record.Terminal),
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return tx.Commit()
}

// ResetInProgress rewinds crash leftovers to pending. Returns how many
// records were rewound.
func (s *SQLiteStore) ResetInProgress() (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var n int64
	err := s.retryOnBusy(func() error {
		res, err := s.db.Exec(
			`UPDATE objects SET status = ?, updated_at = ? WHERE status = ?`,
			string(StatusPending), time.Now().UTC(), string(StatusInProgress))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// ResetAll rewinds every record to pending and clears checksums and errors.
func (s *SQLiteStore) ResetAll() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(
			`UPDATE objects SET status = ?, attempts = 0, error_kind = '', last_error = '', dst_checksum = '', terminal = 0, updated_at = ?`,
			string(StatusPending), time.Now().UTC())
		return err
	})
}

// Reset rewinds a single record to pending, clearing its checksum so the
// done-implies-checksum invariant holds.
func (s *SQLiteStore) Reset(key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(
			`UPDATE objects SET status = ?, attempts = 0, error_kind = '', last_error = '', dst_checksum = '', terminal = 0, updated_at = ? WHERE key = ?`,
			string(StatusPending), time.Now().UTC(), key)
		return err
	})
}

// Counts aggregates record counts by status.
func (s *SQLiteStore) Counts() (Counts, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM objects GROUP BY status`)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		switch Status(status) {
		case StatusPending:
			c.Pending = n
		case StatusInProgress:
			c.InProgress = n
		case StatusDone:
			c.Done = n
		case StatusFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

// ListFailed returns every terminally failed record, oldest first.
func (s *SQLiteStore) ListFailed() ([]*Record, error) {
	rows, err := s.db.Query(`
	SELECT key, size, etag, status, attempts, error_kind, last_error, dst_checksum, terminal, updated_at
	FROM objects WHERE status = ? AND terminal = 1
	ORDER BY updated_at ASC`, string(StatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status, errorKind string
	var lastError, dstChecksum sql.NullString
	var terminal int

	err := row.Scan(
		&rec.Key,
		&rec.Size,
		&rec.ETag,
		&status,
		&rec.Attempts,
		&errorKind,
		&lastError,
		&dstChecksum,
		&terminal,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.ErrorKind = storage.ErrorKind(errorKind)
	rec.LastError = lastError.String
	rec.DstChecksum = dstChecksum.String
	rec.Terminal = terminal != 0
	return &rec, nil
}

// retryOnBusy retries an operation while SQLite reports lock contention.
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}
	return err
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package store persists the device inventory, job records, pre-check
// results, and the firmware image repository in a local SQLite database.
package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store wraps the shared SQLite database used by all record types.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the SQLite database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite database %s failed", path)
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "execute sqlite pragma %s failed", stmt)
		}
	}
	db.SetMaxOpenConns(1)
	return nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			ip_address TEXT PRIMARY KEY,
			hostname TEXT,
			serial_number TEXT,
			device_role TEXT,
			current_version TEXT,
			rommon_version TEXT,
			config_register TEXT,
			status TEXT DEFAULT 'Offline',
			netconf_state TEXT DEFAULT 'Disabled',
			model TEXT,
			boot_variable TEXT,
			free_space_mb INTEGER,
			image_file TEXT,
			precheck_status TEXT,
			precheck_details TEXT,
			target_image TEXT,
			image_copied TEXT DEFAULT 'No',
			image_verified TEXT DEFAULT 'No',
			is_supported TEXT DEFAULT 'Yes',
			last_updated TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			target_ip TEXT,
			job_type TEXT DEFAULT 'UPGRADE',
			target_version TEXT,
			schedule_time TEXT,
			start_time TEXT,
			end_time TEXT,
			status TEXT DEFAULT 'Pending',
			log_file_path TEXT,
			created_at TEXT,
			FOREIGN KEY (target_ip) REFERENCES inventory(ip_address)
		)`,
		`CREATE TABLE IF NOT EXISTS prechecks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip_address TEXT,
			check_name TEXT,
			result TEXT,
			message TEXT,
			checked_at TEXT,
			FOREIGN KEY (ip_address) REFERENCES inventory(ip_address)
		)`,
		`CREATE TABLE IF NOT EXISTS repository (
			filename TEXT PRIMARY KEY,
			md5_expected TEXT,
			file_path TEXT,
			size_bytes INTEGER,
			upload_date TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "ensure schema failed")
		}
	}
	return nil
}

func (s *Store) exec(query string, args ...any) error {
	log.Trace().Msg(FormatSQLForLog(query, args...))
	_, err := s.db.Exec(query, args...)
	return err
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw.String); err == nil {
		return &t
	}
	return nil
}

func stringPtr(raw sql.NullString) *string {
	if !raw.Valid {
		return nil
	}
	v := raw.String
	return &v
}

func int64Ptr(raw sql.NullInt64) *int64 {
	if !raw.Valid {
		return nil
	}
	v := raw.Int64
	return &v
}

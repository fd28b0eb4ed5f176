package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// PrecheckResult is one stored rule outcome for a device.
type PrecheckResult struct {
	Address   string
	Check     string
	Result    string
	Message   string
	CheckedAt time.Time
}

// AddPrecheck appends one rule outcome for a device.
func (s *Store) AddPrecheck(r PrecheckResult) error {
	checked := r.CheckedAt
	if checked.IsZero() {
		checked = time.Now()
	}
	err := s.exec(`INSERT INTO prechecks (ip_address, check_name, result, message, checked_at)
		VALUES (?, ?, ?, ?, ?)`, r.Address, r.Check, r.Result, r.Message, formatTime(checked))
	return errors.Wrapf(err, "add precheck for %s failed", r.Address)
}

// PrechecksFor returns the stored results for addr in insertion order.
func (s *Store) PrechecksFor(addr string) ([]PrecheckResult, error) {
	rows, err := s.db.Query(`SELECT ip_address, check_name, result, message, checked_at
		FROM prechecks WHERE ip_address = ? ORDER BY id`, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "get prechecks for %s failed", addr)
	}
	defer rows.Close()
	var results []PrecheckResult
	for rows.Next() {
		var r PrecheckResult
		var checked sql.NullString
		if err := rows.Scan(&r.Address, &r.Check, &r.Result, &r.Message, &checked); err != nil {
			return nil, errors.Wrap(err, "scan precheck failed")
		}
		if t := parseTime(checked); t != nil {
			r.CheckedAt = *t
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ClearPrechecksFor discards all prior results for a device. Called at the
// start of every evaluation run; only the latest run is retained.
func (s *Store) ClearPrechecksFor(addr string) error {
	return errors.Wrapf(s.exec(`DELETE FROM prechecks WHERE ip_address = ?`, addr),
		"clear prechecks for %s failed", addr)
}

// ClearPrechecks removes every stored result.
func (s *Store) ClearPrechecks() error {
	return errors.Wrap(s.exec(`DELETE FROM prechecks`), "clear prechecks failed")
}

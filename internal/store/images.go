package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Image is one firmware artifact in the repository.
type Image struct {
	Filename   string
	MD5        string
	Path       string
	SizeBytes  int64
	UploadedAt time.Time
}

// PutImage inserts or replaces a repository record.
func (s *Store) PutImage(img Image) error {
	uploaded := img.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now()
	}
	err := s.exec(`INSERT OR REPLACE INTO repository (filename, md5_expected, file_path, size_bytes, upload_date)
		VALUES (?, ?, ?, ?, ?)`, img.Filename, img.MD5, img.Path, img.SizeBytes, formatTime(uploaded))
	return errors.Wrapf(err, "put image %s failed", img.Filename)
}

// GetImage returns the repository record for filename, or nil when absent.
func (s *Store) GetImage(filename string) (*Image, error) {
	row := s.db.QueryRow(`SELECT filename, md5_expected, file_path, size_bytes, upload_date
		FROM repository WHERE filename = ?`, filename)
	var img Image
	var size sql.NullInt64
	var uploaded sql.NullString
	err := row.Scan(&img.Filename, &img.MD5, &img.Path, &size, &uploaded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get image %s failed", filename)
	}
	if size.Valid {
		img.SizeBytes = size.Int64
	}
	if t := parseTime(uploaded); t != nil {
		img.UploadedAt = *t
	}
	return &img, nil
}

// GetImageHash returns the expected MD5 for filename. The second return is
// false when the repository has no record or no hash for the file.
func (s *Store) GetImageHash(filename string) (string, bool, error) {
	img, err := s.GetImage(filename)
	if err != nil {
		return "", false, err
	}
	if img == nil || img.MD5 == "" {
		return "", false, nil
	}
	return img.MD5, true, nil
}

// ListImages returns all repository records, newest first.
func (s *Store) ListImages() ([]Image, error) {
	rows, err := s.db.Query(`SELECT filename, md5_expected, file_path, size_bytes, upload_date
		FROM repository ORDER BY upload_date DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list images failed")
	}
	defer rows.Close()
	var images []Image
	for rows.Next() {
		var img Image
		var size sql.NullInt64
		var uploaded sql.NullString
		if err := rows.Scan(&img.Filename, &img.MD5, &img.Path, &size, &uploaded); err != nil {
			return nil, errors.Wrap(err, "scan image failed")
		}
		if size.Valid {
			img.SizeBytes = size.Int64
		}
		if t := parseTime(uploaded); t != nil {
			img.UploadedAt = *t
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeleteImage removes a repository record.
func (s *Store) DeleteImage(filename string) error {
	return errors.Wrapf(s.exec(`DELETE FROM repository WHERE filename = ?`, filename),
		"delete image %s failed", filename)
}

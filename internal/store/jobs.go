package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Job is one background operation record.
type Job struct {
	ID            string
	Address       string
	Type          string
	TargetVersion string
	ScheduleTime  *time.Time
	StartTime     *time.Time
	EndTime       *time.Time
	Status        string
	LogPath       string
	CreatedAt     time.Time
}

const jobColumns = `job_id, target_ip, job_type, target_version, schedule_time,
	start_time, end_time, status, log_file_path, created_at`

// CreateJob inserts a new job record.
func (s *Store) CreateJob(j Job) error {
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	err := s.exec(`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Address, j.Type, j.TargetVersion, formatTimePtr(j.ScheduleTime),
		formatTimePtr(j.StartTime), formatTimePtr(j.EndTime), j.Status, j.LogPath,
		formatTime(created))
	return errors.Wrapf(err, "create job %s failed", j.ID)
}

// GetJob returns the job for id, or nil when absent.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job %s failed", id)
	}
	return j, nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs() ([]Job, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`)
}

// ScheduledJobs returns jobs awaiting their schedule time.
func (s *Store) ScheduledJobs() ([]Job, error) {
	return s.queryJobs(`SELECT `+jobColumns+` FROM jobs WHERE status = ?`, JobStatusScheduled)
}

// ActiveJobs returns all currently running jobs.
func (s *Store) ActiveJobs() ([]Job, error) {
	return s.queryJobs(`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY start_time DESC`,
		JobStatusRunning)
}

// JobsForDevice returns the most recent jobs targeting addr.
func (s *Store) JobsForDevice(addr string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryJobs(`SELECT `+jobColumns+` FROM jobs WHERE target_ip = ?
		ORDER BY created_at DESC LIMIT ?`, addr, limit)
}

// MarkJobStarted flips the job to Running and stamps its start time.
func (s *Store) MarkJobStarted(id string) error {
	err := s.exec(`UPDATE jobs SET status = ?, start_time = ? WHERE job_id = ?`,
		JobStatusRunning, formatTime(time.Now()), id)
	return errors.Wrapf(err, "mark job %s started failed", id)
}

// FinishJob records a terminal status and the end time.
func (s *Store) FinishJob(id, status string) error {
	err := s.exec(`UPDATE jobs SET status = ?, end_time = ? WHERE job_id = ?`,
		status, formatTime(time.Now()), id)
	return errors.Wrapf(err, "finish job %s failed", id)
}

// UpdateJobStatus sets the status column only.
func (s *Store) UpdateJobStatus(id, status string) error {
	err := s.exec(`UPDATE jobs SET status = ? WHERE job_id = ?`, status, id)
	return errors.Wrapf(err, "update job %s status failed", id)
}

// ClaimScheduledJob atomically moves a Scheduled job to status. It reports
// false when the job was no longer Scheduled, which is what prevents a second
// scheduler sweep (or a manual retry) from dispatching the same job twice.
func (s *Store) ClaimScheduledJob(id, status string) (bool, error) {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, start_time = ?
		WHERE job_id = ? AND status = ?`,
		status, formatTime(time.Now()), id, JobStatusScheduled)
	if err != nil {
		return false, errors.Wrapf(err, "claim scheduled job %s failed", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected failed")
	}
	return n == 1, nil
}

// RescheduleJob moves the job back to Scheduled at a new time.
func (s *Store) RescheduleJob(id string, at time.Time) error {
	err := s.exec(`UPDATE jobs SET schedule_time = ?, status = ? WHERE job_id = ?`,
		formatTime(at), JobStatusScheduled, id)
	return errors.Wrapf(err, "reschedule job %s failed", id)
}

// DeleteJob removes the job record permanently.
func (s *Store) DeleteJob(id string) error {
	return errors.Wrapf(s.exec(`DELETE FROM jobs WHERE job_id = ?`, id), "delete job %s failed", id)
}

// ClearJobs removes all job records.
func (s *Store) ClearJobs() error {
	return errors.Wrap(s.exec(`DELETE FROM jobs`), "clear jobs failed")
}

func (s *Store) queryJobs(query string, args ...any) ([]Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs failed")
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job failed")
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var schedule, start, end, created sql.NullString
	err := row.Scan(&j.ID, &j.Address, &j.Type, &j.TargetVersion, &schedule,
		&start, &end, &j.Status, &j.LogPath, &created)
	if err != nil {
		return nil, err
	}
	j.ScheduleTime = parseTime(schedule)
	j.StartTime = parseTime(start)
	j.EndTime = parseTime(end)
	if t := parseTime(created); t != nil {
		j.CreatedAt = *t
	}
	return &j, nil
}

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// JobLogs manages one append-only log file per job id. The files are the
// operator-facing audit trail, separate from the process log.
type JobLogs struct {
	dir string
}

// NewJobLogs ensures dir exists and returns a log manager rooted there.
func NewJobLogs(dir string) (*JobLogs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create job log directory %s failed", dir)
	}
	return &JobLogs{dir: dir}, nil
}

// Path returns the log file path for a job id.
func (l *JobLogs) Path(jobID string) string {
	return filepath.Join(l.dir, jobID+".log")
}

// Create initializes the log file for a job and returns its path.
func (l *JobLogs) Create(jobID string) (string, error) {
	path := l.Path(jobID)
	header := fmt.Sprintf("Job Log Initialized: %s\n%s\n",
		time.Now().Format(time.RFC3339), strings.Repeat("-", 40))
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		return "", errors.Wrapf(err, "create job log %s failed", path)
	}
	return path, nil
}

// Append adds one timestamped line to the job's log file.
func (l *JobLogs) Append(jobID, message string) error {
	f, err := os.OpenFile(l.Path(jobID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open job log for %s failed", jobID)
	}
	defer f.Close()
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), message)
	if _, err := f.WriteString(line); err != nil {
		return errors.Wrapf(err, "append job log for %s failed", jobID)
	}
	return nil
}

// ReadAll returns the full log text for a job id.
func (l *JobLogs) ReadAll(jobID string) (string, error) {
	data, err := os.ReadFile(l.Path(jobID))
	if err != nil {
		return "", errors.Wrapf(err, "read job log for %s failed", jobID)
	}
	return string(data), nil
}

// Clear removes every job log file.
func (l *JobLogs) Clear() error {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.log"))
	if err != nil {
		return errors.Wrap(err, "glob job logs failed")
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "remove job log %s failed", path)
		}
	}
	return nil
}

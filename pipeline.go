package upgrademgr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/iosxe-tools/upgrademgr/internal/store"
)

// Pipeline executes image staging and upgrade jobs against devices. It owns
// every status transition for the job it is running; no other component
// touches a job once the pipeline holds it.
type Pipeline struct {
	Store   *store.Store
	Gateway *Gateway
	Logs    *store.JobLogs
	Events  *EventSink
	// RepoBaseURL is the HTTP root devices copy images from, e.g.
	// "http://10.0.0.5:8080/repo".
	RepoBaseURL string
}

// NewJob creates a job record plus its log file. A nil scheduleTime makes an
// immediately-runnable Pending job; otherwise the job waits as Scheduled.
func (p *Pipeline) NewJob(addr, jobType, targetVersion string, scheduleTime *time.Time) (*store.Job, error) {
	job := &store.Job{
		ID:            uuid.NewString(),
		Address:       addr,
		Type:          jobType,
		TargetVersion: targetVersion,
		ScheduleTime:  scheduleTime,
		Status:        StatusPending,
	}
	if scheduleTime != nil {
		job.Status = StatusScheduled
	}
	logPath, err := p.Logs.Create(job.ID)
	if err != nil {
		return nil, err
	}
	job.LogPath = logPath
	if err := p.Store.CreateJob(*job); err != nil {
		return nil, errors.Wrap(err, "create job failed")
	}
	return job, nil
}

// logf appends one line to the job's audit trail: log file, event sink and
// process log.
func (p *Pipeline) logf(jobID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err := p.Logs.Append(jobID, msg); err != nil {
		log.Warn().Str("job_id", jobID).Err(err).Msg("append job log failed")
	}
	if p.Events != nil {
		p.Events.Publish(jobID, msg)
	}
	log.Info().Str("job_id", jobID).Msg(msg)
}

// sink returns a raw-output forwarder for interactive commands.
func (p *Pipeline) sink(jobID string) func(string) {
	return func(chunk string) {
		chunk = strings.TrimRight(chunk, "\r\n")
		if strings.TrimSpace(chunk) == "" {
			return
		}
		if err := p.Logs.Append(jobID, chunk); err != nil {
			log.Warn().Str("job_id", jobID).Err(err).Msg("append job log failed")
		}
		if p.Events != nil {
			p.Events.Publish(jobID, chunk)
		}
	}
}

func (p *Pipeline) finish(jobID, status string) {
	if err := p.Store.FinishJob(jobID, status); err != nil {
		log.Error().Str("job_id", jobID).Err(err).Msg("finish job failed")
	}
}

// begin flips the job to Running and installs the phase-boundary recovery:
// a panic anywhere in the phase lands the job in Failed, never stuck in
// Running.
func (p *Pipeline) begin(jobID string) func() {
	if err := p.Store.MarkJobStarted(jobID); err != nil {
		log.Error().Str("job_id", jobID).Err(err).Msg("mark job started failed")
	}
	return func() {
		if r := recover(); r != nil {
			p.logf(jobID, "CRITICAL ERROR: %v", r)
			p.finish(jobID, StatusFailed)
		}
	}
}

// cancelled is the cooperative cancellation check between phases.
func (p *Pipeline) cancelled(jobID string) bool {
	job, err := p.Store.GetJob(jobID)
	if err != nil || job == nil {
		return false
	}
	return job.Status == StatusCancelled
}

// filesystemFor resolves the staging filesystem from the device's recorded
// role, defaulting to flash: for unknown devices.
func (p *Pipeline) filesystemFor(addr string) string {
	dev, err := p.Store.GetDevice(addr)
	if err != nil || dev == nil {
		return "flash:"
	}
	return FilesystemForRole(dev.Role)
}

// ExecuteCopy stages an image onto the device over HTTP and, on success,
// chains directly into verification under the same job.
func (p *Pipeline) ExecuteCopy(ctx context.Context, jobID, addr, image string) {
	defer p.begin(jobID)()
	p.logf(jobID, "Starting image copy for %s", addr)

	sess, err := p.Gateway.OpenCLI(ctx, addr)
	if err != nil {
		p.logf(jobID, "ERROR: SSH connection failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}

	fs := p.filesystemFor(addr)
	httpURL := fmt.Sprintf("%s/%s", strings.TrimRight(p.RepoBaseURL, "/"), image)

	p.logf(jobID, "Checking if file %s already exists...", image)
	if exists, err := sess.FileExists(fs, image); err == nil && exists {
		p.logf(jobID, "File %s already exists on %s. Overwriting...", image, fs)
	}

	p.logf(jobID, "Initiating copy from %s...", httpURL)
	if _, err := sess.CopyFromHTTP(httpURL, fs, p.sink(jobID)); err != nil {
		p.logf(jobID, "ERROR: Copy failed: %v", err)
		p.finish(jobID, StatusFailed)
		sess.Close()
		return
	}
	p.logf(jobID, "Copy successful!")

	p.logf(jobID, "Verifying file presence...")
	exists, err := sess.FileExists(fs, image)
	sess.Close()
	if err != nil || !exists {
		p.logf(jobID, "ERROR: File copy reported success but file not found!")
		p.finish(jobID, StatusFailed)
		return
	}
	p.logf(jobID, "File confirmed present on filesystem.")
	if err := p.Store.SetImageCopied(addr, CopyStatusYes); err != nil {
		log.Error().Str("addr", addr).Err(err).Msg("record copy state failed")
	}
	if err := p.Store.SetImageVerified(addr, VerifyStatusNo); err != nil {
		log.Error().Str("addr", addr).Err(err).Msg("reset verify state failed")
	}

	if p.cancelled(jobID) {
		p.logf(jobID, "Job cancelled before verification phase")
		return
	}
	p.logf(jobID, "Starting verification phase...")
	p.executeVerify(ctx, jobID, addr, image, fs)
}

// ExecuteVerify checks the staged image against the repository hash.
func (p *Pipeline) ExecuteVerify(ctx context.Context, jobID, addr, image string) {
	defer p.begin(jobID)()
	p.executeVerify(ctx, jobID, addr, image, p.filesystemFor(addr))
}

func (p *Pipeline) executeVerify(ctx context.Context, jobID, addr, image, fs string) {
	p.logf(jobID, "Starting image verification for %s", addr)

	sess, err := p.Gateway.OpenCLI(ctx, addr)
	if err != nil {
		p.logf(jobID, "ERROR: SSH connection failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}
	defer sess.Close()

	p.logf(jobID, "Verifying %s on %s...", image, fs)
	exists, err := sess.FileExists(fs, image)
	if err != nil || !exists {
		p.logf(jobID, "ERROR: File %s not found on %s", image, fs)
		p.Store.SetImageCopied(addr, CopyStatusNo)
		p.Store.SetImageVerified(addr, VerifyStatusFailed)
		p.finish(jobID, StatusFailed)
		return
	}

	expected, ok, err := p.Store.GetImageHash(image)
	if err != nil {
		p.logf(jobID, "ERROR: repository lookup failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}
	if !ok {
		// Presence confirmed, integrity unverifiable. The job still counts
		// as successful; the inventory records the soft state.
		p.logf(jobID, "WARNING: No hash found in repository for this image. Cannot verify integrity.")
		p.Store.SetImageVerified(addr, VerifyStatusNoHash)
		p.finish(jobID, StatusSuccess)
		return
	}

	p.logf(jobID, "Expected MD5: %s", expected)
	p.logf(jobID, "Calculating remote MD5 hash (this may take a minute)...")
	actual, err := sess.MD5Sum(fs, image, p.sink(jobID))
	if err != nil {
		p.logf(jobID, "Verification Failed: Could not calculate hash: %v", err)
		p.Store.SetImageVerified(addr, VerifyStatusFailed)
		p.finish(jobID, StatusFailed)
		return
	}
	p.logf(jobID, "Actual MD5:   %s", actual)

	if !strings.EqualFold(actual, expected) {
		p.logf(jobID, "Verification Failed: Hash mismatch")
		p.Store.SetImageVerified(addr, VerifyStatusFailed)
		p.finish(jobID, StatusFailed)
		return
	}
	p.logf(jobID, "Verification successful! Hashes match.")
	p.Store.SetImageVerified(addr, VerifyStatusYes)
	p.Store.SetImageCopied(addr, CopyStatusYes)
	p.finish(jobID, StatusSuccess)
}

// ExecuteUpgrade runs the install phase: presence fail-fast, best-effort
// config save, then the one-shot add/activate/commit command. A dropped
// session with reload text in the transcript is the expected success path.
func (p *Pipeline) ExecuteUpgrade(ctx context.Context, jobID, addr, image string) {
	defer p.begin(jobID)()
	p.logf(jobID, "Starting upgrade for %s", addr)

	fs := p.filesystemFor(addr)
	p.logf(jobID, "Filesystem: %s", fs)

	sess, err := p.Gateway.OpenCLI(ctx, addr)
	if err != nil {
		p.logf(jobID, "ERROR: SSH connection failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}
	defer sess.Close()
	p.logf(jobID, "SSH connection established")

	p.logf(jobID, "Verifying %s exists on %s...", image, fs)
	exists, err := sess.FileExists(fs, image)
	if err != nil || !exists {
		p.logf(jobID, "ERROR: Image file %s not found on %s. Please 'Copy Image' first.", image, fs)
		p.finish(jobID, StatusFailed)
		return
	}
	p.logf(jobID, "Image verification successful.")

	// An unsaved config makes the install command abort with "System
	// configuration has been modified"; saving is best-effort.
	p.logf(jobID, "Saving system configuration...")
	if err := sess.SaveConfig(); err != nil {
		p.logf(jobID, "Warning: Failed to save configuration. Upgrade might fail if config is modified.")
	} else {
		p.logf(jobID, "Configuration saved successfully.")
	}

	p.logf(jobID, "Executing: install add file %s%s activate commit prompt-level none", fs, image)
	outcome, err := sess.Install(fs, image, p.sink(jobID))
	if err != nil {
		p.logf(jobID, "ERROR: Install command failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}
	if outcome.Reloading {
		p.logf(jobID, "Device is reloading as expected. Connection dropped.")
		p.logf(jobID, "Upgrade initiated successfully.")
	} else {
		p.logf(jobID, "Install command completed successfully")
	}
	p.finish(jobID, StatusSuccess)
	p.logf(jobID, "Upgrade process completed")
}

// ExecuteRemoveInactive cleans unused package files from the device.
func (p *Pipeline) ExecuteRemoveInactive(ctx context.Context, jobID, addr string) {
	defer p.begin(jobID)()
	p.logf(jobID, "Starting install remove inactive for %s", addr)

	sess, err := p.Gateway.OpenCLI(ctx, addr)
	if err != nil {
		p.logf(jobID, "ERROR: SSH connection failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}
	defer sess.Close()

	if _, err := sess.RemoveInactive(p.sink(jobID)); err != nil {
		p.logf(jobID, "ERROR: install remove inactive failed: %v", err)
		p.finish(jobID, StatusFailed)
		return
	}
	p.logf(jobID, "Inactive packages removed")
	p.finish(jobID, StatusSuccess)
}

// Bulk creates one job per device, then runs them concurrently and waits for
// every worker before returning the ids in input order. Jobs are created up
// front: a creation failure returns before any worker has started, so the
// caller can release shared resources immediately. Jobs created before the
// failure are marked Failed without running.
func (p *Pipeline) Bulk(ctx context.Context, addrs []string, jobType string,
	run func(ctx context.Context, jobID, addr string)) ([]string, error) {

	jobs := make([]*store.Job, 0, len(addrs))
	for _, addr := range addrs {
		job, err := p.NewJob(addr, jobType, "", nil)
		if err != nil {
			for _, j := range jobs {
				p.logf(j.ID, "ERROR: bulk job creation failed: %v", err)
				p.finish(j.ID, StatusFailed)
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}

	jobIDs := make([]string, 0, len(jobs))
	sg := NewSafeGroup(ctx)
	for i, job := range jobs {
		jobIDs = append(jobIDs, job.ID)
		jobID, jobAddr := job.ID, addrs[i]
		sg.GoSafe("job "+jobID, func(ctx context.Context) error {
			run(ctx, jobID, jobAddr)
			return nil
		})
	}
	return jobIDs, sg.Wait()
}

// CancelJob labels a Pending or Scheduled job Cancelled. In-flight work is
// not interrupted; the pipeline checks the label between phases.
func (p *Pipeline) CancelJob(jobID string) error {
	job, err := p.Store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Errorf("job %s not found", jobID)
	}
	switch job.Status {
	case StatusPending, StatusScheduled, StatusRunning:
		return p.Store.UpdateJobStatus(jobID, StatusCancelled)
	default:
		return errors.Errorf("job %s is %s and cannot be cancelled", jobID, job.Status)
	}
}

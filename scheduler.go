package upgrademgr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/iosxe-tools/upgrademgr/internal/config"
	"github.com/iosxe-tools/upgrademgr/internal/store"
)

// Env overrides for scheduler timing, mainly for test rigs.
const (
	EnvSweepInterval = "UPGRADEMGR_SWEEP_INTERVAL"
	EnvStalenessMax  = "UPGRADEMGR_STALENESS_MAX"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultStalenessMax  = time.Hour
)

// Scheduler is the single periodic task that dispatches due Scheduled jobs
// into the pipeline. It only reads and flips job status; it never blocks on
// device I/O itself — dispatched jobs run on their own goroutines.
type Scheduler struct {
	Store    *store.Store
	Pipeline *Pipeline

	SweepInterval time.Duration
	// StalenessMax bounds how late a scheduled job may start. A job observed
	// more than this past its schedule time is marked Missed and never run;
	// an arbitrarily delayed upgrade is worse than a skipped one.
	StalenessMax time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// NewScheduler builds a scheduler with env-tunable timing.
func NewScheduler(db *store.Store, pipeline *Pipeline) *Scheduler {
	return &Scheduler{
		Store:         db,
		Pipeline:      pipeline,
		SweepInterval: config.Duration(EnvSweepInterval, defaultSweepInterval),
		StalenessMax:  config.Duration(EnvStalenessMax, defaultStalenessMax),
		now:           time.Now,
	}
}

// Run sweeps until the context is cancelled. The first sweep happens
// immediately instead of waiting out the first tick.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.SweepInterval).Msg("scheduler started")

	if err := s.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler sweep failed")
	}

	ticker := time.NewTicker(s.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler sweep failed")
			}
		}
	}
}

// Sweep processes every Scheduled job once: stale jobs flip to Missed, due
// jobs are claimed and dispatched, future jobs are left alone. The claim is a
// conditional status flip, so a job is dispatched at most once even if two
// sweeps observe it.
func (s *Scheduler) Sweep(ctx context.Context) error {
	jobs, err := s.Store.ScheduledJobs()
	if err != nil {
		return errors.Wrap(err, "load scheduled jobs failed")
	}
	now := s.now()

	for _, job := range jobs {
		if job.ScheduleTime == nil {
			continue
		}
		due := *job.ScheduleTime
		if due.After(now) {
			continue
		}

		if now.Sub(due) > s.StalenessMax {
			claimed, err := s.Store.ClaimScheduledJob(job.ID, StatusMissed)
			if err != nil {
				log.Error().Str("job_id", job.ID).Err(err).Msg("mark job missed failed")
				continue
			}
			if claimed {
				log.Warn().
					Str("job_id", job.ID).
					Str("addr", job.Address).
					Time("due", due).
					Msg("scheduled job overdue past staleness limit, marked missed")
			}
			continue
		}

		s.dispatch(ctx, job)
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, job store.Job) {
	// The target image comes from the device record at dispatch time, not
	// from the job: operators may retarget a device between scheduling and
	// execution.
	dev, err := s.Store.GetDevice(job.Address)
	if err != nil {
		log.Error().Str("job_id", job.ID).Err(err).Msg("load device for scheduled job failed")
		return
	}
	if dev == nil || dev.TargetImage == nil || *dev.TargetImage == "" {
		log.Error().Str("job_id", job.ID).Str("addr", job.Address).
			Msg("no target image for scheduled job")
		if err := s.Store.FinishJob(job.ID, StatusFailed); err != nil {
			log.Error().Str("job_id", job.ID).Err(err).Msg("fail scheduled job failed")
		}
		return
	}
	image := *dev.TargetImage

	claimed, err := s.Store.ClaimScheduledJob(job.ID, StatusRunning)
	if err != nil {
		log.Error().Str("job_id", job.ID).Err(err).Msg("claim scheduled job failed")
		return
	}
	if !claimed {
		// Another sweep or a manual retry won the claim.
		return
	}

	log.Info().
		Str("job_id", job.ID).
		Str("addr", job.Address).
		Str("image", image).
		Time("due", *job.ScheduleTime).
		Msg("dispatching scheduled upgrade")

	go s.Pipeline.ExecuteUpgrade(ctx, job.ID, job.Address, image)
}

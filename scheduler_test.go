package upgrademgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(p *Pipeline, now time.Time) *Scheduler {
	return &Scheduler{
		Store:         p.Store,
		Pipeline:      p,
		SweepInterval: defaultSweepInterval,
		StalenessMax:  defaultStalenessMax,
		now:           func() time.Time { return now },
	}
}

func TestSweepMarksStaleJobsMissed(t *testing.T) {
	cliSess := cliFixture()
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)
	require.NoError(t, p.Store.SetTargetImage("10.10.20.1", testImage))

	now := time.Now()
	due := now.Add(-2 * time.Hour)
	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", &due)
	require.NoError(t, err)

	s := newTestScheduler(p, now)
	require.NoError(t, s.Sweep(context.Background()))

	require.Equal(t, StatusMissed, jobStatus(t, p.Store, job.ID))
	require.Zero(t, cliSess.installCalls)
}

func TestSweepLeavesFutureJobsAlone(t *testing.T) {
	cliSess := cliFixture()
	p := newTestPipeline(t, cliSess)

	now := time.Now()
	due := now.Add(30 * time.Minute)
	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", &due)
	require.NoError(t, err)

	s := newTestScheduler(p, now)
	require.NoError(t, s.Sweep(context.Background()))

	require.Equal(t, StatusScheduled, jobStatus(t, p.Store, job.ID))
	require.Zero(t, cliSess.installCalls)
}

func TestSweepDispatchesDueJob(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{testImage: true}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)
	require.NoError(t, p.Store.SetTargetImage("10.10.20.1", testImage))

	now := time.Now()
	due := now.Add(-5 * time.Minute)
	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", &due)
	require.NoError(t, err)

	s := newTestScheduler(p, now)
	require.NoError(t, s.Sweep(context.Background()))

	// Dispatch runs the upgrade on its own goroutine.
	require.Eventually(t, func() bool {
		j, err := p.Store.GetJob(job.ID)
		return err == nil && j != nil && j.Status == StatusSuccess
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, cliSess.installCalls)

	// A later sweep finds nothing left to claim.
	require.NoError(t, s.Sweep(context.Background()))
	require.Equal(t, 1, cliSess.installCalls)
}

func TestSweepFailsDueJobWithoutTargetImage(t *testing.T) {
	cliSess := cliFixture()
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	now := time.Now()
	due := now.Add(-5 * time.Minute)
	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", &due)
	require.NoError(t, err)

	s := newTestScheduler(p, now)
	require.NoError(t, s.Sweep(context.Background()))

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
	require.Zero(t, cliSess.installCalls)
}

func TestSweepFailsDueJobForUnknownDevice(t *testing.T) {
	cliSess := cliFixture()
	p := newTestPipeline(t, cliSess)

	now := time.Now()
	due := now.Add(-time.Minute)
	job, err := p.NewJob("10.10.99.9", JobUpgrade, "17.9.4a", &due)
	require.NoError(t, err)

	s := newTestScheduler(p, now)
	require.NoError(t, s.Sweep(context.Background()))

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
}

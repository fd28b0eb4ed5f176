package upgrademgr

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iosxe-tools/upgrademgr/internal/cli"
	"github.com/iosxe-tools/upgrademgr/internal/store"
)

func newTestPipeline(t *testing.T, cliSess CLISession) *Pipeline {
	t.Helper()
	gw, _ := newFakeGateway(cliSess, nil)
	return &Pipeline{
		Store:       newTestStore(t),
		Gateway:     gw,
		Logs:        newTestLogs(t),
		Events:      NewEventSink(0),
		RepoBaseURL: "http://10.0.0.5:8080/repo",
	}
}

func seedDevice(t *testing.T, db *store.Store, addr, role string) {
	t.Helper()
	require.NoError(t, db.UpsertDevice(store.Device{
		Address: addr, Role: role, Status: "Online",
		ImageCopied: CopyStatusNo, ImageVerified: VerifyStatusNo,
	}))
}

func jobStatus(t *testing.T, db *store.Store, jobID string) string {
	t.Helper()
	job, err := db.GetJob(jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job.Status
}

const testImage = "cat9k_iosxe.17.09.04a.SPA.bin"

func TestExecuteCopyChainsIntoVerify(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{testImage: true}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	job, err := p.NewJob("10.10.20.1", JobImageCopy, "", nil)
	require.NoError(t, err)
	p.ExecuteCopy(context.Background(), job.ID, "10.10.20.1", testImage)

	// No repository hash recorded: presence alone completes the job.
	require.Equal(t, StatusSuccess, jobStatus(t, p.Store, job.ID))
	require.Equal(t, []string{"http://10.0.0.5:8080/repo/" + testImage}, cliSess.copyCalls)

	dev, err := p.Store.GetDevice("10.10.20.1")
	require.NoError(t, err)
	require.Equal(t, CopyStatusYes, dev.ImageCopied)
	require.Equal(t, VerifyStatusNoHash, dev.ImageVerified)

	logText, err := p.Logs.ReadAll(job.ID)
	require.NoError(t, err)
	require.Contains(t, logText, "Copy successful!")
	require.Contains(t, logText, "No hash found in repository")
}

func TestExecuteCopyFailsWhenFileMissingAfterCopy(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	job, err := p.NewJob("10.10.20.1", JobImageCopy, "", nil)
	require.NoError(t, err)
	p.ExecuteCopy(context.Background(), job.ID, "10.10.20.1", testImage)

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
	logText, err := p.Logs.ReadAll(job.ID)
	require.NoError(t, err)
	require.Contains(t, logText, "file not found")
}

func TestExecuteVerifyHashMatch(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{testImage: true}
	cliSess.md5 = "D41D8CD98F00B204E9800998ECF8427E"
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)
	require.NoError(t, p.Store.PutImage(store.Image{
		Filename: testImage, MD5: "d41d8cd98f00b204e9800998ecf8427e",
	}))

	job, err := p.NewJob("10.10.20.1", JobImageVerify, "", nil)
	require.NoError(t, err)
	p.ExecuteVerify(context.Background(), job.ID, "10.10.20.1", testImage)

	require.Equal(t, StatusSuccess, jobStatus(t, p.Store, job.ID))
	dev, err := p.Store.GetDevice("10.10.20.1")
	require.NoError(t, err)
	require.Equal(t, VerifyStatusYes, dev.ImageVerified)
	require.Equal(t, CopyStatusYes, dev.ImageCopied)
}

func TestExecuteVerifyHashMismatch(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{testImage: true}
	cliSess.md5 = "00000000000000000000000000000000"
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)
	require.NoError(t, p.Store.PutImage(store.Image{
		Filename: testImage, MD5: "d41d8cd98f00b204e9800998ecf8427e",
	}))

	job, err := p.NewJob("10.10.20.1", JobImageVerify, "", nil)
	require.NoError(t, err)
	p.ExecuteVerify(context.Background(), job.ID, "10.10.20.1", testImage)

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
	dev, err := p.Store.GetDevice("10.10.20.1")
	require.NoError(t, err)
	require.Equal(t, VerifyStatusFailed, dev.ImageVerified)
}

func TestExecuteVerifyMissingFileResetsCopyState(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)
	require.NoError(t, p.Store.SetImageCopied("10.10.20.1", CopyStatusYes))

	job, err := p.NewJob("10.10.20.1", JobImageVerify, "", nil)
	require.NoError(t, err)
	p.ExecuteVerify(context.Background(), job.ID, "10.10.20.1", testImage)

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
	dev, err := p.Store.GetDevice("10.10.20.1")
	require.NoError(t, err)
	require.Equal(t, CopyStatusNo, dev.ImageCopied)
	require.Equal(t, VerifyStatusFailed, dev.ImageVerified)
}

func TestExecuteUpgradeFailsFastWithoutStagedImage(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", nil)
	require.NoError(t, err)
	p.ExecuteUpgrade(context.Background(), job.ID, "10.10.20.1", testImage)

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
	require.Zero(t, cliSess.installCalls)
	logText, err := p.Logs.ReadAll(job.ID)
	require.NoError(t, err)
	require.Contains(t, logText, "Please 'Copy Image' first.")
}

func TestExecuteUpgradeReloadCountsAsSuccess(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{testImage: true}
	cliSess.installOut = &cli.InstallOutcome{Success: true, Reloading: true}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", nil)
	require.NoError(t, err)
	p.ExecuteUpgrade(context.Background(), job.ID, "10.10.20.1", testImage)

	require.Equal(t, StatusSuccess, jobStatus(t, p.Store, job.ID))
	require.True(t, cliSess.savedConfig)
	require.Equal(t, 1, cliSess.installCalls)
	logText, err := p.Logs.ReadAll(job.ID)
	require.NoError(t, err)
	require.Contains(t, logText, "Device is reloading as expected.")
}

type panickyCLI struct {
	*fakeCLI
}

func (p *panickyCLI) FileExists(string, string) (bool, error) {
	panic("session state corrupted")
}

func TestExecuteUpgradePanicLandsJobInFailed(t *testing.T) {
	p := newTestPipeline(t, &panickyCLI{fakeCLI: cliFixture()})
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", nil)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		p.ExecuteUpgrade(context.Background(), job.ID, "10.10.20.1", testImage)
	})

	require.Equal(t, StatusFailed, jobStatus(t, p.Store, job.ID))
	logText, err := p.Logs.ReadAll(job.ID)
	require.NoError(t, err)
	require.Contains(t, logText, "CRITICAL ERROR")
}

func TestBulkCreatesOneJobPerDevice(t *testing.T) {
	cliSess := cliFixture()
	p := newTestPipeline(t, cliSess)
	addrs := []string{"10.10.20.1", "10.10.20.2", "10.10.20.3"}

	seen := make(chan string, len(addrs))
	jobIDs, err := p.Bulk(context.Background(), addrs, JobRemoveInactive,
		func(_ context.Context, jobID, addr string) {
			seen <- addr
			p.finish(jobID, StatusSuccess)
		})
	require.NoError(t, err)
	require.Len(t, jobIDs, len(addrs))

	close(seen)
	var ran []string
	for addr := range seen {
		ran = append(ran, addr)
	}
	sort.Strings(ran)
	require.Equal(t, addrs, ran)

	for _, id := range jobIDs {
		require.Equal(t, StatusSuccess, jobStatus(t, p.Store, id))
	}
}

func TestBulkJobCreationFailureLaunchesNoWorkers(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	logs, err := store.NewJobLogs(logDir)
	require.NoError(t, err)
	// Replace the log directory with a file so job creation fails.
	require.NoError(t, os.RemoveAll(logDir))
	require.NoError(t, os.WriteFile(logDir, []byte("blocked"), 0o644))

	gw, _ := newFakeGateway(cliFixture(), nil)
	p := &Pipeline{Store: newTestStore(t), Gateway: gw, Logs: logs, Events: NewEventSink(0)}

	ran := make(chan string, 2)
	jobIDs, err := p.Bulk(context.Background(), []string{"10.10.20.1", "10.10.20.2"},
		JobRemoveInactive, func(_ context.Context, _, addr string) { ran <- addr })
	require.Error(t, err)
	require.Empty(t, jobIDs)
	require.Empty(t, ran)

	jobs, err := p.Store.ListJobs()
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestCancelJob(t *testing.T) {
	p := newTestPipeline(t, cliFixture())

	when := time.Now().Add(time.Hour)
	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", &when)
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, job.Status)

	require.NoError(t, p.CancelJob(job.ID))
	require.Equal(t, StatusCancelled, jobStatus(t, p.Store, job.ID))

	// Terminal jobs stay put.
	err = p.CancelJob(job.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot be cancelled")
}

func TestJobEventsStreamProgress(t *testing.T) {
	cliSess := cliFixture()
	cliSess.files = map[string]bool{testImage: true}
	cliSess.installOut = &cli.InstallOutcome{Success: true}
	p := newTestPipeline(t, cliSess)
	seedDevice(t, p.Store, "10.10.20.1", RoleSwitch)

	job, err := p.NewJob("10.10.20.1", JobUpgrade, "17.9.4a", nil)
	require.NoError(t, err)
	p.ExecuteUpgrade(context.Background(), job.ID, "10.10.20.1", testImage)

	events := p.Events.JobEvents(job.ID)
	require.NotEmpty(t, events)
	var messages []string
	for _, ev := range events {
		messages = append(messages, ev.Message)
	}
	require.Contains(t, messages, "Upgrade process completed")
}

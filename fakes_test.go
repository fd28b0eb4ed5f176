package upgrademgr

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/iosxe-tools/upgrademgr/internal/cli"
	"github.com/iosxe-tools/upgrademgr/internal/config"
	"github.com/iosxe-tools/upgrademgr/internal/netconf"
	"github.com/iosxe-tools/upgrademgr/internal/store"
)

// fakeCLI is a canned CLISession. Unset fields report errors so tests fail
// loudly when a code path touches something it should not.
type fakeCLI struct {
	version    *cli.VersionInfo
	bootVar    string
	summary    string
	disk       *cli.FilesystemInfo
	freeMB     *int64
	files      map[string]bool
	rommonFlag bool
	ncState    string
	md5        string
	md5Err     error
	copyErr    error
	installOut *cli.InstallOutcome
	installErr error
	removeErr  error
	saveErr    error
	setNetErr  error

	closed       bool
	copyCalls    []string
	installCalls int
	savedConfig  bool
}

func (f *fakeCLI) VersionInfo() (*cli.VersionInfo, error) {
	if f.version == nil {
		return nil, errors.New("no version fixture")
	}
	return f.version, nil
}

func (f *fakeCLI) BootVariable() (string, error) {
	if f.bootVar == "" {
		return "Not configured", nil
	}
	return f.bootVar, nil
}

func (f *fakeCLI) InstallSummary() (string, error) { return f.summary, nil }

func (f *fakeCLI) DiskSpace(string) (*cli.FilesystemInfo, error) {
	if f.disk == nil {
		return nil, errors.New("no disk fixture")
	}
	return f.disk, nil
}

func (f *fakeCLI) FreeSpaceMB() (*int64, error) { return f.freeMB, nil }

func (f *fakeCLI) FileExists(_, filename string) (bool, error) {
	return f.files[filename], nil
}

func (f *fakeCLI) RommonVariables() (bool, string, error) { return f.rommonFlag, "", nil }

func (f *fakeCLI) NetconfState() (string, error) {
	if f.ncState == "" {
		return "Disabled", nil
	}
	return f.ncState, nil
}

func (f *fakeCLI) SetNetconf(bool) error { return f.setNetErr }
func (f *fakeCLI) SaveConfig() error {
	f.savedConfig = true
	return f.saveErr
}

func (f *fakeCLI) CopyFromHTTP(httpURL, _ string, _ func(string)) (string, error) {
	f.copyCalls = append(f.copyCalls, httpURL)
	if f.copyErr != nil {
		return "", f.copyErr
	}
	return "1234 bytes copied", nil
}

func (f *fakeCLI) MD5Sum(_, _ string, _ func(string)) (string, error) {
	return f.md5, f.md5Err
}

func (f *fakeCLI) Install(_, _ string, _ func(string)) (*cli.InstallOutcome, error) {
	f.installCalls++
	if f.installErr != nil {
		return nil, f.installErr
	}
	if f.installOut == nil {
		return &cli.InstallOutcome{Success: true}, nil
	}
	return f.installOut, nil
}

func (f *fakeCLI) RemoveInactive(func(string)) (string, error) {
	return "", f.removeErr
}

func (f *fakeCLI) Close() error {
	f.closed = true
	return nil
}

// fakeNetconf is a canned NetconfSession; hasData=false mimics a device
// without YANG support on all getters.
type fakeNetconf struct {
	hasData   bool
	hw        netconf.Hardware
	sys       netconf.SystemInfo
	fs        map[string]netconf.FilesystemInfo
	stack     []netconf.StackMember
	bootVar   string
	configReg string

	closed bool
}

func (f *fakeNetconf) Hardware() (netconf.Hardware, bool, error) {
	return f.hw, f.hasData, nil
}

func (f *fakeNetconf) SystemInfo() (netconf.SystemInfo, bool, error) {
	return f.sys, f.hasData, nil
}

func (f *fakeNetconf) FilesystemInfo(name string) (netconf.FilesystemInfo, bool, error) {
	fs, ok := f.fs[name]
	return fs, ok, nil
}

func (f *fakeNetconf) StackMembers() ([]netconf.StackMember, error) { return f.stack, nil }

func (f *fakeNetconf) BootVariable() (string, error) {
	if f.bootVar == "" {
		return "Not configured", nil
	}
	return f.bootVar, nil
}

func (f *fakeNetconf) ConfigRegister() (string, bool, error) {
	return f.configReg, f.configReg != "", nil
}

func (f *fakeNetconf) Close() error {
	f.closed = true
	return nil
}

// gatewayCounts tracks sessions opened through a fake gateway.
type gatewayCounts struct {
	cliDials     int
	netconfDials int
}

// newFakeGateway wires canned sessions behind a Gateway. A nil session makes
// the corresponding protocol fail to connect.
func newFakeGateway(cliSess CLISession, ncSess NetconfSession) (*Gateway, *gatewayCounts) {
	counts := &gatewayCounts{}
	return &Gateway{
		Creds: config.EnvCredentialSource{},
		DialCLI: func(context.Context, string, config.Credentials) (CLISession, error) {
			counts.cliDials++
			if cliSess == nil {
				return nil, errors.New("cli connect refused")
			}
			return cliSess, nil
		},
		DialNetconf: func(context.Context, string, config.Credentials) (NetconfSession, error) {
			counts.netconfDials++
			if ncSess == nil {
				return nil, errors.New("netconf connect refused")
			}
			return ncSess, nil
		},
	}, counts
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLogs(t *testing.T) *store.JobLogs {
	t.Helper()
	logs, err := store.NewJobLogs(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)
	return logs
}

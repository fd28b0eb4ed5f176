// Package upgrademgr orchestrates IOS-XE firmware upgrades across a device
// fleet: inventory discovery, upgrade readiness checks, image staging and
// verification, and scheduled install jobs with an auditable event trail.
package upgrademgr

import (
	"context"

	"github.com/pkg/errors"

	"github.com/iosxe-tools/upgrademgr/internal/cli"
	"github.com/iosxe-tools/upgrademgr/internal/config"
	"github.com/iosxe-tools/upgrademgr/internal/netconf"
)

// ErrConnect marks a failed session establishment, as opposed to an error
// from a device that answered. Callers distinguish it with errors.Is.
var ErrConnect = errors.New("device connection failed")

// CLISession is the interactive command surface the engine uses. It is
// satisfied by *cli.Channel; tests substitute canned implementations.
type CLISession interface {
	VersionInfo() (*cli.VersionInfo, error)
	BootVariable() (string, error)
	InstallSummary() (string, error)
	DiskSpace(filesystem string) (*cli.FilesystemInfo, error)
	FreeSpaceMB() (*int64, error)
	FileExists(filesystem, filename string) (bool, error)
	RommonVariables() (bool, string, error)
	NetconfState() (string, error)
	SetNetconf(enable bool) error
	SaveConfig() error
	CopyFromHTTP(httpURL, destination string, sink func(string)) (string, error)
	MD5Sum(filesystem, filename string, sink func(string)) (string, error)
	Install(filesystem, filename string, sink func(string)) (*cli.InstallOutcome, error)
	RemoveInactive(sink func(string)) (string, error)
	Close() error
}

// NetconfSession is the YANG query surface, satisfied by *netconf.Session.
type NetconfSession interface {
	Hardware() (netconf.Hardware, bool, error)
	SystemInfo() (netconf.SystemInfo, bool, error)
	FilesystemInfo(name string) (netconf.FilesystemInfo, bool, error)
	StackMembers() ([]netconf.StackMember, error)
	BootVariable() (string, error)
	ConfigRegister() (string, bool, error)
	Close() error
}

// CredentialSource supplies device credentials at dial time, so rotated
// credentials apply to the next operation without a restart.
type CredentialSource interface {
	Credentials() config.Credentials
}

// Gateway dials device sessions. The dial functions are swappable for tests.
type Gateway struct {
	Creds       CredentialSource
	DialCLI     func(ctx context.Context, addr string, creds config.Credentials) (CLISession, error)
	DialNetconf func(ctx context.Context, addr string, creds config.Credentials) (NetconfSession, error)
}

// NewGateway returns a gateway using the real SSH and NETCONF dialers with
// credentials read from the environment.
func NewGateway() *Gateway {
	return &Gateway{
		Creds: config.EnvCredentialSource{},
		DialCLI: func(ctx context.Context, addr string, creds config.Credentials) (CLISession, error) {
			return cli.Dial(ctx, addr, creds)
		},
		DialNetconf: func(ctx context.Context, addr string, creds config.Credentials) (NetconfSession, error) {
			return netconf.Dial(ctx, addr, creds)
		},
	}
}

// OpenCLI dials an interactive session with current credentials.
func (g *Gateway) OpenCLI(ctx context.Context, addr string) (CLISession, error) {
	sess, err := g.DialCLI(ctx, addr, g.Creds.Credentials())
	if err != nil {
		return nil, errors.WithMessagef(ErrConnect, "ssh to %s: %v", addr, err)
	}
	return sess, nil
}

// OpenNetconf dials a NETCONF session with current credentials.
func (g *Gateway) OpenNetconf(ctx context.Context, addr string) (NetconfSession, error) {
	sess, err := g.DialNetconf(ctx, addr, g.Creds.Credentials())
	if err != nil {
		return nil, errors.WithMessagef(ErrConnect, "netconf to %s: %v", addr, err)
	}
	return sess, nil
}

// Package cli is the interactive command channel to a device: a line-oriented
// SSH session that executes exec commands, answers interactive prompts from a
// pattern table, and streams raw output to a caller-supplied sink.
package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/iosxe-tools/upgrademgr/internal/config"
)

const (
	connectTimeout = 30 * time.Second
	sshPort        = 22
)

var passwordPrompt = regexp.MustCompile(`(?i)password:`)

// Channel is one interactive session. Commands must be serialized by the
// caller; a Channel runs one command at a time and is not shared across jobs.
type Channel struct {
	addr   string
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	out    *reader

	mu sync.Mutex
}

// Dial opens an interactive session to addr and leaves it at an enabled exec
// prompt with terminal paging disabled.
func Dial(ctx context.Context, addr string, creds config.Credentials) (*Channel, error) {
	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr, sshPort))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s failed", addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s failed", addr)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "open session to %s failed", addr)
	}
	modes := ssh.TerminalModes{ssh.ECHO: 0}
	if err := sess.RequestPty("vt100", 200, 512, modes); err != nil {
		sess.Close()
		client.Close()
		return nil, errors.Wrapf(err, "request pty on %s failed", addr)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, errors.Wrap(err, "stdin pipe failed")
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, errors.Wrap(err, "stdout pipe failed")
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, errors.Wrapf(err, "start shell on %s failed", addr)
	}

	c := &Channel{addr: addr, client: client, sess: sess, stdin: stdin, out: newReader(stdout)}
	if err := c.setup(creds); err != nil {
		c.Close()
		return nil, err
	}
	log.Debug().Str("addr", addr).Msg("cli channel established")
	return c, nil
}

// setup drains the login banner, enters enable mode when an enable password
// is configured, and disables terminal paging.
func (c *Channel) setup(creds config.Credentials) error {
	// An empty command just presses enter; the prompt marker confirms the
	// shell is interactive.
	if _, err := c.run(RunSpec{Command: "", Timeout: 15 * time.Second}); err != nil {
		return errors.Wrapf(err, "no exec prompt from %s", c.addr)
	}
	if creds.EnablePassword != "" {
		spec := RunSpec{
			Command: "enable",
			Prompts: []Prompt{{Pattern: passwordPrompt, Reply: creds.EnablePassword}},
			Timeout: 15 * time.Second,
		}
		if _, err := c.run(spec); err != nil {
			return errors.Wrapf(err, "enable mode on %s failed", c.addr)
		}
	}
	if _, err := c.run(RunSpec{Command: "terminal length 0", Timeout: 15 * time.Second}); err != nil {
		return errors.Wrapf(err, "disable paging on %s failed", c.addr)
	}
	return nil
}

// Run executes one command, honoring the prompt table and timeout, and
// returns the full transcript.
func (c *Channel) Run(spec RunSpec) (string, error) {
	return c.run(spec)
}

func (c *Channel) run(spec RunSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return streamCommand(c.out, c.stdin, spec)
}

// Close tears down the session and connection.
func (c *Channel) Close() error {
	if c.sess != nil {
		c.sess.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Addr returns the device address this channel is connected to.
func (c *Channel) Addr() string {
	return c.addr
}

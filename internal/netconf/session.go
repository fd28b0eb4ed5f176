// Package netconf is a minimal NETCONF 1.0 client over the SSH "netconf"
// subsystem: end-of-message framed RPCs against the IOS-XE YANG operational
// and native models. It covers only the queries the inventory path needs.
package netconf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/iosxe-tools/upgrademgr/internal/config"
)

const (
	connectTimeout = 30 * time.Second
	rpcTimeout     = 30 * time.Second

	// NETCONF 1.0 end-of-message delimiter.
	messageDelimiter = "]]>]]>"
)

const clientHello = `<?xml version="1.0" encoding="UTF-8"?>
<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <capabilities>
    <capability>urn:ietf:params:netconf:base:1.0</capability>
  </capabilities>
</hello>`

// Session is one NETCONF connection. RPCs are serialized; a Session is not
// shared across jobs.
type Session struct {
	addr   string
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser

	// replies carries delimiter-framed messages from the read loop, which
	// owns the output stream for the session's lifetime.
	replies chan reply
	timeout time.Duration

	mu    sync.Mutex
	msgID int
	// dead is set on the first read failure or reply timeout. The stream
	// position is unknown from then on, so every later RPC fails fast.
	dead error
}

type reply struct {
	text string
	err  error
}

// Dial opens the netconf subsystem on addr and completes the hello exchange.
// Advertising only base:1.0 keeps the server on end-of-message framing.
func Dial(ctx context.Context, addr string, creds config.Credentials) (*Session, error) {
	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr, creds.NetconfPort))
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
	if err := sess.RequestSubsystem("netconf"); err != nil {
		sess.Close()
		client.Close()
		return nil, errors.Wrapf(err, "netconf subsystem on %s failed", addr)
	}

	s := &Session{
		addr:    addr,
		client:  client,
		sess:    sess,
		stdin:   stdin,
		replies: make(chan reply, 4),
		timeout: rpcTimeout,
	}
	go s.readLoop(bufio.NewReader(stdout))
	if err := s.hello(); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "netconf hello with %s failed", addr)
	}
	log.Debug().Str("addr", addr).Msg("netconf session established")
	return s, nil
}

func (s *Session) hello() error {
	if err := s.send(clientHello); err != nil {
		return err
	}
	reply, err := s.readMessage()
	if err != nil {
		return err
	}
	if !strings.Contains(reply, "<hello") {
		return errors.New("server did not send hello")
	}
	return nil
}

// Get runs a <get> RPC with the given filter body and returns the raw
// rpc-reply XML.
func (s *Session) Get(filter string) (string, error) {
	return s.rpc(fmt.Sprintf("<get><filter>%s</filter></get>", filter))
}

// GetConfig runs a <get-config> RPC against the running datastore.
func (s *Session) GetConfig(filter string) (string, error) {
	return s.rpc(fmt.Sprintf(
		"<get-config><source><running/></source><filter>%s</filter></get-config>", filter))
}

func (s *Session) rpc(body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead != nil {
		return "", errors.Wrapf(s.dead, "session to %s unusable", s.addr)
	}
	s.msgID++
	msg := fmt.Sprintf(
		`<rpc message-id="%d" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">%s</rpc>`,
		s.msgID, body)
	if err := s.send(msg); err != nil {
		return "", err
	}
	reply, err := s.readMessage()
	if err != nil {
		return "", err
	}
	if strings.Contains(reply, "<rpc-error>") {
		return reply, errors.Errorf("rpc error from %s", s.addr)
	}
	return reply, nil
}

func (s *Session) send(msg string) error {
	if _, err := io.WriteString(s.stdin, msg+"\n"+messageDelimiter+"\n"); err != nil {
		return errors.Wrap(err, "write rpc failed")
	}
	return nil
}

// readLoop owns the output stream for the session's lifetime, splitting it
// on the end-of-message delimiter. It exits when the stream errors, which
// happens at the latest when Close tears the connection down.
func (s *Session) readLoop(r *bufio.Reader) {
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
			for {
				idx := strings.Index(b.String(), messageDelimiter)
				if idx < 0 {
					break
				}
				text := b.String()[:idx]
				rest := b.String()[idx+len(messageDelimiter):]
				b.Reset()
				b.WriteString(rest)
				s.replies <- reply{text: text}
			}
		}
		if err != nil {
			s.replies <- reply{text: b.String(), err: errors.Wrap(err, "read rpc reply failed")}
			return
		}
	}
}

// readMessage waits for the next framed message. The ssh pipes carry no
// deadline, so the wait runs under a timer; an expired timer poisons the
// session because the eventual reply would desynchronize later RPCs.
func (s *Session) readMessage() (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case res := <-s.replies:
		if res.err != nil {
			s.dead = res.err
		}
		return res.text, res.err
	case <-timer.C:
		s.dead = errors.Errorf("rpc reply from %s timed out", s.addr)
		return "", s.dead
	}
}

// Close tears down the session and connection.
func (s *Session) Close() error {
	if s.sess != nil {
		s.sess.Close()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Addr returns the device address this session is connected to.
func (s *Session) Addr() string {
	return s.addr
}

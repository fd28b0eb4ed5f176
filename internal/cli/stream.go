package cli

import (
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Prompt maps an interactive prompt pattern to the reply written when it
// appears in the output stream. A reply is written once per occurrence of the
// pattern, before reading continues.
type Prompt struct {
	Pattern *regexp.Regexp
	Reply   string
}

// RunSpec describes one interactive command execution.
type RunSpec struct {
	Command string
	Prompts []Prompt
	// Timeout bounds the whole execution. The command-prompt marker failing
	// to reappear within it is fatal for the operation, not the session.
	Timeout time.Duration
	// Sink receives raw output incrementally; may be nil.
	Sink func(string)
}

// promptMarker is the trailing character that signals the device is back at
// an exec prompt and the command has finished.
const promptMarker = "#"

// ErrCommandTimeout reports that the completion marker never reappeared.
var ErrCommandTimeout = errors.New("command timed out waiting for prompt")

// reader owns the output side of a session for its whole lifetime. One pump
// goroutine feeds chunks into a buffered channel, so a command that times out
// leaves nothing reading the stream behind the next command's back: output
// that arrives late stays queued and the session remains usable.
type reader struct {
	chunks chan []byte
	errs   chan error
	// err is sticky once the pump exits. Access is serialized by the
	// caller, the same way commands are.
	err error
}

// newReader starts the pump goroutine on r. The goroutine exits when the
// underlying stream errors, typically at session close.
func newReader(r io.Reader) *reader {
	rd := &reader{chunks: make(chan []byte, 16), errs: make(chan error, 1)}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				out := make([]byte, n)
				copy(out, buf[:n])
				rd.chunks <- out
			}
			if err != nil {
				rd.errs <- err
				return
			}
		}
	}()
	return rd
}

// streamCommand writes the command to w and consumes the session reader chunk
// by chunk until the trailing prompt marker reappears. Each chunk is scanned
// against the prompt table first, then against the completion marker. The
// full transcript is returned for post-hoc keyword scanning.
//
// The loop is a two-state machine: it alternates between answering pending
// interactive prompts and waiting for the completion marker. It is written
// against a plain writer and the session reader so it can be exercised with
// canned fixtures.
func streamCommand(rd *reader, w io.Writer, spec RunSpec) (string, error) {
	if rd.err != nil {
		return "", errors.Wrap(rd.err, "session stream already failed")
	}
	if _, err := io.WriteString(w, spec.Command+"\n"); err != nil {
		return "", errors.Wrap(err, "write command failed")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var transcript strings.Builder
	for {
		select {
		case <-deadline.C:
			return transcript.String(), ErrCommandTimeout
		case err := <-rd.errs:
			rd.err = err
			if errors.Is(err, io.EOF) {
				return transcript.String(), errors.Wrap(io.ErrUnexpectedEOF, "stream closed before prompt")
			}
			return transcript.String(), errors.Wrap(err, "read stream failed")
		case chunk := <-rd.chunks:
			text := string(chunk)
			transcript.WriteString(text)
			if spec.Sink != nil {
				spec.Sink(text)
			}
			for _, p := range spec.Prompts {
				for range p.Pattern.FindAllStringIndex(text, -1) {
					if spec.Sink != nil {
						spec.Sink(" [auto-responding]\n")
					}
					if _, err := io.WriteString(w, p.Reply+"\n"); err != nil {
						return transcript.String(), errors.Wrap(err, "write prompt reply failed")
					}
				}
			}
			if strings.HasSuffix(strings.TrimSpace(text), promptMarker) {
				return transcript.String(), nil
			}
		}
	}
}

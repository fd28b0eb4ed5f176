package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Per-operation timeouts. Copies and remote hashing run for minutes on large
// images; everything else should return within the polling window.
const (
	defaultTimeout = 90 * time.Second
	copyTimeout    = 10 * time.Minute
	hashTimeout    = 5 * time.Minute
	installTimeout = 20 * time.Minute
)

var (
	destinationPrompt = regexp.MustCompile(`Destination filename`)
	overwritePrompt   = regexp.MustCompile(`[Oo]verwrite`)
	confirmPrompt     = regexp.MustCompile(`\[y/n\]`)
)

// SaveConfig persists the running configuration to startup.
func (c *Channel) SaveConfig() error {
	spec := RunSpec{
		Command: "write memory",
		Prompts: []Prompt{{Pattern: destinationPrompt, Reply: ""}},
		Timeout: defaultTimeout,
	}
	out, err := c.Run(spec)
	if err != nil {
		return errors.Wrap(err, "save config failed")
	}
	if strings.Contains(out, "OK") || strings.Contains(out, "Building configuration") {
		return nil
	}
	// Some trains print nothing beyond the prompt; treat a clean return as saved.
	return nil
}

// SetNetconf enables or disables netconf-yang in the running configuration
// and saves it.
func (c *Channel) SetNetconf(enable bool) error {
	cmd := "netconf-yang"
	if !enable {
		cmd = "no netconf-yang"
	}
	for _, step := range []string{"configure terminal", cmd, "end"} {
		if _, err := c.Run(RunSpec{Command: step, Timeout: defaultTimeout}); err != nil {
			return errors.Wrapf(err, "config step %q failed", step)
		}
	}
	return c.SaveConfig()
}

// NetconfState reports "Enabled" or "Disabled" from the running config.
func (c *Channel) NetconfState() (string, error) {
	out, err := c.Run(RunSpec{
		Command: "show running-config | include netconf-yang",
		Timeout: defaultTimeout,
	})
	if err != nil {
		return "", errors.Wrap(err, "check netconf state failed")
	}
	if strings.Contains(out, "netconf-yang") && !strings.Contains(out, "no netconf-yang") {
		return "Enabled", nil
	}
	return "Disabled", nil
}

// RommonVariables reads the ROMMON variable set and reports whether the
// skip-startup-config flag is armed.
func (c *Channel) RommonVariables() (ignoreStartupCfg bool, raw string, err error) {
	out, err := c.Run(RunSpec{Command: "show romvar", Timeout: defaultTimeout})
	if err != nil {
		return false, "", errors.Wrap(err, "read romvar failed")
	}
	return strings.Contains(out, "SWITCH_IGNORE_STARTUP_CFG=1"), out, nil
}

// VersionInfo collects identity fields from `show version`.
func (c *Channel) VersionInfo() (*VersionInfo, error) {
	out, err := c.Run(RunSpec{Command: "show version", Timeout: defaultTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "show version failed")
	}
	return parseVersionInfo(out), nil
}

// BootVariable returns the configured boot target string, or "Not configured".
func (c *Channel) BootVariable() (string, error) {
	out, err := c.Run(RunSpec{Command: "show boot", Timeout: defaultTimeout})
	if err != nil {
		return "", errors.Wrap(err, "show boot failed")
	}
	return parseBootVariable(out), nil
}

// InstallSummary returns the raw `show install summary` listing.
func (c *Channel) InstallSummary() (string, error) {
	out, err := c.Run(RunSpec{Command: "show install summary", Timeout: defaultTimeout})
	if err != nil {
		return "", errors.Wrap(err, "show install summary failed")
	}
	return out, nil
}

// DiskSpace reads free/total bytes for the named filesystem.
func (c *Channel) DiskSpace(filesystem string) (*FilesystemInfo, error) {
	out, err := c.Run(RunSpec{Command: "dir " + filesystem, Timeout: defaultTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "dir %s failed", filesystem)
	}
	info := parseDiskSpace(filesystem, out)
	if info == nil {
		return nil, errors.Errorf("no space totals in dir %s output", filesystem)
	}
	return info, nil
}

// FreeSpaceMB returns free space on the default filesystem in megabytes, or
// nil when the listing carries no totals.
func (c *Channel) FreeSpaceMB() (*int64, error) {
	out, err := c.Run(RunSpec{Command: "dir", Timeout: defaultTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "dir failed")
	}
	info := parseDiskSpace("", out)
	if info == nil {
		return nil, nil
	}
	mb := info.AvailableBytes / (1024 * 1024)
	return &mb, nil
}

// FileExists checks whether filename is present on the filesystem.
func (c *Channel) FileExists(filesystem, filename string) (bool, error) {
	fs := strings.TrimSuffix(filesystem, ":")
	command := fmt.Sprintf("dir %s:%s", fs, filename)
	out, err := c.Run(RunSpec{Command: command, Timeout: defaultTimeout})
	if err != nil {
		return false, errors.Wrapf(err, "dir %s:%s failed", fs, filename)
	}
	return parseFileListing(command, fs, filename, out), nil
}

// CopyFromHTTP transfers a file from an HTTP source onto the device,
// accepting the destination-filename and overwrite confirmations. Output is
// streamed to sink and scanned for success/failure keywords afterwards.
func (c *Channel) CopyFromHTTP(httpURL, destination string, sink func(string)) (string, error) {
	spec := RunSpec{
		Command: fmt.Sprintf("copy %s %s", httpURL, destination),
		Prompts: []Prompt{
			{Pattern: destinationPrompt, Reply: ""},
			{Pattern: overwritePrompt, Reply: ""},
		},
		Timeout: copyTimeout,
		Sink:    sink,
	}
	out, err := c.Run(spec)
	if err != nil {
		return out, errors.Wrap(err, "copy command failed")
	}
	lower := strings.ToLower(out)
	if strings.Contains(lower, "bytes copied") || strings.Contains(lower, "checksum matched") ||
		strings.Contains(lower, "copied") {
		return out, nil
	}
	if strings.Contains(out, "%Error") || strings.Contains(out, "Error") {
		return out, errors.New("copy failed with device error")
	}
	// Some trains finish quietly; a clean prompt with no error counts as copied.
	return out, nil
}

// MD5Sum computes the remote MD5 of a staged file. Minutes-scale on large
// images, hence the long timeout.
func (c *Channel) MD5Sum(filesystem, filename string, sink func(string)) (string, error) {
	spec := RunSpec{
		Command: fmt.Sprintf("verify /md5 %s%s", filesystem, filename),
		Timeout: hashTimeout,
		Sink:    sink,
	}
	out, err := c.Run(spec)
	if err != nil {
		return "", errors.Wrap(err, "verify /md5 failed")
	}
	hash := parseMD5(out)
	if hash == "" {
		return "", errors.New("no md5 digest in verify output")
	}
	return hash, nil
}

// InstallOutcome is the result of the one-shot install command.
type InstallOutcome struct {
	Success bool
	// Reloading marks the expected session drop while the device reboots
	// onto the new image. The classification is a best-effort heuristic over
	// the captured output, not an exact signal.
	Reloading bool
	Output    string
}

var reloadIndicators = []string{
	"reloading", "system is going down",
	"initializing", "going to be restarted",
	"reload requested",
}

// Install runs `install add file ... activate commit prompt-level none` and
// classifies the outcome, treating a dropped connection plus reload text as
// success.
func (c *Channel) Install(filesystem, filename string, sink func(string)) (*InstallOutcome, error) {
	spec := RunSpec{
		Command: fmt.Sprintf("install add file %s%s activate commit prompt-level none",
			filesystem, filename),
		Timeout: installTimeout,
		Sink:    sink,
	}
	out, err := c.Run(spec)
	if err != nil {
		lower := strings.ToLower(out)
		for _, ind := range reloadIndicators {
			if strings.Contains(lower, ind) {
				return &InstallOutcome{Success: true, Reloading: true, Output: out}, nil
			}
		}
		return &InstallOutcome{Output: out}, errors.Wrap(err, "install command failed")
	}
	for _, ind := range []string{"Error", "Fail", "FAILED", "failure",
		"System configuration has been modified"} {
		if strings.Contains(out, ind) {
			return &InstallOutcome{Output: out}, errors.New("install command returned error")
		}
	}
	return &InstallOutcome{Success: true, Output: out}, nil
}

// RemoveInactive runs `install remove inactive`, confirming the [y/n] prompt.
func (c *Channel) RemoveInactive(sink func(string)) (string, error) {
	spec := RunSpec{
		Command: "install remove inactive",
		Prompts: []Prompt{{Pattern: confirmPrompt, Reply: "y"}},
		Timeout: installTimeout,
		Sink:    sink,
	}
	out, err := c.Run(spec)
	if err != nil {
		return out, errors.Wrap(err, "install remove inactive failed")
	}
	lower := strings.ToLower(out)
	for _, keyword := range []string{"% error", "failed", "failure", "invalid"} {
		if strings.Contains(lower, keyword) {
			return out, errors.New("install remove inactive output indicates failure")
		}
	}
	return out, nil
}

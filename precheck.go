package upgrademgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/iosxe-tools/upgrademgr/internal/netconf"
	"github.com/iosxe-tools/upgrademgr/internal/store"
)

// CheckResult is one graded readiness rule outcome.
type CheckResult struct {
	Name    string
	Result  string
	Message string
}

// PrecheckInput parameterizes one readiness run against a device.
type PrecheckInput struct {
	Address           string
	CurrentVersion    string
	TargetVersion     string
	Role              string
	Filesystem        string
	TargetImage       string
	TargetImageSizeMB float64
}

// PrecheckEngine runs the fixed battery of upgrade readiness rules. Every
// rule always reports, PASS included, so the operator can audit the full
// list; a failing rule never aborts the run.
type PrecheckEngine struct {
	Gateway *Gateway
}

// Run executes all rules in order and returns the graded results. Device
// sessions are opened lazily and shared across rules within the run.
func (e *PrecheckEngine) Run(ctx context.Context, in PrecheckInput) []CheckResult {
	run := &precheckRun{engine: e, ctx: ctx, in: in}
	defer run.closeSessions()

	run.checkVersionDifference()
	run.checkBootVariable()
	run.checkDiskSpace()
	run.checkRommonFlags()
	if in.TargetImage != "" {
		run.checkNPEImage()
		run.checkImagePresence()
	}
	run.checkCommitStatus()
	return run.results
}

// AllPassed reports whether no rule graded FAIL or ERROR.
func AllPassed(results []CheckResult) bool {
	for _, r := range results {
		if r.Result == CheckFail || r.Result == CheckError {
			return false
		}
	}
	return true
}

// Verdict condenses a result list to the inventory-facing status plus a
// detail string of the WARN/FAIL messages.
func Verdict(results []CheckResult) (status string, details *string) {
	status = "Pass"
	if !AllPassed(results) {
		status = "Fail"
	} else {
		for _, r := range results {
			if r.Result == CheckWarn {
				status = "Warning"
				break
			}
		}
	}
	var parts []string
	for _, r := range results {
		if r.Result == CheckFail || r.Result == CheckWarn {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Message))
		}
	}
	if len(parts) == 0 {
		return status, nil
	}
	joined := strings.Join(parts, "; ")
	return status, &joined
}

// RunAndRecord runs the battery, replaces the device's stored results, and
// syncs the inventory verdict. The Image Presence outcome doubles as ground
// truth for the staging flags: a found image marks it copied, a missing one
// clears both copy and verify flags.
func (e *PrecheckEngine) RunAndRecord(ctx context.Context, db *store.Store, in PrecheckInput) ([]CheckResult, error) {
	if err := db.ClearPrechecksFor(in.Address); err != nil {
		return nil, errors.Wrap(err, "clear previous prechecks failed")
	}
	results := e.Run(ctx, in)
	for _, r := range results {
		if err := db.AddPrecheck(store.PrecheckResult{
			Address: in.Address, Check: r.Name, Result: r.Result, Message: r.Message,
		}); err != nil {
			return results, errors.Wrap(err, "record precheck failed")
		}
		if r.Name == checkImagePresence {
			switch r.Result {
			case CheckPass:
				if err := db.SetImageCopied(in.Address, CopyStatusYes); err != nil {
					return results, err
				}
			case CheckFail:
				if err := db.SetImageCopied(in.Address, CopyStatusNo); err != nil {
					return results, err
				}
				if err := db.SetImageVerified(in.Address, VerifyStatusNo); err != nil {
					return results, err
				}
			}
		}
	}
	status, details := Verdict(results)
	if err := db.SetPrecheckVerdict(in.Address, status, details); err != nil {
		return results, errors.Wrap(err, "record precheck verdict failed")
	}
	return results, nil
}

// Rule names, stable across storage and display.
const (
	checkVersionComparison = "Version Comparison"
	checkBootVariable      = "Boot Variable Integrity"
	checkDiskSpace         = "Disk Space Thresholds"
	checkRommonFlags       = "ROMMON Flag Validation"
	checkNPEImage          = "NPE Image Detection"
	checkImagePresence     = "Image Presence"
	checkCommitStatus      = "Commit Status Check"
)

// precheckRun holds per-run session state so rules can share connections.
type precheckRun struct {
	engine  *PrecheckEngine
	ctx     context.Context
	in      PrecheckInput
	results []CheckResult

	cliSess  CLISession
	cliErr   error
	cliTried bool
	ncSess   NetconfSession
	ncErr    error
	ncTried  bool
}

func (r *precheckRun) add(name, result, message string) {
	r.results = append(r.results, CheckResult{Name: name, Result: result, Message: message})
}

func (r *precheckRun) cli() (CLISession, error) {
	if !r.cliTried {
		r.cliTried = true
		r.cliSess, r.cliErr = r.engine.Gateway.OpenCLI(r.ctx, r.in.Address)
	}
	return r.cliSess, r.cliErr
}

func (r *precheckRun) nc() (NetconfSession, error) {
	if !r.ncTried {
		r.ncTried = true
		r.ncSess, r.ncErr = r.engine.Gateway.OpenNetconf(r.ctx, r.in.Address)
	}
	return r.ncSess, r.ncErr
}

func (r *precheckRun) closeSessions() {
	if r.cliSess != nil {
		r.cliSess.Close()
	}
	if r.ncSess != nil {
		r.ncSess.Close()
	}
}

// Rule 1: target must differ from current; downgrades warn.
func (r *precheckRun) checkVersionDifference() {
	curr := ParseVersion(r.in.CurrentVersion)
	tgt := ParseVersion(r.in.TargetVersion)

	if len(curr) == 0 || len(tgt) == 0 {
		// Unparseable versions degrade to string comparison.
		if r.in.CurrentVersion == r.in.TargetVersion {
			r.add(checkVersionComparison, CheckFail, fmt.Sprintf(
				"Target version (%s) is the same as current version (%s)",
				r.in.TargetVersion, r.in.CurrentVersion))
		} else {
			r.add(checkVersionComparison, CheckPass, fmt.Sprintf(
				"Target version (%s) differs from current version (%s)",
				r.in.TargetVersion, r.in.CurrentVersion))
		}
		return
	}

	switch CompareVersions(tgt, curr) {
	case 0:
		r.add(checkVersionComparison, CheckFail, fmt.Sprintf(
			"Target version (%s) is the same as current version (%s)",
			r.in.TargetVersion, r.in.CurrentVersion))
	case -1:
		r.add(checkVersionComparison, CheckWarn, fmt.Sprintf(
			"Target version (%s) is lower than current version (%s). This will cause a downgrade. Please confirm downgrade compatibility.",
			r.in.TargetVersion, r.in.CurrentVersion))
	default:
		r.add(checkVersionComparison, CheckPass, fmt.Sprintf(
			"Target version (%s) is higher than current version (%s). Upgrade path looks valid.",
			r.in.TargetVersion, r.in.CurrentVersion))
	}
}

// Rule 2: boot system should point at packages.conf for Install Mode.
func (r *precheckRun) checkBootVariable() {
	if sess, err := r.nc(); err == nil {
		if boot, err := sess.BootVariable(); err == nil && boot != "Not configured" {
			if strings.Contains(boot, "packages.conf") {
				r.add(checkBootVariable, CheckPass,
					"Boot system correctly points to packages.conf (Install Mode)")
			} else {
				r.add(checkBootVariable, CheckWarn, fmt.Sprintf(
					"Boot system: %s. Verify Install Mode configuration.", boot))
			}
			return
		}
	}

	sess, err := r.cli()
	if err != nil {
		r.add(checkBootVariable, CheckWarn, "NETCONF and SSH unavailable for boot check")
		return
	}
	boot, err := sess.BootVariable()
	if err != nil {
		r.add(checkBootVariable, CheckError, fmt.Sprintf("Error checking boot variables: %v", err))
		return
	}
	if boot == "" || boot == "Not configured" {
		r.add(checkBootVariable, CheckWarn, "Could not retrieve boot variables via NETCONF or SSH")
		return
	}
	if strings.Contains(boot, "packages.conf") {
		r.add(checkBootVariable, CheckPass,
			"Boot system correctly points to packages.conf (Install Mode) [via SSH]")
	} else {
		r.add(checkBootVariable, CheckWarn, fmt.Sprintf(
			"Boot system: %s. Verify Install Mode configuration. [via SSH]", boot))
	}
}

// Rule 3: free space thresholds. Grading is three-band per filesystem:
// FAIL under 1GB, WARN under twice the image size (2GB when the size is
// unknown), PASS otherwise. NETCONF checks each stack member; the CLI
// fallback checks the primary filesystem.
func (r *precheckRun) checkDiskSpace() {
	if r.checkDiskSpaceNetconf() {
		return
	}

	sess, err := r.cli()
	if err != nil {
		r.add(checkDiskSpace, CheckError, "Could not connect via SSH to check disk space")
		return
	}
	info, err := sess.DiskSpace(r.in.Filesystem)
	if err != nil {
		r.add(checkDiskSpace, CheckError, "Could not retrieve filesystem information via SSH")
		return
	}
	availableGB := float64(info.AvailableBytes) / (1 << 30)
	recommendedGB := r.diskWarnFloorGB()
	switch {
	case availableGB < 1:
		r.add(checkDiskSpace, CheckFail, fmt.Sprintf(
			"%s has %.2fGB available (ERROR: <1GB)", r.in.Filesystem, availableGB))
	case availableGB < recommendedGB:
		if r.in.TargetImageSizeMB > 0 {
			r.add(checkDiskSpace, CheckWarn, fmt.Sprintf(
				"%s has %.2fGB available. Recommended: %.2fGB (2x image size)",
				r.in.Filesystem, availableGB, recommendedGB))
		} else {
			r.add(checkDiskSpace, CheckWarn, fmt.Sprintf(
				"%s has %.2fGB available. Could not verify against image size.",
				r.in.Filesystem, availableGB))
		}
	default:
		if r.in.TargetImageSizeMB > 0 {
			r.add(checkDiskSpace, CheckPass, fmt.Sprintf(
				"%s has %.2fGB available (Sufficient: > %.2fGB)",
				r.in.Filesystem, availableGB, recommendedGB))
		} else {
			r.add(checkDiskSpace, CheckPass, fmt.Sprintf(
				"%s has %.2fGB available (Image size unknown)", r.in.Filesystem, availableGB))
		}
	}
}

// diskWarnFloorGB is the free-space floor below which a filesystem grades
// WARN: twice the image size when known, 2GB otherwise. Below 1GB it grades
// FAIL regardless.
func (r *precheckRun) diskWarnFloorGB() float64 {
	if r.in.TargetImageSizeMB > 0 {
		return r.in.TargetImageSizeMB * 2 / 1024
	}
	return 2
}

func (r *precheckRun) checkDiskSpaceNetconf() bool {
	sess, err := r.nc()
	if err != nil {
		return false
	}

	type fsUsage struct {
		name        string
		availableGB float64
	}
	var usages []fsUsage

	collect := func(name string) {
		if fs, ok, err := sess.FilesystemInfo(name); err == nil && ok {
			usages = append(usages, fsUsage{name: name, availableGB: float64(fs.AvailableBytes) / (1 << 30)})
		}
	}

	if r.in.Role == RoleSwitch {
		members, err := sess.StackMembers()
		if err == nil && len(members) > 0 {
			for _, m := range members {
				collect(m.Filesystem)
			}
		} else {
			collect(r.in.Filesystem)
		}
	} else {
		collect(r.in.Filesystem)
	}
	if len(usages) == 0 {
		return false
	}

	allPass := true
	warned := false
	recommendedGB := r.diskWarnFloorGB()
	msgs := make([]string, 0, len(usages))
	for _, u := range usages {
		switch {
		case u.availableGB < 1:
			allPass = false
			msgs = append(msgs, fmt.Sprintf("%s: %.2fGB (ERROR: <1GB)", u.name, u.availableGB))
		case u.availableGB < recommendedGB:
			warned = true
			msgs = append(msgs, fmt.Sprintf("%s: %.2fGB (WARNING: <%.2fGB)",
				u.name, u.availableGB, recommendedGB))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: %.2fGB (OK)", u.name, u.availableGB))
		}
	}
	joined := strings.Join(msgs, "; ")
	switch {
	case !allPass:
		r.add(checkDiskSpace, CheckFail, joined)
	case warned:
		r.add(checkDiskSpace, CheckWarn, joined)
	default:
		r.add(checkDiskSpace, CheckPass, joined)
	}
	return true
}

// Rule 4: an armed SWITCH_IGNORE_STARTUP_CFG flag would wipe the config on
// reboot.
func (r *precheckRun) checkRommonFlags() {
	sess, err := r.cli()
	if err != nil {
		r.add(checkRommonFlags, CheckError, "Could not connect via SSH to check ROMMON variables")
		return
	}
	ignore, _, err := sess.RommonVariables()
	if err != nil {
		r.add(checkRommonFlags, CheckError, fmt.Sprintf("Error checking ROMMON flags: %v", err))
		return
	}
	if ignore {
		r.add(checkRommonFlags, CheckFail,
			"CRITICAL: SWITCH_IGNORE_STARTUP_CFG=1 detected. Device will ignore startup config on reboot!")
	} else {
		r.add(checkRommonFlags, CheckPass, "ROMMON variables OK (no ignore startup config flag)")
	}
}

// Rule 5: NPE builds lack payload encryption; flag them, never block.
func (r *precheckRun) checkNPEImage() {
	if strings.Contains(strings.ToLower(r.in.TargetImage), "npe") {
		r.add(checkNPEImage, CheckWarn, fmt.Sprintf(
			"Target image (%s) is an NPE (No Payload Encryption) image. Some features may be unavailable.",
			r.in.TargetImage))
	} else {
		r.add(checkNPEImage, CheckPass, "Target image supports full encryption features (Non-NPE)")
	}
}

// Rule 6: the target image must already be staged on the filesystem.
func (r *precheckRun) checkImagePresence() {
	sess, err := r.cli()
	if err != nil {
		r.add(checkImagePresence, CheckError, "Could not connect via SSH to verify image presence")
		return
	}
	exists, err := sess.FileExists(r.in.Filesystem, r.in.TargetImage)
	if err != nil {
		r.add(checkImagePresence, CheckError, fmt.Sprintf("Error checking image presence: %v", err))
		return
	}
	if exists {
		r.add(checkImagePresence, CheckPass, fmt.Sprintf(
			"Verified: %s exists on %s", r.in.TargetImage, r.in.Filesystem))
	} else {
		r.add(checkImagePresence, CheckFail, fmt.Sprintf(
			"Image %s NOT FOUND on %s. Please copy the image first.", r.in.TargetImage, r.in.Filesystem))
	}
}

// Rule 7: an activated-but-uncommitted image means an auto-abort timer may
// roll the device back mid-upgrade.
func (r *precheckRun) checkCommitStatus() {
	sess, err := r.cli()
	if err != nil {
		r.add(checkCommitStatus, CheckWarn, "Could not connect via SSH to verify commit status")
		return
	}
	out, err := sess.InstallSummary()
	if err != nil || out == "" {
		r.add(checkCommitStatus, CheckWarn, "Could not retrieve install summary via SSH")
		return
	}

	committed := false
	activeUncommitted := false
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "IMG") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		state := parts[1]
		if strings.Contains(state, "C") {
			committed = true
		} else if strings.Contains(state, "U") {
			activeUncommitted = true
		}
	}

	switch {
	case activeUncommitted:
		r.add(checkCommitStatus, CheckWarn,
			"Current image is ACTIVATED but NOT COMMITTED. An auto-abort timer may be running.")
	case committed:
		r.add(checkCommitStatus, CheckPass, "Current image is committed")
	case r.bundleModeSuspected():
		r.add(checkCommitStatus, CheckPass, "Skipped (Device appears to be in Bundle Mode)")
	default:
		r.add(checkCommitStatus, CheckWarn,
			"Could not verify commit status. Output may vary or install mode not active.")
	}
}

// bundleModeSuspected infers Bundle Mode from the earlier boot variable
// result: a WARN without packages.conf means the install summary is expected
// to be empty.
func (r *precheckRun) bundleModeSuspected() bool {
	for _, res := range r.results {
		if res.Name == checkBootVariable && res.Result == CheckWarn &&
			!strings.Contains(res.Message, "packages.conf") {
			return true
		}
	}
	return false
}

// FilesystemForRole re-exports the role-based filesystem convention.
func FilesystemForRole(role string) string {
	return netconf.FilesystemForRole(role)
}

// DetermineRole re-exports the part-number role classifier.
func DetermineRole(partNumber string) string {
	return netconf.DetermineRole(partNumber)
}

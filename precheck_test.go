package upgrademgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iosxe-tools/upgrademgr/internal/cli"
	"github.com/iosxe-tools/upgrademgr/internal/netconf"
	"github.com/iosxe-tools/upgrademgr/internal/store"
)

const installSummaryCommitted = ` [ R0 ] Installed Package(s) Information:
State (St): I - Inactive, U - Activated & Uncommitted,
            C - Activated & Committed, D - Deactivated & Uncommitted
--------------------------------------------------------------------------------
Type  St   Filename/Version
--------------------------------------------------------------------------------
IMG   C    17.09.04.0.290476
--------------------------------------------------------------------------------
`

func readyPrecheckFixtures() (*fakeCLI, *fakeNetconf) {
	cliSess := cliFixture()
	cliSess.summary = installSummaryCommitted
	cliSess.files = map[string]bool{"cat9k_iosxe.17.09.04a.SPA.bin": true}
	nc := fullNetconfFixture()
	return cliSess, nc
}

func resultByName(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q", name)
	return CheckResult{}
}

func readyInput() PrecheckInput {
	return PrecheckInput{
		Address:        "10.10.20.1",
		CurrentVersion: "17.6.3",
		TargetVersion:  "17.9.4a",
		Role:           RoleSwitch,
		Filesystem:     "flash:",
		TargetImage:    "cat9k_iosxe.17.09.04a.SPA.bin",
	}
}

func TestPrecheckAllRulesPass(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	results := engine.Run(context.Background(), readyInput())
	require.Len(t, results, 7)
	require.True(t, AllPassed(results))
	for _, name := range []string{
		"Version Comparison", "Boot Variable Integrity", "Disk Space Thresholds",
		"ROMMON Flag Validation", "NPE Image Detection", "Image Presence",
		"Commit Status Check",
	} {
		require.Equal(t, CheckPass, resultByName(t, results, name).Result, name)
	}

	status, details := Verdict(results)
	require.Equal(t, "Pass", status)
	require.Nil(t, details)
}

func TestPrecheckSameVersionFails(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	in := readyInput()
	in.TargetVersion = in.CurrentVersion
	results := engine.Run(context.Background(), in)

	require.Equal(t, CheckFail, resultByName(t, results, "Version Comparison").Result)
	require.False(t, AllPassed(results))
}

func TestPrecheckDowngradeWarns(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	in := readyInput()
	in.TargetVersion = "16.12.5"
	results := engine.Run(context.Background(), in)

	r := resultByName(t, results, "Version Comparison")
	require.Equal(t, CheckWarn, r.Result)
	require.Contains(t, r.Message, "downgrade")
	require.True(t, AllPassed(results))

	status, details := Verdict(results)
	require.Equal(t, "Warning", status)
	require.NotNil(t, details)
	require.Contains(t, *details, "Version Comparison")
}

func TestPrecheckBundleModeBootWarns(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	nc.bootVar = "flash:cat9k_iosxe.17.06.03.SPA.bin"
	cliSess.summary = "router#show install summary"
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	results := engine.Run(context.Background(), readyInput())

	require.Equal(t, CheckWarn, resultByName(t, results, "Boot Variable Integrity").Result)
	commit := resultByName(t, results, "Commit Status Check")
	require.Equal(t, CheckPass, commit.Result)
	require.Contains(t, commit.Message, "Bundle Mode")
}

func TestPrecheckStackMemberLowSpaceFails(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	nc.stack = []netconf.StackMember{
		{Number: 1, Filesystem: "flash-1:", State: "ready"},
		{Number: 2, Filesystem: "flash-2:", State: "ready"},
	}
	nc.fs["flash-1:"] = netconf.FilesystemInfo{Name: "flash-1:", AvailableBytes: 8 << 30}
	nc.fs["flash-2:"] = netconf.FilesystemInfo{Name: "flash-2:", AvailableBytes: 512 << 20}
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	results := engine.Run(context.Background(), readyInput())

	r := resultByName(t, results, "Disk Space Thresholds")
	require.Equal(t, CheckFail, r.Result)
	require.Contains(t, r.Message, "flash-2:")
	require.Contains(t, r.Message, "<1GB")
}

func TestPrecheckDiskSpaceCLIFallbackUsesImageSize(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	nc.fs = nil
	cliSess.disk = &cli.FilesystemInfo{Name: "flash:", AvailableBytes: 3 << 30}
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	in := readyInput()
	in.TargetImageSizeMB = 1200
	results := engine.Run(context.Background(), in)

	r := resultByName(t, results, "Disk Space Thresholds")
	require.Equal(t, CheckPass, r.Result)

	// 3GB free against a 2GB image is tight but not critically low.
	in.TargetImageSizeMB = 2048
	results = engine.Run(context.Background(), in)
	r = resultByName(t, results, "Disk Space Thresholds")
	require.Equal(t, CheckWarn, r.Result)
	require.Contains(t, r.Message, "2x image size")
}

func TestPrecheckDiskSpaceGradesCLI(t *testing.T) {
	cases := []struct {
		name           string
		availableBytes int64
		imageSizeMB    float64
		want           string
	}{
		{"below 1GB fails", 512 << 20, 1200, CheckFail},
		{"below 2x image size warns", 3 << 30, 2048, CheckWarn},
		{"at least 2x image size passes", 5 << 30, 2048, CheckPass},
		{"below 1GB fails without image size", 512 << 20, 0, CheckFail},
		{"below 2GB warns without image size", 1536 << 20, 0, CheckWarn},
		{"at least 2GB passes without image size", 3 << 30, 0, CheckPass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cliSess, nc := readyPrecheckFixtures()
			nc.fs = nil
			cliSess.disk = &cli.FilesystemInfo{Name: "flash:", AvailableBytes: tc.availableBytes}
			gw, _ := newFakeGateway(cliSess, nc)
			engine := &PrecheckEngine{Gateway: gw}

			in := readyInput()
			in.TargetImageSizeMB = tc.imageSizeMB
			results := engine.Run(context.Background(), in)
			require.Equal(t, tc.want, resultByName(t, results, "Disk Space Thresholds").Result)
		})
	}
}

func TestPrecheckDiskSpaceGradesNetconf(t *testing.T) {
	cases := []struct {
		name           string
		availableBytes int64
		imageSizeMB    float64
		want           string
	}{
		{"below 1GB fails", 512 << 20, 1200, CheckFail},
		{"below 2x image size warns", 3 << 30, 2048, CheckWarn},
		{"at least 2x image size passes", 8 << 30, 2048, CheckPass},
		{"below 1GB fails without image size", 512 << 20, 0, CheckFail},
		{"below 2GB warns without image size", 1536 << 20, 0, CheckWarn},
		{"at least 2GB passes without image size", 8 << 30, 0, CheckPass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cliSess, nc := readyPrecheckFixtures()
			nc.fs["flash:"] = netconf.FilesystemInfo{Name: "flash:", AvailableBytes: tc.availableBytes}
			gw, _ := newFakeGateway(cliSess, nc)
			engine := &PrecheckEngine{Gateway: gw}

			in := readyInput()
			in.TargetImageSizeMB = tc.imageSizeMB
			results := engine.Run(context.Background(), in)
			require.Equal(t, tc.want, resultByName(t, results, "Disk Space Thresholds").Result)
		})
	}
}

func TestPrecheckRommonFlagArmedFails(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	cliSess.rommonFlag = true
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	results := engine.Run(context.Background(), readyInput())

	r := resultByName(t, results, "ROMMON Flag Validation")
	require.Equal(t, CheckFail, r.Result)
	require.Contains(t, r.Message, "SWITCH_IGNORE_STARTUP_CFG")
}

func TestPrecheckNPEImageWarns(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	cliSess.files["cat9k_iosxe_npe.17.09.04a.SPA.bin"] = true
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	in := readyInput()
	in.TargetImage = "cat9k_iosxe_npe.17.09.04a.SPA.bin"
	results := engine.Run(context.Background(), in)

	require.Equal(t, CheckWarn, resultByName(t, results, "NPE Image Detection").Result)
}

func TestPrecheckSkipsImageRulesWithoutTarget(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	in := readyInput()
	in.TargetImage = ""
	results := engine.Run(context.Background(), in)
	require.Len(t, results, 5)
}

func TestPrecheckUncommittedImageWarns(t *testing.T) {
	cliSess, nc := readyPrecheckFixtures()
	cliSess.summary = "IMG   U    17.09.04.0.290476"
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	results := engine.Run(context.Background(), readyInput())

	r := resultByName(t, results, "Commit Status Check")
	require.Equal(t, CheckWarn, r.Result)
	require.Contains(t, r.Message, "NOT COMMITTED")
}

func TestRunAndRecordSyncsInventory(t *testing.T) {
	db := newTestStore(t)
	require.NoError(t, db.UpsertDevice(store.Device{
		Address: "10.10.20.1", Role: RoleSwitch, CurrentVersion: "17.6.3",
		Status: "Online", ImageCopied: CopyStatusNo, ImageVerified: VerifyStatusNo,
		LastUpdated: time.Now(),
	}))

	cliSess, nc := readyPrecheckFixtures()
	cliSess.files["cat9k_iosxe.17.09.04a.SPA.bin"] = false
	gw, _ := newFakeGateway(cliSess, nc)
	engine := &PrecheckEngine{Gateway: gw}

	results, err := engine.RunAndRecord(context.Background(), db, readyInput())
	require.NoError(t, err)
	require.False(t, AllPassed(results))

	stored, err := db.PrechecksFor("10.10.20.1")
	require.NoError(t, err)
	require.Len(t, stored, len(results))

	dev, err := db.GetDevice("10.10.20.1")
	require.NoError(t, err)
	require.NotNil(t, dev)
	require.Equal(t, CopyStatusNo, dev.ImageCopied)
	require.Equal(t, VerifyStatusNo, dev.ImageVerified)
	require.NotNil(t, dev.PrecheckStatus)
	require.Equal(t, "Fail", *dev.PrecheckStatus)
	require.NotNil(t, dev.PrecheckDetails)
	require.Contains(t, *dev.PrecheckDetails, "Image Presence")
}

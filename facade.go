package upgrademgr

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/iosxe-tools/upgrademgr/internal/netconf"
)

// DeviceSnapshot is the unified device state gathered for inventory.
type DeviceSnapshot struct {
	Address        string
	Hostname       string
	Serial         string
	Model          string
	Role           string
	Version        string
	RommonVersion  string
	ConfigRegister string
	NetconfState   string
	BootVariable   *string
	FreeSpaceMB    *int64
	ImageFile      *string
	// Via records which protocols contributed: "NETCONF", "SSH" or
	// "NETCONF+SSH".
	Via string
}

// Some platforms report a hardware revision code (V01, V02) where a software
// version belongs; such values force the CLI fallback for the version field.
var hwRevisionRe = regexp.MustCompile(`^V\d+`)

// Gather collects a device snapshot, preferring the structured query session
// and opening a CLI session only for the fields it could not fill. A device
// with full YANG support costs one session; partial support costs two. Fails
// only when neither protocol can produce a usable snapshot.
func (g *Gateway) Gather(ctx context.Context, addr string) (*DeviceSnapshot, error) {
	snap := &DeviceSnapshot{
		Address:       addr,
		Role:          RoleUnknown,
		RommonVersion: "N/A",
		NetconfState:  "Disabled",
	}

	netconfConnected := g.gatherNetconf(ctx, snap)
	if netconfConnected {
		snap.Via = "NETCONF"
		snap.NetconfState = "Enabled"
	}

	if !netconfConnected || g.snapshotIncomplete(snap) {
		cliFilled, err := g.gatherCLI(ctx, snap, netconfConnected)
		if err != nil && !netconfConnected {
			return nil, errors.Wrapf(err, "no protocol reached %s", addr)
		}
		if cliFilled {
			if netconfConnected {
				snap.Via = "NETCONF+SSH"
			} else {
				snap.Via = "SSH"
			}
		}
	}

	if snap.Hostname == "" {
		snap.Hostname = "Unknown"
	}
	if snap.Serial == "" {
		snap.Serial = "Unknown"
	}
	if snap.Model == "" {
		snap.Model = "Unknown"
	}
	if snap.Version == "" {
		snap.Version = "Unknown"
	}
	return snap, nil
}

// gatherNetconf fills what the YANG models offer. Missing data is left empty
// for the CLI pass; only a failed connection reports false.
func (g *Gateway) gatherNetconf(ctx context.Context, snap *DeviceSnapshot) bool {
	sess, err := g.OpenNetconf(ctx, snap.Address)
	if err != nil {
		log.Debug().Str("addr", snap.Address).Err(err).Msg("netconf unavailable, will use cli")
		return false
	}
	defer sess.Close()

	if hw, ok, err := sess.Hardware(); err == nil && ok {
		snap.Serial = hw.Serial
		snap.Model = hw.PartNumber
		snap.Role = netconf.DetermineRole(hw.PartNumber)
	}
	if sys, ok, err := sess.SystemInfo(); err == nil && ok {
		snap.Hostname = sys.Hostname
		snap.Version = sys.Version
	}
	if boot, err := sess.BootVariable(); err == nil && boot != "Not configured" {
		snap.BootVariable = &boot
	}
	if fs, ok, err := sess.FilesystemInfo(netconf.FilesystemForRole(snap.Role)); err == nil && ok {
		mb := fs.AvailableBytes / (1024 * 1024)
		snap.FreeSpaceMB = &mb
	}
	if reg, ok, err := sess.ConfigRegister(); err == nil && ok {
		snap.ConfigRegister = reg
	}
	return true
}

// snapshotIncomplete reports whether any required field still needs the CLI:
// version (absent or a hardware revision code), free space, boot variable,
// or config register.
func (g *Gateway) snapshotIncomplete(snap *DeviceSnapshot) bool {
	if snap.Version == "" || hwRevisionRe.MatchString(snap.Version) {
		return true
	}
	return snap.FreeSpaceMB == nil || snap.BootVariable == nil || snap.ConfigRegister == ""
}

// gatherCLI fills only the fields the structured pass left empty.
func (g *Gateway) gatherCLI(ctx context.Context, snap *DeviceSnapshot, netconfConnected bool) (bool, error) {
	sess, err := g.OpenCLI(ctx, snap.Address)
	if err != nil {
		return false, errors.Wrapf(err, "cli session to %s failed", snap.Address)
	}
	defer sess.Close()

	if info, err := sess.VersionInfo(); err == nil {
		if snap.Version == "" || hwRevisionRe.MatchString(snap.Version) {
			snap.Version = info.Version
		}
		if snap.Hostname == "" {
			snap.Hostname = info.Hostname
		}
		if snap.Serial == "" {
			snap.Serial = info.Serial
		}
		if snap.Model == "" {
			snap.Model = info.Model
		}
		if info.ImageFile != "" {
			img := info.ImageFile
			snap.ImageFile = &img
		}
		if info.RommonVersion != "" {
			snap.RommonVersion = info.RommonVersion
		}
		if snap.ConfigRegister == "" {
			snap.ConfigRegister = info.ConfigRegister
		}
	}
	if snap.BootVariable == nil {
		if boot, err := sess.BootVariable(); err == nil {
			snap.BootVariable = &boot
		}
	}
	if snap.FreeSpaceMB == nil {
		if mb, err := sess.FreeSpaceMB(); err == nil {
			snap.FreeSpaceMB = mb
		}
	}
	if !netconfConnected {
		if state, err := sess.NetconfState(); err == nil {
			snap.NetconfState = state
		}
	}
	return true, nil
}

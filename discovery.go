package upgrademgr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/iosxe-tools/upgrademgr/internal/store"
)

// Discoverer refreshes the device inventory from the network.
type Discoverer struct {
	Store   *store.Store
	Gateway *Gateway
	Catalog *ModelCatalog
}

// DiscoveryResult is the per-address outcome of a discovery sweep.
type DiscoveryResult struct {
	Address string
	OK      bool
	Via     string
	Err     error
}

// Discover gathers a snapshot for each address and upserts the inventory.
// Operator-entered fields on an existing record (target image, precheck
// verdicts, staging flags) survive the refresh; only observed device state is
// overwritten.
func (d *Discoverer) Discover(ctx context.Context, addrs []string) []DiscoveryResult {
	results := make([]DiscoveryResult, 0, len(addrs))
	for _, addr := range addrs {
		res := DiscoveryResult{Address: addr}
		snap, err := d.Gateway.Gather(ctx, addr)
		if err != nil {
			res.Err = err
			log.Warn().Str("addr", addr).Err(err).Msg("discovery failed")
			results = append(results, res)
			continue
		}
		if err := d.upsertSnapshot(snap); err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		res.OK = true
		res.Via = snap.Via
		log.Info().Str("addr", addr).Str("via", snap.Via).Msg("device discovered")
		results = append(results, res)
	}
	return results
}

func (d *Discoverer) upsertSnapshot(snap *DeviceSnapshot) error {
	existing, err := d.Store.GetDevice(snap.Address)
	if err != nil {
		return errors.Wrap(err, "load existing device failed")
	}

	supported := "No"
	if d.Catalog.Supported(snap.Model) {
		supported = "Yes"
	}
	dev := store.Device{
		Address:        snap.Address,
		Hostname:       snap.Hostname,
		Serial:         snap.Serial,
		Role:           snap.Role,
		CurrentVersion: snap.Version,
		RommonVersion:  snap.RommonVersion,
		ConfigRegister: snap.ConfigRegister,
		Status:         "Online",
		NetconfState:   snap.NetconfState,
		Model:          snap.Model,
		BootVariable:   snap.BootVariable,
		FreeSpaceMB:    snap.FreeSpaceMB,
		ImageFile:      snap.ImageFile,
		Supported:      supported,
		ImageCopied:    CopyStatusNo,
		ImageVerified:  VerifyStatusNo,
		LastUpdated:    time.Now(),
	}
	if existing != nil {
		dev.PrecheckStatus = existing.PrecheckStatus
		dev.PrecheckDetails = existing.PrecheckDetails
		dev.TargetImage = existing.TargetImage
		dev.ImageCopied = existing.ImageCopied
		dev.ImageVerified = existing.ImageVerified
	}
	return errors.Wrap(d.Store.UpsertDevice(dev), "upsert device failed")
}

// ToggleNetconf flips netconf-yang on each device over the CLI and records
// the resulting state in the inventory.
func (d *Discoverer) ToggleNetconf(ctx context.Context, addrs []string, enable bool) []DiscoveryResult {
	results := make([]DiscoveryResult, 0, len(addrs))
	for _, addr := range addrs {
		res := DiscoveryResult{Address: addr, Via: "SSH"}
		err := d.toggleOne(ctx, addr, enable)
		if err != nil {
			res.Err = err
			log.Warn().Str("addr", addr).Err(err).Msg("netconf toggle failed")
		} else {
			res.OK = true
		}
		results = append(results, res)
	}
	return results
}

func (d *Discoverer) toggleOne(ctx context.Context, addr string, enable bool) error {
	sess, err := d.Gateway.OpenCLI(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "cli session to %s failed", addr)
	}
	defer sess.Close()

	if err := sess.SetNetconf(enable); err != nil {
		return err
	}
	state := "Enabled"
	if !enable {
		state = "Disabled"
	}
	return errors.Wrap(d.Store.SetNetconfState(addr, state), "record netconf state failed")
}

// Reset clears the inventory, jobs, precheck history and job log files.
func (d *Discoverer) Reset(logs *store.JobLogs) error {
	if err := d.Store.ClearJobs(); err != nil {
		return err
	}
	if err := d.Store.ClearPrechecks(); err != nil {
		return err
	}
	if err := d.Store.ClearDevices(); err != nil {
		return err
	}
	if logs != nil {
		if err := logs.Clear(); err != nil {
			log.Warn().Err(err).Msg("clearing job logs failed")
		}
	}
	return nil
}

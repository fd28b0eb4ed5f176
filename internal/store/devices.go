package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Device is one inventory row, keyed by management address.
type Device struct {
	Address         string
	Hostname        string
	Serial          string
	Role            string
	CurrentVersion  string
	RommonVersion   string
	ConfigRegister  string
	Status          string
	NetconfState    string
	Model           string
	BootVariable    *string
	FreeSpaceMB     *int64
	ImageFile       *string
	PrecheckStatus  *string
	PrecheckDetails *string
	TargetImage     *string
	ImageCopied     string
	ImageVerified   string
	Supported       string
	LastUpdated     time.Time
}

const deviceColumns = `ip_address, hostname, serial_number, device_role, current_version,
	rommon_version, config_register, status, netconf_state, model, boot_variable,
	free_space_mb, image_file, precheck_status, precheck_details, target_image,
	image_copied, image_verified, is_supported, last_updated`

// UpsertDevice inserts or replaces the device row. Callers refreshing a
// discovered device are responsible for carrying forward operator-owned
// fields (target image, copy/verify status, pre-check verdict).
func (s *Store) UpsertDevice(d Device) error {
	if d.ImageCopied == "" {
		d.ImageCopied = CopyStatusNo
	}
	if d.ImageVerified == "" {
		d.ImageVerified = VerifyStatusNo
	}
	err := s.exec(`INSERT OR REPLACE INTO inventory (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Address, d.Hostname, d.Serial, d.Role, d.CurrentVersion,
		d.RommonVersion, d.ConfigRegister, d.Status, d.NetconfState, d.Model, d.BootVariable,
		d.FreeSpaceMB, d.ImageFile, d.PrecheckStatus, d.PrecheckDetails, d.TargetImage,
		d.ImageCopied, d.ImageVerified, d.Supported, formatTime(time.Now()))
	return errors.Wrapf(err, "upsert device %s failed", d.Address)
}

// GetDevice returns the device row for addr, or nil when absent.
func (s *Store) GetDevice(addr string) (*Device, error) {
	row := s.db.QueryRow(`SELECT `+deviceColumns+` FROM inventory WHERE ip_address = ?`, addr)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get device %s failed", addr)
	}
	return d, nil
}

// ListDevices returns every inventory row ordered by address.
func (s *Store) ListDevices() ([]Device, error) {
	rows, err := s.db.Query(`SELECT ` + deviceColumns + ` FROM inventory ORDER BY ip_address`)
	if err != nil {
		return nil, errors.Wrap(err, "list devices failed")
	}
	defer rows.Close()
	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan device failed")
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// SetTargetImage assigns a target image and resets copy/verify status, since
// any prior staging applied to a different file.
func (s *Store) SetTargetImage(addr, image string) error {
	err := s.exec(`UPDATE inventory SET target_image = ?, image_copied = 'No',
		image_verified = 'No', last_updated = ? WHERE ip_address = ?`,
		image, formatTime(time.Now()), addr)
	return errors.Wrapf(err, "set target image for %s failed", addr)
}

// SetImageCopied updates the copy status column.
func (s *Store) SetImageCopied(addr, status string) error {
	err := s.exec(`UPDATE inventory SET image_copied = ?, last_updated = ? WHERE ip_address = ?`,
		status, formatTime(time.Now()), addr)
	return errors.Wrapf(err, "set image copied for %s failed", addr)
}

// SetImageVerified updates the verify status column.
func (s *Store) SetImageVerified(addr, status string) error {
	err := s.exec(`UPDATE inventory SET image_verified = ?, last_updated = ? WHERE ip_address = ?`,
		status, formatTime(time.Now()), addr)
	return errors.Wrapf(err, "set image verified for %s failed", addr)
}

// SetNetconfState records the device's NETCONF availability.
func (s *Store) SetNetconfState(addr, state string) error {
	err := s.exec(`UPDATE inventory SET netconf_state = ?, last_updated = ? WHERE ip_address = ?`,
		state, formatTime(time.Now()), addr)
	return errors.Wrapf(err, "set netconf state for %s failed", addr)
}

// SetPrecheckVerdict stores the rolled-up pre-check status and detail text.
// A nil details clears the column; a clean run has nothing to explain.
func (s *Store) SetPrecheckVerdict(addr, status string, details *string) error {
	var detailsArg any
	if details != nil {
		detailsArg = *details
	}
	err := s.exec(`UPDATE inventory SET precheck_status = ?, precheck_details = ?, last_updated = ?
		WHERE ip_address = ?`, status, detailsArg, formatTime(time.Now()), addr)
	return errors.Wrapf(err, "set precheck verdict for %s failed", addr)
}

// ClearDevices removes every inventory row (fleet-wide reset).
func (s *Store) ClearDevices() error {
	return errors.Wrap(s.exec(`DELETE FROM inventory`), "clear inventory failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var bootVar, imageFile, pcStatus, pcDetails, targetImage, lastUpdated sql.NullString
	var freeSpace sql.NullInt64
	err := row.Scan(&d.Address, &d.Hostname, &d.Serial, &d.Role, &d.CurrentVersion,
		&d.RommonVersion, &d.ConfigRegister, &d.Status, &d.NetconfState, &d.Model, &bootVar,
		&freeSpace, &imageFile, &pcStatus, &pcDetails, &targetImage,
		&d.ImageCopied, &d.ImageVerified, &d.Supported, &lastUpdated)
	if err != nil {
		return nil, err
	}
	d.BootVariable = stringPtr(bootVar)
	d.FreeSpaceMB = int64Ptr(freeSpace)
	d.ImageFile = stringPtr(imageFile)
	d.PrecheckStatus = stringPtr(pcStatus)
	d.PrecheckDetails = stringPtr(pcDetails)
	d.TargetImage = stringPtr(targetImage)
	if t := parseTime(lastUpdated); t != nil {
		d.LastUpdated = *t
	}
	return &d, nil
}

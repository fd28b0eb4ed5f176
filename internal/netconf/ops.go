package netconf

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Hardware is the chassis identity from the device-hardware operational model.
type Hardware struct {
	Serial        string
	PartNumber    string
	HWDescription string
}

// SystemInfo is the running-config identity block.
type SystemInfo struct {
	Hostname string
	Version  string
}

// FilesystemInfo is the space summary for one partition.
type FilesystemInfo struct {
	Name           string
	AvailableBytes int64
	TotalBytes     int64
}

// StackMember is one switch in a stack, with its member-scoped filesystem.
type StackMember struct {
	Number     int
	Filesystem string
	State      string
}

const hardwareFilter = `<device-hardware-data xmlns="http://cisco.com/ns/yang/Cisco-IOS-XE-device-hardware-oper"><device-hardware><device-inventory/></device-hardware></device-hardware-data>`

// Hardware returns the chassis inventory entry. ok is false when the reply
// carries no chassis item.
func (s *Session) Hardware() (Hardware, bool, error) {
	reply, err := s.Get(hardwareFilter)
	if err != nil {
		return Hardware{}, false, errors.Wrap(err, "query device hardware failed")
	}
	return parseHardware(reply)
}

func parseHardware(reply string) (Hardware, bool, error) {
	var parsed struct {
		Items []struct {
			HWType        string `xml:"hw-type"`
			Serial        string `xml:"serial-number"`
			PartNumber    string `xml:"part-number"`
			HWDescription string `xml:"hw-description"`
		} `xml:"data>device-hardware-data>device-hardware>device-inventory"`
	}
	if err := xml.Unmarshal([]byte(reply), &parsed); err != nil {
		return Hardware{}, false, errors.Wrap(err, "decode hardware reply failed")
	}
	for _, item := range parsed.Items {
		if item.HWType == "hw-type-chassis" {
			return Hardware{
				Serial:        item.Serial,
				PartNumber:    item.PartNumber,
				HWDescription: item.HWDescription,
			}, true, nil
		}
	}
	return Hardware{}, false, nil
}

const systemFilter = `<native xmlns="http://cisco.com/ns/yang/Cisco-IOS-XE-native"><hostname/><version/></native>`

// SystemInfo returns hostname and version from the running config. ok is
// false when the reply carries neither field.
func (s *Session) SystemInfo() (SystemInfo, bool, error) {
	reply, err := s.GetConfig(systemFilter)
	if err != nil {
		return SystemInfo{}, false, errors.Wrap(err, "query system info failed")
	}
	return parseSystemInfo(reply)
}

func parseSystemInfo(reply string) (SystemInfo, bool, error) {
	var parsed struct {
		Hostname string `xml:"data>native>hostname"`
		Version  string `xml:"data>native>version"`
	}
	if err := xml.Unmarshal([]byte(reply), &parsed); err != nil {
		return SystemInfo{}, false, errors.Wrap(err, "decode system info reply failed")
	}
	if parsed.Hostname == "" && parsed.Version == "" {
		return SystemInfo{}, false, nil
	}
	return SystemInfo{Hostname: parsed.Hostname, Version: parsed.Version}, true, nil
}

const filesystemFilterFmt = `<cisco-platform-software xmlns="http://cisco.com/ns/yang/Cisco-IOS-XE-platform-software-oper"><q-filesystem><partitions><name>%s</name></partitions></q-filesystem></cisco-platform-software>`

// FilesystemInfo returns the space summary for the named partition. ok is
// false when the device reports no such partition.
func (s *Session) FilesystemInfo(name string) (FilesystemInfo, bool, error) {
	reply, err := s.Get(fmt.Sprintf(filesystemFilterFmt, name))
	if err != nil {
		return FilesystemInfo{}, false, errors.Wrapf(err, "query filesystem %s failed", name)
	}
	return parseFilesystemInfo(name, reply)
}

func parseFilesystemInfo(name, reply string) (FilesystemInfo, bool, error) {
	var parsed struct {
		Partitions []struct {
			Name      string `xml:"name"`
			Available int64  `xml:"available"`
			TotalSize int64  `xml:"total-size"`
		} `xml:"data>cisco-platform-software>q-filesystem>partitions"`
	}
	if err := xml.Unmarshal([]byte(reply), &parsed); err != nil {
		return FilesystemInfo{}, false, errors.Wrap(err, "decode filesystem reply failed")
	}
	for _, p := range parsed.Partitions {
		if p.Name == name || len(parsed.Partitions) == 1 {
			return FilesystemInfo{Name: name, AvailableBytes: p.Available, TotalBytes: p.TotalSize}, true, nil
		}
	}
	return FilesystemInfo{}, false, nil
}

const stackFilter = `<stack xmlns="http://cisco.com/ns/yang/Cisco-IOS-XE-switch"><switch/></stack>`

// StackMembers returns the stack roster for switches. Standalone devices and
// routers return an empty slice.
func (s *Session) StackMembers() ([]StackMember, error) {
	reply, err := s.Get(stackFilter)
	if err != nil {
		return nil, errors.Wrap(err, "query stack members failed")
	}
	return parseStackMembers(reply)
}

func parseStackMembers(reply string) ([]StackMember, error) {
	var parsed struct {
		Switches []struct {
			Number int    `xml:"switch-number"`
			State  string `xml:"state"`
		} `xml:"data>stack>switch"`
	}
	if err := xml.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil, errors.Wrap(err, "decode stack reply failed")
	}
	members := make([]StackMember, 0, len(parsed.Switches))
	for _, sw := range parsed.Switches {
		num := sw.Number
		if num == 0 {
			num = 1
		}
		members = append(members, StackMember{
			Number:     num,
			Filesystem: fmt.Sprintf("flash-%d:", num),
			State:      sw.State,
		})
	}
	return members, nil
}

const bootFilter = `<native xmlns="http://cisco.com/ns/yang/Cisco-IOS-XE-native"><boot><system/></boot></native>`

// BootVariable returns the configured boot system entry as a flat string, or
// "Not configured" when the running config has none.
func (s *Session) BootVariable() (string, error) {
	reply, err := s.GetConfig(bootFilter)
	if err != nil {
		return "", errors.Wrap(err, "query boot variables failed")
	}
	return parseBootVariable(reply)
}

func parseBootVariable(reply string) (string, error) {
	var parsed struct {
		System struct {
			Inner string `xml:",innerxml"`
		} `xml:"data>native>boot>system"`
	}
	if err := xml.Unmarshal([]byte(reply), &parsed); err != nil {
		return "", errors.Wrap(err, "decode boot reply failed")
	}
	inner := strings.TrimSpace(parsed.System.Inner)
	if inner == "" {
		return "Not configured", nil
	}
	return flattenXML(inner), nil
}

const configRegisterFilter = `<native xmlns="http://cisco.com/ns/yang/Cisco-IOS-XE-native"><config-register/></native>`

// ConfigRegister returns the configured register value. ok is false when the
// running config carries none.
func (s *Session) ConfigRegister() (string, bool, error) {
	reply, err := s.GetConfig(configRegisterFilter)
	if err != nil {
		return "", false, errors.Wrap(err, "query config register failed")
	}
	return parseConfigRegister(reply)
}

func parseConfigRegister(reply string) (string, bool, error) {
	var parsed struct {
		Register string `xml:"data>native>config-register"`
	}
	if err := xml.Unmarshal([]byte(reply), &parsed); err != nil {
		return "", false, errors.Wrap(err, "decode config register reply failed")
	}
	reg := strings.TrimSpace(parsed.Register)
	return reg, reg != "", nil
}

// flattenXML strips tags from a config fragment, keeping the text values.
func flattenXML(fragment string) string {
	var b strings.Builder
	dec := xml.NewDecoder(strings.NewReader("<x>" + fragment + "</x>"))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			text := strings.TrimSpace(string(cd))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(text)
		}
	}
	if b.Len() == 0 {
		return "Not configured"
	}
	return b.String()
}

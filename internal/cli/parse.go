package cli

import (
	"regexp"
	"strconv"
	"strings"
)

// VersionInfo is the identity block parsed out of `show version`.
type VersionInfo struct {
	Hostname       string
	Version        string
	Serial         string
	Model          string
	ImageFile      string
	RommonVersion  string
	ConfigRegister string
}

// FilesystemInfo is the space summary from a `dir` listing.
type FilesystemInfo struct {
	Name           string
	AvailableBytes int64
	TotalBytes     int64
}

var (
	versionRe        = regexp.MustCompile(`Version\s+(\S+?)[,\s]`)
	hostnameUptimeRe = regexp.MustCompile(`(?m)^(\S+)\s+uptime is`)
	serialRe         = regexp.MustCompile(`(?:System serial number|Processor board ID)\s*:?\s*(\S+)`)
	modelRe          = regexp.MustCompile(`(?mi)^cisco\s+(\S+)\s+\(`)
	imageFileRe      = regexp.MustCompile(`System image file is\s+"([^"]+)"`)
	rommonRe         = regexp.MustCompile(`ROM:\s*(.+)`)
	configRegRe      = regexp.MustCompile(`Configuration register is\s+(\S+)`)

	bootVarRe    = regexp.MustCompile(`(?mi)^BOOT variable\s*=\s*(\S+)`)
	bootSystemRe = regexp.MustCompile(`(?mi)^boot system\s+(\S+)`)

	dirSpaceRe = regexp.MustCompile(`(\d+)\s+bytes total\s+\((\d+)\s+bytes free\)`)
	md5Re      = regexp.MustCompile(`\b([0-9a-fA-F]{32})\b`)
)

func parseVersionInfo(out string) *VersionInfo {
	info := &VersionInfo{}
	if m := versionRe.FindStringSubmatch(out); m != nil {
		info.Version = strings.TrimSuffix(m[1], ",")
	}
	if m := hostnameUptimeRe.FindStringSubmatch(out); m != nil {
		info.Hostname = m[1]
	}
	if m := serialRe.FindStringSubmatch(out); m != nil {
		info.Serial = m[1]
	}
	if m := modelRe.FindStringSubmatch(out); m != nil {
		info.Model = m[1]
	}
	if m := imageFileRe.FindStringSubmatch(out); m != nil {
		info.ImageFile = m[1]
	}
	if m := rommonRe.FindStringSubmatch(out); m != nil {
		info.RommonVersion = strings.TrimSpace(m[1])
	}
	if m := configRegRe.FindStringSubmatch(out); m != nil {
		info.ConfigRegister = m[1]
	}
	return info
}

func parseBootVariable(out string) string {
	if m := bootVarRe.FindStringSubmatch(out); m != nil {
		v := strings.TrimSuffix(m[1], ";")
		if v != "" {
			return v
		}
	}
	if m := bootSystemRe.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return "Not configured"
}

func parseDiskSpace(name, out string) *FilesystemInfo {
	m := dirSpaceRe.FindStringSubmatch(out)
	if m == nil {
		return nil
	}
	total, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	free, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil
	}
	return &FilesystemInfo{Name: name, AvailableBytes: free, TotalBytes: total}
}

var listingErrorMarkers = []string{
	"%Error", "No such file", "not found", "Invalid input", "No files",
}

// parseFileListing decides whether a `dir fs:file` transcript shows the file.
// Error markers win; otherwise a listing line naming the file counts, skipping
// the echoed command itself.
func parseFileListing(command, fs, filename, out string) bool {
	for _, marker := range listingErrorMarkers {
		if strings.Contains(out, marker) {
			return false
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, command) {
			continue
		}
		if strings.Contains(line, filename) {
			return true
		}
	}
	return false
}

func parseMD5(out string) string {
	// Scan past the echoed command so a hash-like token in the command line
	// cannot be mistaken for the digest.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "verify /md5") && !strings.Contains(line, "=") {
			continue
		}
		if m := md5Re.FindStringSubmatch(line); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}

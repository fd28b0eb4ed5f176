package netconf

import "strings"

var (
	switchPatterns = []string{"C9", "C3850", "C3650"}
	routerPatterns = []string{"ASR", "ISR", "C8"}
)

// DetermineRole classifies a device as Switch or Router from its chassis
// part number. Switch patterns are checked first, so Catalyst 9k wins over
// the C8 router prefix.
func DetermineRole(partNumber string) string {
	pn := strings.ToUpper(partNumber)
	for _, p := range switchPatterns {
		if strings.Contains(pn, p) {
			return "Switch"
		}
	}
	for _, p := range routerPatterns {
		if strings.Contains(pn, p) {
			return "Router"
		}
	}
	return "Unknown"
}

// FilesystemForRole picks the default image filesystem for a role. Unknown
// devices default to flash:.
func FilesystemForRole(role string) string {
	if role == "Router" {
		return "bootflash:"
	}
	return "flash:"
}

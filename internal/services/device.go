package services

import "regexp"

const unknownValue = "Unknown"

type DeviceInfo struct {
	Device  string `json:"device"`
	OS      string `json:"os"`
	Browser string `json:"browser"`
}

type uaRule struct {
	pattern *regexp.Regexp
	label   string
}

var (
	tabletPattern = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk`)
	mobilePattern = regexp.MustCompile(`(?i)mobile|iphone|ipod|android|blackberry|opera mini|windows ce|palm|smartphone|iemobile`)

	// first match wins
	osRules = []uaRule{
		{regexp.MustCompile(`(?i)windows nt 10`), "Windows 10"},
		{regexp.MustCompile(`(?i)windows nt 6\.3`), "Windows 8.1"},
		{regexp.MustCompile(`(?i)windows nt 6\.2`), "Windows 8"},
		{regexp.MustCompile(`(?i)windows nt 6\.1`), "Windows 7"},
		{regexp.MustCompile(`(?i)windows nt`), "Windows"},
		{regexp.MustCompile(`(?i)macintosh|mac os x`), "macOS"},
		{regexp.MustCompile(`(?i)linux`), "Linux"},
		{regexp.MustCompile(`(?i)android`), "Android"},
		{regexp.MustCompile(`(?i)iphone|ipad|ipod`), "iOS"},
	}

	// Edge user agents also carry a Chrome token, so Edge is checked first.
	browserRules = []uaRule{
		{regexp.MustCompile(`(?i)edg`), "Edge"},
		{regexp.MustCompile(`(?i)chrome`), "Chrome"},
		{regexp.MustCompile(`(?i)firefox`), "Firefox"},
		{regexp.MustCompile(`(?i)safari`), "Safari"},
		{regexp.MustCompile(`(?i)opera`), "Opera"},
	}
)

// GetDeviceInfo classifies a raw User-Agent header. It performs no I/O.
func GetDeviceInfo(userAgent string) DeviceInfo {
	info := DeviceInfo{Device: "Desktop", OS: unknownValue, Browser: unknownValue}

	switch {
	case tabletPattern.MatchString(userAgent):
		info.Device = "Tablet"
	case mobilePattern.MatchString(userAgent):
		info.Device = "Mobile"
	}

	info.OS = firstMatch(osRules, userAgent)
	info.Browser = firstMatch(browserRules, userAgent)
	return info
}

func firstMatch(rules []uaRule, userAgent string) string {
	for _, r := range rules {
		if r.pattern.MatchString(userAgent) {
			return r.label
		}
	}
	return unknownValue
}

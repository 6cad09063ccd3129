package sdk

import "regexp"

// DeviceInfo is computed once per session and attached to every event.
type DeviceInfo struct {
	Device    string `json:"device"`
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Language  string `json:"language"`
}

var (
	mobilePattern = regexp.MustCompile(`(?i)Mobi|Android`)
	tabletPattern = regexp.MustCompile(`(?i)iPad|Tablet`)
)

// DetectDevice classifies the user agent into Desktop/Mobile/Tablet. The
// embedding host supplies the raw strings since Go code has no navigator
// object to read them from.
func DetectDevice(userAgent, platform, language string) DeviceInfo {
	device := "Desktop"
	switch {
	case mobilePattern.MatchString(userAgent):
		device = "Mobile"
	case tabletPattern.MatchString(userAgent):
		device = "Tablet"
	}
	return DeviceInfo{
		Device:    device,
		UserAgent: userAgent,
		Platform:  platform,
		Language:  language,
	}
}

func (d DeviceInfo) payload() map[string]any {
	return map[string]any{
		"device":    d.Device,
		"userAgent": d.UserAgent,
		"platform":  d.Platform,
		"language":  d.Language,
	}
}

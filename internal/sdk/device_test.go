package sdk

import "testing"

func TestDetectDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{
			name:      "desktop chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			want:      "Desktop",
		},
		{
			name:      "android phone",
			userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Chrome/120.0",
			want:      "Mobile",
		},
		{
			name:      "iphone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
			want:      "Mobile",
		},
		{
			name:      "ipad",
			userAgent: "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Safari/604.1",
			want:      "Tablet",
		},
		{
			name:      "generic tablet",
			userAgent: "Mozilla/5.0 (Linux; tablet) Safari/604.1",
			want:      "Tablet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DetectDevice(tt.userAgent, "TestPlatform", "en-US")
			if info.Device != tt.want {
				t.Errorf("Expected device %s, got %s", tt.want, info.Device)
			}
			if info.UserAgent != tt.userAgent {
				t.Errorf("Expected user agent preserved")
			}
		})
	}
}

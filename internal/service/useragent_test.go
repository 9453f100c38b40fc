package service

import (
	"strings"
	"testing"
)

func TestDescribeAgent(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		wantBrowser string // prefix
		wantOS      string // substring
		wantDevice  string
	}{
		{
			name:        "desktop chrome",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36",
			wantBrowser: "Chrome 120",
			wantOS:      "Windows",
			wantDevice:  "desktop",
		},
		{
			name:        "iphone safari",
			ua:          "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			wantBrowser: "Safari",
			wantDevice:  "mobile",
		},
		{
			name:       "crawler",
			ua:         "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			wantDevice: "bot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeAgent(tt.ua)

			if got.UserAgent != tt.ua {
				t.Errorf("UserAgent = %q, want the raw header", got.UserAgent)
			}
			if !strings.HasPrefix(got.Browser, tt.wantBrowser) {
				t.Errorf("Browser = %q, want prefix %q", got.Browser, tt.wantBrowser)
			}
			if !strings.Contains(got.OS, tt.wantOS) {
				t.Errorf("OS = %q, want it to contain %q", got.OS, tt.wantOS)
			}
			if got.Device != tt.wantDevice {
				t.Errorf("Device = %q, want %q", got.Device, tt.wantDevice)
			}
		})
	}
}

func TestDescribeAgent_Empty(t *testing.T) {
	got := describeAgent("  ")
	if got.Browser != "" || got.OS != "" || got.Device != "" {
		t.Errorf("describeAgent(blank) = %+v, want only the raw string", got)
	}
}

func TestMajorVersion(t *testing.T) {
	for in, want := range map[string]string{
		"120.0.6099.109": "120",
		"17":             "17",
		"":               "",
	} {
		if got := majorVersion(in); got != want {
			t.Errorf("majorVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

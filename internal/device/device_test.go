package device

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		wantTyp string
		wantBr  string
		wantOS  string
	}{
		{
			name:    "chrome on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			wantTyp: "desktop",
			wantBr:  "Chrome",
			wantOS:  "Windows",
		},
		{
			name:    "safari on iphone",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			wantTyp: "mobile",
			wantBr:  "Safari",
			wantOS:  "iOS",
		},
		{
			name:    "firefox on linux",
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			wantTyp: "desktop",
			wantBr:  "Firefox",
			wantOS:  "Linux",
		},
		{
			name:    "ipad",
			ua:      "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 Version/16.0 Safari/604.1",
			wantTyp: "tablet",
			wantBr:  "Safari",
			wantOS:  "iOS",
		},
		{
			name:    "empty",
			ua:      "",
			wantTyp: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.ua)
			if got.Type != tt.wantTyp {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantTyp)
			}
			if got.Browser != tt.wantBr {
				t.Errorf("Browser = %q, want %q", got.Browser, tt.wantBr)
			}
			if got.OS != tt.wantOS {
				t.Errorf("OS = %q, want %q", got.OS, tt.wantOS)
			}
		})
	}
}

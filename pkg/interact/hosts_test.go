package interact

import (
	"testing"
)

func TestHostMatcher_Allows(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		host     string
		want     bool
	}{
		{name: "no patterns allows all", patterns: nil, host: "anything.test", want: true},
		{name: "exact match", patterns: []string{"app.example.com"}, host: "app.example.com", want: true},
		{name: "exact mismatch", patterns: []string{"app.example.com"}, host: "api.example.com", want: false},
		{name: "single label wildcard", patterns: []string{"*.example.com"}, host: "api.example.com", want: true},
		{name: "single label wildcard does not cross dots", patterns: []string{"*.example.com"}, host: "a.b.example.com", want: false},
		{name: "super wildcard crosses dots", patterns: []string{"**.example.com"}, host: "a.b.example.com", want: true},
		{name: "case insensitive", patterns: []string{"APP.Example.com"}, host: "app.EXAMPLE.com", want: true},
		{name: "deny only", patterns: []string{"!admin.example.com"}, host: "app.example.com", want: true},
		{name: "deny wins over allow", patterns: []string{"*.example.com", "!admin.example.com"}, host: "admin.example.com", want: false},
		{name: "blank patterns ignored", patterns: []string{"  ", ""}, host: "x.test", want: true},
		{name: "localhost", patterns: []string{"localhost", "127.0.0.1"}, host: "127.0.0.1", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHostMatcher(tt.patterns)
			if err != nil {
				t.Fatalf("NewHostMatcher() error = %v", err)
			}
			if got := hm.Allows(tt.host); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestHostMatcher_InvalidPattern(t *testing.T) {
	if _, err := NewHostMatcher([]string{"[a-"}); err == nil {
		t.Error("expected an error for an unterminated range")
	}
}

func TestHostMatcher_AllowsURL(t *testing.T) {
	hm, err := NewHostMatcher([]string{"*.example.com"})
	if err != nil {
		t.Fatalf("NewHostMatcher() error = %v", err)
	}

	tests := []struct {
		url     string
		want    bool
		wantErr bool
	}{
		{url: "https://app.example.com:8443/path", want: true},
		{url: "https://other.test/", want: false},
		{url: "about:blank", want: true},
		{url: "/relative/path", want: true},
		{url: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := hm.AllowsURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AllowsURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("AllowsURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

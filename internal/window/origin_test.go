package window

import "testing"

func TestOriginOf(t *testing.T) {
	tests := []struct {
		raw, base, want string
		wantErr         bool
	}{
		{"https://example.test/frame.html", "", "https://example.test", false},
		{"https://Example.TEST:443/a?b=c", "", "https://example.test", false},
		{"http://example.test:8080/x", "", "http://example.test:8080", false},
		{"ws://localhost:9000/frame", "", "ws://localhost:9000", false},
		{"/frame.html", "https://host.test/app/", "https://host.test", false},
		{"frame.html", "http://host.test:3000/app/index.html", "http://host.test:3000", false},
		{"/frame.html", "", "", true},
		{"about:blank", "", "", true},
	}
	for _, tt := range tests {
		got, err := OriginOf(tt.raw, tt.base)
		if (err != nil) != tt.wantErr {
			t.Errorf("OriginOf(%q, %q) err = %v, wantErr %v", tt.raw, tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("OriginOf(%q, %q) = %q, want %q", tt.raw, tt.base, got, tt.want)
		}
	}
}

package telemetry

import "testing"

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "none"}, {-1, "unknown"}, {99, "unknown"}, {600, "unknown"}, {101, "1xx"}, {200, "2xx"}, {204, "2xx"}, {302, "3xx"}, {404, "4xx"}, {429, "4xx"}, {500, "5xx"}, {503, "5xx"},
	}
	for _, tt := range tests {
		if got := StatusLabel(tt.code); got != tt.want {
			t.Errorf("StatusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

package reminder

import (
	"testing"
	"time"
)

func TestParseRelative(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"45m", 45 * time.Minute},
		{"2h30m", 2*time.Hour + 30*time.Minute},
		{"3d", 72 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1w2d", 9 * 24 * time.Hour},
		{"1.5h", 90 * time.Minute},
		{" 10M ", 10 * time.Minute},
	}
	for _, tc := range cases {
		got, err := parseRelative(tc.in)
		if err != nil {
			t.Errorf("parseRelative(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseRelative(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseRelativeRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "5", "5x", "-5m", "h", "5m6"} {
		if _, err := parseRelative(in); err == nil {
			t.Errorf("parseRelative(%q): expected error", in)
		}
	}
}

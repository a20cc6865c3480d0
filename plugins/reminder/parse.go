package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var errBadDuration = errors.New("cannot parse duration")

// parseRelative parses human reminder offsets like "30s", "2h30m", "3d",
// "1w2d". Units: s, m, h, d, w. Plain time.ParseDuration rejects d and w,
// which are the units people actually type in reminders.
func parseRelative(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errBadDuration
	}
	var total time.Duration
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && (unicode.IsDigit(rune(s[j])) || s[j] == '.') {
			j++
		}
		if j == i || j == len(s) {
			return 0, fmt.Errorf("%w: %q", errBadDuration, s)
		}
		n, err := strconv.ParseFloat(s[i:j], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errBadDuration, s)
		}
		var unit time.Duration
		switch s[j] {
		case 's':
			unit = time.Second
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		case 'w':
			unit = 7 * 24 * time.Hour
		default:
			return 0, fmt.Errorf("%w: unknown unit %q", errBadDuration, string(s[j]))
		}
		total += time.Duration(n * float64(unit))
		i = j + 1
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: non-positive", errBadDuration)
	}
	return total, nil
}

package clip

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimestamp converts SS, M:SS, MM:SS or H:MM:SS to seconds. The last
// field may carry a fraction. Anything else is ErrInvalidTimestamp.
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	last := len(parts) - 1
	secs, err := strconv.ParseFloat(parts[last], 64)
	if err != nil || secs < 0 || !digitsOrFraction(parts[last]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	if last > 0 && secs >= 60 {
		return 0, fmt.Errorf("%w: %q: seconds out of range", ErrInvalidTimestamp, s)
	}

	total := secs
	unit := 60.0
	for i := last - 1; i >= 0; i-- {
		if !digitsOnly(parts[i]) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		// minutes are bounded when hours are present
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("%w: %q: minutes out of range", ErrInvalidTimestamp, s)
		}
		total += float64(v) * unit
		unit *= 60
	}
	return total, nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// digitsOrFraction accepts 12 and 12.5 but not 1e3, +5 or .5
func digitsOrFraction(s string) bool {
	whole, frac, found := strings.Cut(s, ".")
	if !digitsOnly(whole) {
		return false
	}
	return !found || digitsOnly(frac)
}

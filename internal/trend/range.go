package trend

import "time"

// Range is one of the supported trend query windows
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
)

// ParseRange resolves a range name. Unrecognized values fall back to the
// 24h window rather than erroring.
func ParseRange(name string) Range {
	switch Range(name) {
	case Range7d:
		return Range7d
	case Range30d:
		return Range30d
	default:
		return Range24h
	}
}

// Window returns the duration the range spans back from now
func (r Range) Window() time.Duration {
	switch r {
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// BucketSize returns the display bucket size for the range: raw points for a
// day, daily-style grouping of 7 and 30 for the longer windows
func (r Range) BucketSize() int {
	switch r {
	case Range7d:
		return 7
	case Range30d:
		return 30
	default:
		return 1
	}
}

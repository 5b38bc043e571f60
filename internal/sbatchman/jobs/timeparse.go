package jobs

import (
	"math"
	"regexp"
	"strconv"
)

var timeRegex = regexp.MustCompile(`^(?:(\d+)-)?(\d{1,2}):(\d{1,2}):(\d{1,2})$`)

// ParseTimeToSeconds converts a wall-clock limit in the HH:MM:SS or D-HH:MM:SS form used by Slurm and PBS to
// seconds. Hours must be below 24 and minutes and seconds below 60.
func ParseTimeToSeconds(value string) (uint64, error) {
	match := timeRegex.FindStringSubmatch(value)
	if match == nil {
		return 0, &ErrInvalidTimeFormat{Value: value}
	}
	var days uint64
	if match[1] != "" {
		var err error
		days, err = strconv.ParseUint(match[1], 10, 64)
		if err != nil || days > math.MaxUint64/86400-1 {
			return 0, &ErrInvalidTimeFormat{Value: value}
		}
	}
	// The regex guarantees at most two digits, so these cannot fail.
	hours, _ := strconv.ParseUint(match[2], 10, 64)
	minutes, _ := strconv.ParseUint(match[3], 10, 64)
	seconds, _ := strconv.ParseUint(match[4], 10, 64)
	if hours > 23 || minutes > 59 || seconds > 59 {
		return 0, &ErrInvalidTimeFormat{Value: value}
	}
	return days*86400 + hours*3600 + minutes*60 + seconds, nil
}

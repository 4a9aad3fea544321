package game

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeControl holds a parsed time control: the initial allotment per player
// and the per-move increment, both in milliseconds.
type TimeControl struct {
	Descriptor  string `json:"descriptor"`
	BaseMs      int64  `json:"base_ms"`
	IncrementMs int64  `json:"increment_ms"`
}

// ParseTimeControl parses a "minutes+seconds" descriptor such as "3+2"
// (3 minutes base, 2 seconds increment per move). The increment part may be
// omitted, in which case it is zero.
func ParseTimeControl(descriptor string) (TimeControl, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return TimeControl{}, fmt.Errorf("empty time control")
	}

	parts := strings.SplitN(descriptor, "+", 2)

	minutes, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || minutes <= 0 {
		return TimeControl{}, fmt.Errorf("invalid base time in %q", descriptor)
	}

	seconds := 0
	if len(parts) == 2 {
		seconds, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || seconds < 0 {
			return TimeControl{}, fmt.Errorf("invalid increment in %q", descriptor)
		}
	}

	return TimeControl{
		Descriptor:  descriptor,
		BaseMs:      int64(minutes) * 60 * 1000,
		IncrementMs: int64(seconds) * 1000,
	}, nil
}

package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

// HourRange is a local wall-clock hour range [Start, End). Start > End wraps midnight.
// HourRange 表示本地时间的小时区间 [Start, End)，Start > End 时跨越午夜。
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// HourRanges is a union of hour ranges. An empty set allows every hour.
type HourRanges []HourRange

func (r HourRange) Contains(hour int) bool {
	if r.Start < r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

func (r HourRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func (r HourRange) validate() error {
	if r.Start < 0 || r.Start > 23 {
		return fmt.Errorf("start hour %d must be within 0..23", r.Start)
	}
	if r.End < 0 || r.End > 24 {
		return fmt.Errorf("end hour %d must be within 0..24", r.End)
	}
	if r.Start == r.End {
		return fmt.Errorf("empty hour range %s", r)
	}
	return nil
}

// Allows reports whether hour falls in at least one range.
func (h HourRanges) Allows(hour int) bool {
	if len(h) == 0 {
		return true
	}
	for _, r := range h {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

func (h HourRanges) String() string {
	parts := make([]string, 0, len(h))
	for _, r := range h {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

// ParseHourRanges parses "8-21" or "8-12,22-6". Blank input yields no restriction.
// ParseHourRanges 解析形如 "8-21" 或 "8-12,22-6" 的小时区间；空字符串表示不限制。
func ParseHourRanges(raw string) (HourRanges, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ranges := make(HourRanges, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		startRaw, endRaw, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("invalid hour range %q: expected start-end", part)
		}

		start, err := strconv.Atoi(strings.TrimSpace(startRaw))
		if err != nil {
			return nil, fmt.Errorf("invalid hour range %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(endRaw))
		if err != nil {
			return nil, fmt.Errorf("invalid hour range %q: %w", part, err)
		}

		r := HourRange{Start: start, End: end}
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("invalid hour range %q: %w", part, err)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// Validate checks every range in the set.
func (h HourRanges) Validate() error {
	for _, r := range h {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

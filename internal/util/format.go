package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	sizePattern     = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(b|kb|mb|gb)$`)
	durationPattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(m|h|d)$`)
)

// ParseSize parses a byte-size spec like "100mb", "500KB" or a bare number
// of bytes.
func ParseSize(spec string) (int64, error) {
	spec = strings.TrimSpace(spec)

	if n, err := strconv.ParseInt(spec, 10, 64); err == nil && n >= 0 {
		return n, nil
	}

	m := sizePattern.FindStringSubmatch(spec)
	if m == nil {
		return 0, fmt.Errorf("invalid file size format: %s", spec)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid file size format: %s", spec)
	}

	var mult float64
	switch strings.ToLower(m[2]) {
	case "b":
		mult = 1
	case "kb":
		mult = 1 << 10
	case "mb":
		mult = 1 << 20
	case "gb":
		mult = 1 << 30
	}

	return int64(value * mult), nil
}

// ParseDuration parses a retention spec like "30m", "24h", "30d" or a bare
// number of seconds.
func ParseDuration(spec string) (int64, error) {
	spec = strings.TrimSpace(spec)

	if n, err := strconv.ParseInt(spec, 10, 64); err == nil && n >= 0 {
		return n, nil
	}

	m := durationPattern.FindStringSubmatch(spec)
	if m == nil {
		return 0, fmt.Errorf("invalid time format: %s", spec)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: %s", spec)
	}

	var mult float64
	switch strings.ToLower(m[2]) {
	case "m":
		mult = 60
	case "h":
		mult = 3600
	case "d":
		mult = 86400
	}

	return int64(value * mult), nil
}

// FormatDuration renders a number of seconds as a human-readable label.
// Negative values are clamped to zero.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := seconds / 86400
	r := seconds % 86400
	h := r / 3600
	r %= 3600
	m := r / 60
	s := r % 60
	return fmt.Sprintf("%d days, %d hours, %d minutes, %d seconds", d, h, m, s)
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

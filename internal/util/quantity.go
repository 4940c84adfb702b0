package util

import (
	"fmt"
	"math"
	"strings"
)

// ParseBytes converts a size string (e.g., "1MiB", "512K", "1048576") to bytes.
// Decimal (KB, MB, GB) and binary (KiB, MiB, GiB) suffixes are both treated
// as powers of 1024, matching how payload sizes are written in run configs.
// If the string is empty, it returns 0.
func ParseBytes(size string) (int64, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return 0, nil
	}

	var value float64
	var unit string

	n, err := fmt.Sscanf(size, "%f%s", &value, &unit)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("invalid size value: %s", size)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid size value: %s", size)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative size value: %s", size)
	}

	multiplier := 1.0
	if n > 1 {
		switch strings.ToUpper(strings.TrimSpace(unit)) {
		case "B":
		case "K", "KB", "KI", "KIB":
			multiplier = 1 << 10
		case "M", "MB", "MI", "MIB":
			multiplier = 1 << 20
		case "G", "GB", "GI", "GIB":
			multiplier = 1 << 30
		default:
			return 0, fmt.Errorf("unknown size unit: %s", unit)
		}
	}

	bytes := value * multiplier
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("size out of range: %s", size)
	}
	return int64(bytes), nil
}

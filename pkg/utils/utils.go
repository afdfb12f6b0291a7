package utils

import "fmt"

// FormatLatency renders a microsecond latency with a rounded unit.
func FormatLatency(micros int64) string {
	if micros < 0 {
		micros = -micros
	}
	if micros < 1000 {
		return fmt.Sprintf("%dµs", micros)
	}
	if micros < 1000000 {
		return fmt.Sprintf("%.1fms", float64(micros)/1000.0)
	}
	return fmt.Sprintf("%.2fs", float64(micros)/1000000.0)
}

// Percentage renders part/total as a percentage, guarding the zero total.
func Percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100.0
}

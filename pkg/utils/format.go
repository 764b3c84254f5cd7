package utils

import (
	"fmt"
	"time"
)

// FormatDuration форматирует длительность в читаемый вид
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours < 24 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dd %dh", hours/24, hours%24)
}

// Minutes округляет длительность вниз до целых минут
func Minutes(d time.Duration) int {
	return int(d / time.Minute)
}

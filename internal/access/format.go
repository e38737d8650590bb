package access

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration renders "Xh Ymin" or "Y min". Seconds are dropped.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0 min"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	}
	return fmt.Sprintf("%d min", minutes)
}

// RoundedMinutes is d in whole minutes, rounded half up.
func RoundedMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}

// OccupancyPercentage is inside/capacity as a rounded percentage; 0 without a capacity.
func OccupancyPercentage(inside, capacity int) int {
	if capacity <= 0 {
		return 0
	}
	return int(math.Round(float64(inside) * 100 / float64(capacity)))
}

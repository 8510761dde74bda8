package status

import (
	"fmt"
	"time"
)

// MaxTooltipLen is the longest summary [Tooltip] returns.
const MaxTooltipLen = 63

// Tooltip returns the one-glance summary shown next to the status indicator.
func Tooltip(r Result, message string, updatedAt, now time.Time) string {
	var text string
	switch {
	case r == Error:
		text = "Unable to connect to API!"
	case r == Invalid:
		text = "API response incorrect!"
	case r == None || updatedAt.IsZero():
		text = "Waiting for first update"
	default:
		secs := int64(now.Sub(updatedAt) / time.Second)
		if secs < 0 {
			secs = 0
		}
		if secs == 1 {
			text = "Updated 1 second ago"
		} else {
			text = fmt.Sprintf("Updated %d seconds ago", secs)
		}
		if message != "" {
			text += "\n" + message
		}
	}

	if len(text) > MaxTooltipLen {
		text = Truncate(text, MaxTooltipLen-3) + "..."
	}
	return text
}

// ProgressText is the indicator text while fetch attempt n of max is running.
func ProgressText(attempt, maxAttempts int) string {
	return fmt.Sprintf("Updating API contents [%d/%d]...", attempt, maxAttempts)
}

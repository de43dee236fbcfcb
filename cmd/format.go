package cmd

import (
	"fmt"
	"time"
)

const msRound = time.Millisecond

// formatDuration renders a position within a lecture as mm:ss or h:mm:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatTime renders a record timestamp for listings.
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

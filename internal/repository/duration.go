package repository

import "time"

// SLA and escalation durations are stored as whole hours; nil columns mean
// the duration is not configured.

func durationToHours(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	hours := int64(*d / time.Hour)
	return &hours
}

func hoursToDuration(hours *int64) *time.Duration {
	if hours == nil {
		return nil
	}
	d := time.Duration(*hours) * time.Hour
	return &d
}

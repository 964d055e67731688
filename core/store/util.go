package store

import "time"

func nullableTime(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return *ts
}

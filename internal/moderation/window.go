package moderation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPointsNotStarted = errors.New("points period has not started")
	ErrPointsEnded      = errors.New("points period has ended")
)

// PointsWindow bounds the dates (YYYY-MM-DD, inclusive) on which points can be earned.
// Empty bounds are open.
type PointsWindow struct {
	Start string
	End   string
}

func (w PointsWindow) Check(now time.Time) error {
	today := now.Format("2006-01-02")
	if w.Start != "" && today < w.Start {
		return fmt.Errorf("%w: starts %s", ErrPointsNotStarted, w.Start)
	}
	if w.End != "" && today > w.End {
		return fmt.Errorf("%w: ended %s", ErrPointsEnded, w.End)
	}
	return nil
}

// ValidDate accepts an empty value or a YYYY-MM-DD date.
func ValidDate(value string) bool {
	if value == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

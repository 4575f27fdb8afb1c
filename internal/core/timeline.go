package core

import "time"

const day = 24 * time.Hour

// Timeline converts timestamps into whole-day offsets from a single origin.
// One timeline is shared by every day computation in a run so that day
// filters, clustering windows and phase lookups agree.
type Timeline struct {
	Origin time.Time
}

// NewTimeline anchors day 0 on the first message. Messages are expected in
// timestamp-ascending order.
func NewTimeline(messages []Message) Timeline {
	if len(messages) == 0 {
		return Timeline{}
	}
	return Timeline{Origin: messages[0].Timestamp}
}

// FixedTimeline anchors day 0 on a calendar instant.
func FixedTimeline(origin time.Time) Timeline {
	return Timeline{Origin: origin}
}

// Day returns floor((ts - origin) / 24h).
func (t Timeline) Day(ts time.Time) int {
	d := ts.Sub(t.Origin)
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// DayStart returns the instant at which day begins.
func (t Timeline) DayStart(d int) time.Time {
	return t.Origin.Add(time.Duration(d) * day)
}

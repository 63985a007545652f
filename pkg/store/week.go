package store

import "time"

// WeekInfo identifies one competition week by ISO-8601 week number and ISO year. The ISO
// year can differ from the civil year around New Year (Dec 29-31 can belong to week 1 of the
// next ISO year, and week 52/53 keeps its own ISO year).
type WeekInfo struct {
	Week int
	Year int
}

// WeekAt derives the WeekInfo of t observed in loc. Sessions derive their week once at
// creation and never re-derive it, so a session crossing midnight stays in its week.
func WeekAt(t time.Time, loc *time.Location) WeekInfo {
	year, week := t.In(loc).ISOWeek()
	return WeekInfo{Week: week, Year: year}
}

// Package export renders stored events as an iCalendar (RFC 5545) feed.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"

	"example.com/calendarapi/internal/domain"
)

const ProductID = "-//calendarapi//event store//EN"

// UID returns the stable iCalendar UID of an event. It is based on the id,
// so an event deleted and recreated on the same date gets a new UID.
func UID(ev domain.Event, host string) string {
	return fmt.Sprintf("event-%d@%s", ev.ID, host)
}

// WriteICS writes one all-day VEVENT per event, ordered by date.
func WriteICS(w io.Writer, events map[domain.Date]domain.Event, host string, stamp time.Time) error {
	dates := make([]domain.Date, 0, len(events))
	for d := range events {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)

	for _, d := range dates {
		ev := events[d]
		ve := cal.AddEvent(UID(ev, host))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetAllDayStartAt(d.Time())
		ve.SetAllDayEndAt(d.Time().AddDate(0, 0, 1))
		ve.SetSummary(ev.Title)
		if ev.Text != "" {
			ve.SetDescription(ev.Text)
		}
	}
	return cal.SerializeTo(w)
}

// Package codec converts events to and from the pipe-delimited wire format
// "<YYYY-MM-DD>|<title>|<text>".
//
// Title and text are not escaped. A literal "|" inside either field makes
// the record undecodable (or decodes into the wrong fields); this is a known
// limitation of the format.
package codec

import (
	"strings"

	"example.com/calendarapi/internal/domain"
)

// Separator delimits wire fields.
const Separator = "|"

const fieldCount = 3

// Allocator hands out event ids during decode. See DecodeWith.
type Allocator func() int64

// Decode parses raw into an event with a zero ID. Lengths are not checked
// here; that is the store's job at commit time.
func Decode(raw string) (domain.Event, error) {
	return DecodeWith(raw, nil)
}

// DecodeWith is Decode with an optional id allocator. When alloc is non-nil
// it is called once the field count is known to be right and before the
// date is parsed, so a bad date still consumes an id.
func DecodeWith(raw string, alloc Allocator) (domain.Event, error) {
	parts := strings.Split(raw, Separator)
	if len(parts) != fieldCount {
		return domain.Event{}, domain.Errorf(domain.KindMalformedInput, "Invalid RAW event data: %s", raw)
	}

	var ev domain.Event
	if alloc != nil {
		ev.ID = alloc()
	}
	d, err := domain.ParseDate(parts[0])
	if err != nil {
		return domain.Event{}, domain.Errorf(domain.KindInvalidDateFormat, "%s", domain.MsgInvalidDate)
	}
	ev.Date = d
	ev.Title = parts[1]
	ev.Text = parts[2]
	return ev, nil
}

// Encode renders ev in wire format. It never fails.
func Encode(ev domain.Event) string {
	return ev.Date.String() + Separator + ev.Title + Separator + ev.Text
}

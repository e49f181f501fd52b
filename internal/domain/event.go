package domain

// Event is the canonical calendar record. Date is the business key;
// ID is assigned by the store and never reused.
type Event struct {
	ID    int64  `json:"-"`
	Date  Date   `json:"date"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Validation constraints, counted in characters (runes).
const (
	MaxTitleLen = 30
	MaxTextLen  = 200
)

package domain

import "strings"

// DefaultLimit is the number of results returned when the caller does not ask
// for a specific count.
const DefaultLimit = 3

// Query is a normalized resolution request. Optional constraints are absent
// when the shopper did not express them; MaxPrice uses a pointer so zero is a
// valid requested price ceiling.
type Query struct {
	Text     string
	ImageURL string
	Color    string
	MaxPrice *float64
	UserID   string
	Limit    int
}

// NewQuery normalizes raw request fields. Text and color are trimmed and
// color is uppercased to match catalog values. A non-positive limit is kept
// as zero, meaning the caller asked for no particular count; the engine
// substitutes its configured result cap.
func NewQuery(text, imageURL, color string, maxPrice *float64, userID string, limit int) Query {
	if limit < 0 {
		limit = 0
	}
	return Query{
		Text:     strings.TrimSpace(text),
		ImageURL: strings.TrimSpace(imageURL),
		Color:    strings.ToUpper(strings.TrimSpace(color)),
		MaxPrice: maxPrice,
		UserID:   strings.TrimSpace(userID),
		Limit:    limit,
	}
}

// HasText reports whether the query carries a textual description.
func (q Query) HasText() bool { return q.Text != "" }

// HasImage reports whether the query carries an image reference.
func (q Query) HasImage() bool { return q.ImageURL != "" }

// HasColor reports whether a color constraint was requested.
func (q Query) HasColor() bool { return q.Color != "" }

// HasPrice reports whether a price ceiling was requested.
func (q Query) HasPrice() bool { return q.MaxPrice != nil }

// HasSignal reports whether the query carries any searchable input at all.
func (q Query) HasSignal() bool { return q.HasText() || q.HasImage() }

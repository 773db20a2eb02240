package domain

// Product is a catalog item as stored in the index and returned to callers.
// Handle is the stable catalog key; an empty handle marks an item that cannot
// participate in exclusion or deduplication.
type Product struct {
	Handle      string  `json:"handle"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Color       string  `json:"color,omitempty"`
	Size        string  `json:"size,omitempty"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// LeanItem is the compact product view fed back into the conversational
// loop. It carries no catalog identifiers or links.
type LeanItem struct {
	Title    string  `json:"title"`
	Color    string  `json:"color,omitempty"`
	Size     string  `json:"size,omitempty"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

// Lean projects the product down to the fields a conversational reply needs.
func (p Product) Lean() LeanItem {
	return LeanItem{
		Title:    p.Title,
		Color:    p.Color,
		Size:     p.Size,
		Price:    p.Price,
		Category: p.Category,
	}
}

// Candidate is a product scored during retrieval, annotated with the spaces
// that surfaced it. Matches counts distinct spaces; Score is the best
// relevance seen across them.
type Candidate struct {
	Product

	Sources []Space `json:"-"`
	Matches int     `json:"matches"`
	Score   float64 `json:"score"`
}

// FoundBy reports whether this candidate was surfaced by the given space.
func (c Candidate) FoundBy(space Space) bool {
	for _, s := range c.Sources {
		if s == space {
			return true
		}
	}
	return false
}

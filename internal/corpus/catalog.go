package corpus

import "fmt"

// Catalog is the process-wide chunk lookup, built once at startup and shared
// read-only by every request.
type Catalog struct {
	chunks map[string]Chunk
	titles []string
}

func NewCatalog(chunks []Chunk) *Catalog {
	byID := make(map[string]Chunk, len(chunks))
	seenTitle := make(map[string]struct{})
	var titles []string
	for _, ch := range chunks {
		byID[ch.ID] = ch
		if _, ok := seenTitle[ch.Metadata.Title]; !ok && ch.Metadata.Title != "" {
			seenTitle[ch.Metadata.Title] = struct{}{}
			titles = append(titles, ch.Metadata.Title)
		}
	}
	return &Catalog{chunks: byID, titles: titles}
}

func (c *Catalog) Get(id string) (Chunk, error) {
	ch, ok := c.chunks[id]
	if !ok {
		return Chunk{}, fmt.Errorf("unknown chunk id %q", id)
	}
	return ch, nil
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.chunks[id]
	return ok
}

func (c *Catalog) Size() int { return len(c.chunks) }

// Titles lists every distinct movie title in the corpus, in first-seen order.
// Conversation augmentation matches mentioned titles against this list.
func (c *Catalog) Titles() []string {
	return c.titles
}

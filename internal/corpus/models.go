package corpus

// Metadata carries the movie facts attached to every chunk cut from a source
// document. Review fields are only set for chunks cut from a user review.
type Metadata struct {
	Title        string   `json:"title"`
	Year         int      `json:"year,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	Director     string   `json:"director,omitempty"`
	Cast         []string `json:"cast,omitempty"`
	IMDBRating   float64  `json:"imdb_rating,omitempty"`
	ReviewAuthor string   `json:"review_author,omitempty"`
	ReviewRating float64  `json:"review_rating,omitempty"`
	Sentiment    string   `json:"sentiment,omitempty"`
}

// Chunk is the immutable unit of retrievable text. Chunks are created once at
// ingestion time and never mutated afterwards.
type Chunk struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	Ordinal  int      `json:"ordinal"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Document is a single source text before chunking: either a movie metadata
// record or one user review.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Movie is one scraped movie record with its user reviews.
type Movie struct {
	Title      string
	Year       int
	Genres     []string
	IMDBRating float64
	Director   string
	Cast       []string
	Reviews    []Review
}

// Review is one scraped user review.
type Review struct {
	Author  string
	Rating  float64
	Helpful string
	Text    string
}

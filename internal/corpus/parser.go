package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Parser loads the scraper's reviews.csv output. Each row is one user review
// carrying the movie metadata alongside it; rows are grouped by title into
// Movie records.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) ParseFile(path string) ([]Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	return p.Parse(f)
}

func (p *Parser) Parse(r io.Reader) ([]Movie, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"title", "review_text"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("corpus file missing required column %q", required)
		}
	}

	byTitle := make(map[string]*Movie)
	var order []string

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus row: %w", err)
		}

		title := strings.TrimSpace(field(row, col, "title"))
		if title == "" {
			continue
		}

		movie, ok := byTitle[title]
		if !ok {
			movie = &Movie{
				Title:      title,
				Year:       parseYear(field(row, col, "year")),
				Genres:     parseList(field(row, col, "genres")),
				IMDBRating: parseRating(field(row, col, "imdb_rating")),
				Director:   strings.TrimSpace(field(row, col, "director")),
				Cast:       parseList(field(row, col, "cast")),
			}
			byTitle[title] = movie
			order = append(order, title)
		}

		text := strings.TrimSpace(field(row, col, "review_text"))
		if text == "" {
			continue
		}
		movie.Reviews = append(movie.Reviews, Review{
			Author:  strings.TrimSpace(field(row, col, "author")),
			Rating:  parseRating(field(row, col, "user_rating")),
			Helpful: strings.TrimSpace(field(row, col, "helpful")),
			Text:    text,
		})
	}

	movies := make([]Movie, 0, len(order))
	for _, title := range order {
		movies = append(movies, *byTitle[title])
	}
	return movies, nil
}

// BuildDocuments turns each movie into one metadata document plus one document
// per review, ready for chunking.
func BuildDocuments(movies []Movie) []Document {
	var docs []Document
	for _, m := range movies {
		meta := Metadata{
			Title:      m.Title,
			Year:       m.Year,
			Genres:     m.Genres,
			Director:   m.Director,
			Cast:       m.Cast,
			IMDBRating: m.IMDBRating,
		}

		sourceID := SourceID(m.Title, m.Year)
		docs = append(docs, Document{
			ID:       sourceID,
			Text:     metadataText(m),
			Metadata: meta,
		})

		for i, r := range m.Reviews {
			reviewMeta := meta
			reviewMeta.ReviewAuthor = r.Author
			reviewMeta.ReviewRating = r.Rating
			reviewMeta.Sentiment = ratingSentiment(r.Rating)
			docs = append(docs, Document{
				ID:       fmt.Sprintf("%s-r%02d", sourceID, i+1),
				Text:     r.Text,
				Metadata: reviewMeta,
			})
		}
	}
	return docs
}

// ratingSentiment buckets a 1-10 user rating. Unrated reviews stay unlabeled.
func ratingSentiment(rating float64) string {
	switch {
	case rating <= 0:
		return ""
	case rating >= 7:
		return "positive"
	case rating <= 4:
		return "negative"
	default:
		return "mixed"
	}
}

func metadataText(m Movie) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d) is a %s film directed by %s.",
		m.Title, m.Year, strings.Join(m.Genres, ", "), m.Director)
	if len(m.Cast) > 0 {
		fmt.Fprintf(&b, " Starring %s.", strings.Join(m.Cast, ", "))
	}
	if m.IMDBRating > 0 {
		fmt.Fprintf(&b, " IMDb rating %.1f.", m.IMDBRating)
	}
	return b.String()
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// SourceID derives a stable, lexicographically friendly source document id
// from a movie title and release year.
func SourceID(title string, year int) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if year > 0 {
		return fmt.Sprintf("%s-%d", slug, year)
	}
	return slug
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseYear(s string) int {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return year
}

func parseRating(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0
	}
	// Scraper sometimes emits "8.1/10"
	if idx := strings.Index(s, "/"); idx > 0 {
		s = s[:idx]
	}
	rating, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return rating
}

// parseList handles both "A; B; C" and the scraper's stringified python list
// form "['A', 'B', 'C']".
func parseList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "[]")
	if s == "" || s == "N/A" {
		return nil
	}

	sep := ";"
	if !strings.Contains(s, ";") {
		sep = ","
	}

	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

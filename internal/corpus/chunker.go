package corpus

import "fmt"

type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewChunker(chunkSize, overlap int) *Chunker {
	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
	}
}

// ChunkDocument cuts a document into fixed-size chunks with a fixed overlap
// between consecutive chunks. Every character of the document lands in at
// least one chunk; each chunk except possibly the last has exactly ChunkSize
// characters, and consecutive chunks share exactly ChunkOverlap characters.
func (c *Chunker) ChunkDocument(doc Document) []Chunk {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return []Chunk{}
	}

	results := []Chunk{}
	text := []rune(doc.Text)
	n := len(text)
	step := c.ChunkSize - c.ChunkOverlap
	ordinal := 0

	for i := 0; i < n; i += step {
		end := i + c.ChunkSize
		if end > n {
			end = n
		}

		results = append(results, Chunk{
			ID:       ChunkID(doc.ID, ordinal),
			SourceID: doc.ID,
			Ordinal:  ordinal,
			Text:     string(text[i:end]),
			Metadata: doc.Metadata,
		})
		ordinal++

		if end == n {
			break
		}
	}

	return results
}

// ChunkID builds the id for the ordinal-th chunk of a source document. The
// zero-padded ordinal keeps ids from the same source in lexicographic order.
func ChunkID(sourceID string, ordinal int) string {
	return fmt.Sprintf("%s-%04d", sourceID, ordinal)
}

package retriever

// Method tags which retrieval path produced a candidate.
type Method string

const (
	MethodSparse Method = "sparse"
	MethodDense  Method = "dense"
	MethodBoth   Method = "both"
)

// Candidate is one chunk in the merged pool with its fused score. Scores are
// normalized per query and are not comparable across queries.
type Candidate struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Method  Method  `json:"method"`
}

// Result is the ranked candidate pool for a single request. Degraded is set
// when one retrieval path failed and the other carried the query alone.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Degraded   bool        `json:"degraded"`
}

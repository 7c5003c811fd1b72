package pipeline

// State is the per-request stage marker. Requests advance strictly forward;
// the only branches are the documented degrade paths.
type State string

const (
	StateReceived     State = "received"
	StateAugmented    State = "augmented"
	StateRetrieved    State = "retrieved"
	StateReranked     State = "reranked"
	StateContextBuilt State = "context_built"
	StatePromptReady  State = "prompt_ready"
	StateRecorded     State = "recorded"
	StateFailed       State = "failed"
)

// Request is one user query bound to a session.
type Request struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// Response is the terminal pipeline outcome.
type Response struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	Answer    string `json:"answer,omitempty"`
	// EffectiveQuery is the augmented query actually retrieved with.
	EffectiveQuery string `json:"effective_query,omitempty"`
	// Evidence lists the chunk ids behind the answer, in context order.
	Evidence []string `json:"evidence,omitempty"`
	// Degraded marks a sparse-only or pre-rerank-order answer.
	Degraded bool `json:"degraded,omitempty"`
	// Insufficient marks the explicit no-matching-context outcome, distinct
	// from Failed.
	Insufficient bool   `json:"insufficient,omitempty"`
	FailReason   string `json:"fail_reason,omitempty"`
}

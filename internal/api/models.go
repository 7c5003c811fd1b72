package api

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// SessionResponse is returned when a session is created or reset.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

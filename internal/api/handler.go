package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/emicklei/go-restful/v3"
	"github.com/filberthamijoyo/CinematicAI/internal/api/middleware"
	"github.com/filberthamijoyo/CinematicAI/internal/conversation"
	"github.com/filberthamijoyo/CinematicAI/internal/pipeline"
	"github.com/rs/zerolog"
)

// Pipeline answers one query end to end.
type Pipeline interface {
	Answer(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Sessions is the slice of conversation memory the API needs.
type Sessions interface {
	CreateSession(ctx context.Context) (string, error)
	Reset(ctx context.Context, sessionID string) error
}

type Handler struct {
	pipeline Pipeline
	sessions Sessions
	logger   *zerolog.Logger
}

func NewHandler(p Pipeline, sessions Sessions, logger *zerolog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		sessions: sessions,
		logger:   logger,
	}
}

// POST /api/v1/sessions
func (h *Handler) CreateSession(req *restful.Request, resp *restful.Response) {
	sessionID, err := h.sessions.CreateSession(req.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create session")
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("session_id", sessionID).Msg("Session created")
	resp.WriteHeaderAndEntity(http.StatusCreated, SessionResponse{SessionID: sessionID})
}

// POST /api/v1/query
// Body: QueryRequest
// Returns: pipeline.Response
func (h *Handler) Query(req *restful.Request, resp *restful.Response) {
	var queryRequest QueryRequest
	if err := req.ReadEntity(&queryRequest); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}
	if queryRequest.SessionID == "" {
		middleware.HandleError(resp, errors.New("session_id is required"), http.StatusBadRequest)
		return
	}
	if queryRequest.Query == "" {
		middleware.HandleError(resp, errors.New("query is required"), http.StatusBadRequest)
		return
	}

	h.logger.Info().
		Str("session_id", queryRequest.SessionID).
		Msg("Start query")

	ctx := req.Request.Context()
	answer, err := h.pipeline.Answer(ctx, pipeline.Request{
		SessionID: queryRequest.SessionID,
		Query:     queryRequest.Query,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			middleware.HandleError(resp, err, http.StatusNotFound)
			return
		}
		// The answer still carries the terminal Failed state and its
		// user-visible message.
		h.logger.Error().Err(err).Str("session_id", queryRequest.SessionID).Msg("Query failed")
		resp.WriteHeaderAndEntity(http.StatusBadGateway, answer)
		return
	}

	h.logger.Info().
		Str("session_id", answer.SessionID).
		Str("state", string(answer.State)).
		Bool("degraded", answer.Degraded).
		Msg("Query complete")

	resp.WriteHeaderAndEntity(http.StatusOK, answer)
}

// DELETE /api/v1/sessions/{session_id}
func (h *Handler) ResetSession(req *restful.Request, resp *restful.Response) {
	sessionID := req.PathParameter("session_id")
	if sessionID == "" {
		middleware.HandleError(resp, errors.New("session_id is required"), http.StatusBadRequest)
		return
	}

	if err := h.sessions.Reset(req.Request.Context(), sessionID); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to reset session")
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("session_id", sessionID).Msg("Session reset")
	resp.WriteHeaderAndEntity(http.StatusOK, SessionResponse{SessionID: sessionID})
}

// Health handler GET /api/v1/health
func (h *Handler) Health(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	})
}

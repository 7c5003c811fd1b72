package api

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/filberthamijoyo/CinematicAI/internal/api/middleware"
	"github.com/filberthamijoyo/CinematicAI/internal/pipeline"
)

func RegisterRoutes(container *restful.Container, handler *Handler) {
	ws := new(restful.WebService)

	ws.
		Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	// Health endpoint
	ws.
		Route(ws.GET("health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	ws.
		Route(ws.POST("/sessions").
			To(handler.CreateSession).
			Doc("Create a conversation session").
			Metadata(restfulspec.KeyOpenAPITags, []string{"sessions"}).
			Writes(SessionResponse{}).
			Returns(201, "Created", SessionResponse{}).
			Returns(500, "Internal Server Error", middleware.ErrorResponse{}))

	ws.
		Route(ws.DELETE("/sessions/{session_id}").
			To(handler.ResetSession).
			Doc("Delete a session and its history").
			Metadata(restfulspec.KeyOpenAPITags, []string{"sessions"}).
			Param(ws.PathParameter("session_id", "Session identifier").DataType("string")).
			Writes(SessionResponse{}).
			Returns(200, "OK", SessionResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(500, "Internal Server Error", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/query").
			To(handler.Query).
			Doc("Ask for a movie recommendation").
			Metadata(restfulspec.KeyOpenAPITags, []string{"query"}).
			Reads(QueryRequest{}).
			Writes(pipeline.Response{}).
			Returns(200, "OK", pipeline.Response{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(404, "Session Not Found", middleware.ErrorResponse{}).
			Returns(502, "Pipeline Failed", pipeline.Response{}))

	container.Add(ws)
}

// Package httpserver exposes the product over HTTP: the task and
// working-hours REST API, the agent room WebSocket, and the Twilio voice
// webhooks.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/TheShakSpace/Samyak/internal/agent"
	"github.com/TheShakSpace/Samyak/internal/middleware"
	"github.com/TheShakSpace/Samyak/internal/store"
	"github.com/TheShakSpace/Samyak/internal/tts"
)

// Archiver persists a finished conversation. Implementations must tolerate
// being called after the session's connection is gone.
type Archiver interface {
	SaveConversation(ctx context.Context, sessionID string, history []agent.Message) error
}

// Deps carries everything the routes need. Recognizer, NewSpeaker, Archive,
// and TwilioAuthToken are optional; absent capabilities degrade per route.
type Deps struct {
	Store      *store.Store
	Responder  agent.Responder
	Recognizer agent.Recognizer
	// NewSpeaker builds a per-connection speaker whose audio lands in sink.
	NewSpeaker      func(sink tts.Sink) agent.Speaker
	Archive         Archiver
	TwilioAuthToken string
}

// Server bundles the router and its dependencies.
type Server struct {
	echo *echo.Echo
	deps Deps
}

func New(deps Deps) *Server {
	s := &Server{echo: newRouter(), deps: deps}
	s.routes()
	return s
}

// Handler returns the root http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	e := s.echo

	e.GET("/health", s.handleHealth)
	e.GET("/room", s.handleRoom)

	api := e.Group("/api")
	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PATCH("/tasks/:id", s.handleUpdateTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)

	api.POST("/working-hours", s.handleLogHours)
	api.GET("/working-hours", s.handleListHours)

	api.GET("/productivity/report", s.handleProductivityReport)

	api.POST("/agent/process", s.handleAgentProcess)

	api.GET("/training-files", s.handleListTrainingFiles)
	api.POST("/training-files", s.handleAddTrainingFile)
	api.DELETE("/training-files/:id", s.handleRemoveTrainingFile)
	api.GET("/training-files/export", s.handleExportTrainingFiles)

	if s.deps.TwilioAuthToken != "" {
		auth := middleware.TwilioAuth(func() string { return s.deps.TwilioAuthToken })
		e.POST("/twilio/voice", s.handleTwilioVoice, auth)
		e.POST("/twilio/respond", s.handleTwilioRespond, auth)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "samyak-agent"})
}

package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/TheShakSpace/Samyak/internal/agent"
	"github.com/TheShakSpace/Samyak/internal/store"
)

// detail mirrors the error body shape the dashboard client expects.
func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}

// --- Tasks ---

func (s *Server) handleListTasks(c echo.Context) error {
	f := store.TaskFilter{
		Status:   c.QueryParam("status"),
		Assignee: c.QueryParam("assignee"),
		Tag:      c.QueryParam("tag"),
	}
	tasks := s.deps.Store.ListTasks(f)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(tasks),
		"filters": map[string]string{
			"status":   f.Status,
			"assignee": f.Assignee,
			"tag":      f.Tag,
		},
		"tasks": tasks,
	})
}

func (s *Server) handleGetTask(c echo.Context) error {
	t, err := s.deps.Store.GetTask(c.Param("id"))
	if err != nil {
		return detail(c, http.StatusNotFound, "Task not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var in store.TaskCreate
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	t, err := s.deps.Store.CreateTask(in)
	if err != nil {
		return detail(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id": t.TaskID,
		"status":  "success",
		"message": fmt.Sprintf("Task '%s' created successfully with ID %s", t.Title, t.TaskID),
		"task":    t,
	})
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	var in store.TaskUpdate
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	t, err := s.deps.Store.UpdateTask(c.Param("id"), in)
	if errors.Is(err, store.ErrNotFound) {
		return detail(c, http.StatusNotFound, "Task not found")
	}
	if err != nil {
		return detail(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "task": t})
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	id := c.Param("id")
	if err := s.deps.Store.DeleteTask(id); err != nil {
		return detail(c, http.StatusNotFound, fmt.Sprintf("Task with ID %s not found", id))
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Task %s deleted successfully", id),
	})
}

// --- Working hours ---

func (s *Server) handleLogHours(c echo.Context) error {
	var in store.HoursCreate
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	e, err := s.deps.Store.LogHours(in)
	if err != nil {
		return detail(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "success",
		"message":       fmt.Sprintf("Logged %d min for task %s", e.Minutes, e.TaskID),
		"working_hours": e,
	})
}

func (s *Server) handleListHours(c echo.Context) error {
	entries := s.deps.Store.ListHours(store.HoursFilter{
		TaskID:   c.QueryParam("task_id"),
		UserID:   c.QueryParam("user_id"),
		FromDate: c.QueryParam("from_date"),
		ToDate:   c.QueryParam("to_date"),
	})
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"count":   len(entries),
		"entries": entries,
	})
}

// --- Productivity ---

func (s *Server) handleProductivityReport(c echo.Context) error {
	days := 30
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			return detail(c, http.StatusBadRequest, "days must be between 1 and 365")
		}
		days = n
	}
	return c.JSON(http.StatusOK, s.deps.Store.Report(c.QueryParam("assignee"), days))
}

// --- Agent ---

func (s *Server) handleAgentProcess(c echo.Context) error {
	var body struct {
		Request string `json:"request"`
	}
	if err := c.Bind(&body); err != nil || body.Request == "" {
		return detail(c, http.StatusBadRequest, "request is required")
	}
	reply, err := s.deps.Responder.Respond(c.Request().Context(), []agent.Turn{
		{Role: agent.RoleUser, Text: body.Request},
	})
	if err != nil {
		return detail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"response": reply})
}

// --- Training files ---

func (s *Server) handleListTrainingFiles(c echo.Context) error {
	files := s.deps.Store.ListTrainingFiles()
	return c.JSON(http.StatusOK, map[string]interface{}{"count": len(files), "files": files})
}

func (s *Server) handleAddTrainingFile(c echo.Context) error {
	var in struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	}
	if err := c.Bind(&in); err != nil || in.Name == "" {
		return detail(c, http.StatusBadRequest, "name is required")
	}
	f := s.deps.Store.AddTrainingFile(in.Name, in.Type, in.Size)
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "file": f})
}

func (s *Server) handleRemoveTrainingFile(c echo.Context) error {
	if err := s.deps.Store.RemoveTrainingFile(c.Param("id")); err != nil {
		return detail(c, http.StatusNotFound, "File not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleExportTrainingFiles(c echo.Context) error {
	files := s.deps.Store.ListTrainingFiles()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="training-dataset.json"`)
	return c.JSON(http.StatusOK, map[string]interface{}{"count": len(files), "files": files})
}

package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annoq/annoq/errors"
	"github.com/annoq/annoq/pipeline"
	"github.com/annoq/annoq/queue"
	"github.com/annoq/annoq/store"
)

// claimNext hands the caller the oldest pending task. An empty queue is
// not an error: the body is JSON null and the client is expected to back
// off before polling again.
func (s *Server) claimNext(c *gin.Context) {
	task, err := s.svc.ClaimNext(c.Request.Context(), currentActor(c).ID)
	if stderrors.Is(err, queue.ErrNoTask) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTask(task))
}

func (s *Server) myTasks(c *gin.Context) {
	tasks, err := s.svc.MyTasks(c.Request.Context(), currentActor(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTasks(tasks))
}

type submitRequest struct {
	Response json.RawMessage `json:"response"`
}

func (s *Server) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidInput("invalid request body", errors.WithCause(err)))
		return
	}

	task, _, err := s.svc.Submit(c.Request.Context(), c.Param("id"), currentActor(c).ID, req.Response)
	if err != nil {
		renderError(c, err)
		return
	}
	// The response is the updated task; the annotation stays readable
	// through the task's annotation trail.
	c.JSON(http.StatusOK, viewTask(task))
}

func (s *Server) reviewQueue(c *gin.Context) {
	tasks, err := s.svc.ReviewQueue(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTasks(tasks))
}

func (s *Server) approve(c *gin.Context) {
	task, err := s.svc.Approve(c.Request.Context(), c.Param("id"), currentActor(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTask(task))
}

func (s *Server) reviewSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidInput("invalid request body", errors.WithCause(err)))
		return
	}

	task, _, err := s.svc.SubmitWithEdits(c.Request.Context(), c.Param("id"), currentActor(c).ID, req.Response)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTask(task))
}

func (s *Server) release(c *gin.Context) {
	task, err := s.svc.Release(c.Request.Context(), c.Param("id"), currentActor(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTask(task))
}

func (s *Server) listTasks(c *gin.Context) {
	filter := store.ListFilter{
		Status: pipeline.Status(c.Query("status")),
		SortBy: store.SortField(c.Query("sort")),
	}
	switch c.Query("order") {
	case "", "asc":
	case "desc":
		filter.Descending = true
	default:
		renderError(c, errors.InvalidInput("order must be asc or desc"))
		return
	}

	tasks, err := s.svc.List(c.Request.Context(), filter)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTasks(tasks))
}

type ingestRequest struct {
	BatchID string          `json:"batch_id"`
	Content json.RawMessage `json:"content"`
}

func (s *Server) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidInput("invalid request body", errors.WithCause(err)))
		return
	}

	task, err := s.svc.Ingest(c.Request.Context(), req.BatchID, req.Content)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewTask(task))
}

func (s *Server) annotations(c *gin.Context) {
	anns, err := s.svc.Annotations(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAnnotations(anns))
}

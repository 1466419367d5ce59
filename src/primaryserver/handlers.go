package primaryserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jacokyle01/chess-analysis/src/models"
)

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// HTTP handlers
func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.GetJob(c.Request.Context(), s.opts.JobWait)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleSubmitResult(c *gin.Context) {
	var result models.Result
	if err := c.ShouldBindJSON(&result); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if result.JobID == "" {
		errorJSON(c, http.StatusBadRequest, errors.New("missing job_id"))
		return
	}

	s.SubmitResult(result)
	c.Status(http.StatusOK)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var job models.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	job, err := s.AddJob(job)
	switch {
	case errors.Is(err, ErrInvalidJob):
		errorJSON(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, ErrQueueFull):
		errorJSON(c, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

func (s *Server) handleGetResult(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		errorJSON(c, http.StatusBadRequest, errors.New("missing job_id parameter"))
		return
	}

	if result, ok := s.GetResult(jobID); ok {
		c.JSON(http.StatusOK, result)
		return
	}
	if s.Pending(jobID) {
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "pending"})
		return
	}
	c.Status(http.StatusNotFound)
}

func (s *Server) handleViewQueue(c *gin.Context) {
	pending := s.PendingJobs()
	c.JSON(http.StatusOK, gin.H{
		"queue_length": len(pending),
		"pending_jobs": pending,
	})
}

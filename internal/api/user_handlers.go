package api

import (
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/limits"
	"github.com/ah-its-andy/convertbot/internal/worker"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, worker.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrQueueClosed):
		return http.StatusServiceUnavailable
	}
	switch domain.KindOf(err) {
	case domain.LimitReached, domain.NotCollecting:
		return http.StatusConflict
	case domain.Validation, domain.FormatMismatch, domain.DurationExceeded:
		return http.StatusBadRequest
	case domain.SizeExceeded:
		return http.StatusRequestEntityTooLarge
	case domain.NotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{
		"error": domain.UserMessage(err),
		"kind":  domain.KindOf(err),
	})
}

func (s *Server) consent(c *gin.Context) {
	s.deps.Store.Accept(c.Param("user"))
	c.JSON(http.StatusOK, gin.H{"consented": true})
}

func (s *Server) setCloud(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"enabled\": bool}"})
		return
	}
	if *req.Enabled && !s.deps.CloudAvailable {
		c.JSON(http.StatusConflict, gin.H{"error": "cloud storage is not configured"})
		return
	}
	s.deps.Store.SetCloud(c.Param("user"), *req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func (s *Server) selectKind(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"kind\": string}"})
		return
	}
	job, err := s.deps.Orchestrator.SelectKind(c.Param("user"), req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":        job,
		"extensions": limits.Extensions(job.SourceFormat),
	})
}

func (s *Server) jobStatus(c *gin.Context) {
	job, p, ok := s.deps.Orchestrator.Status(c.Param("user"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "progress": p})
}

func (s *Server) cancelJob(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": s.deps.Orchestrator.Cancel(c.Param("user"))})
}

// uploadFile stores the multipart "file" field and adds it to the job. An
// optional "duration" form value declares the clip length in seconds.
func (s *Server) uploadFile(c *gin.Context) {
	user := c.Param("user")
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	pf := domain.PendingFile{Name: header.Filename, Size: header.Size}
	if d := c.PostForm("duration"); d != "" {
		secs, err := strconv.ParseFloat(d, 64)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a number of seconds"})
			return
		}
		pf.Duration = time.Duration(secs * float64(time.Second))
	}

	// Oversized or unexpected uploads are never written; Enqueue rejects
	// them from the declared values.
	if job, ok := s.deps.Store.Get(user); ok && limits.Precheck(pf.Name, pf.Size, pf.Duration, &job) == nil {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
			return
		}
		handle, n, err := s.deps.Blobs.Save(f, job.SizeLimit)
		f.Close()
		if err != nil {
			log.Printf("[API] store upload %s for %s: %v", pf.Name, user, err)
			respondError(c, err)
			return
		}
		pf.Handle, pf.Size = handle, n
	}

	added, err := s.deps.Orchestrator.Enqueue(c.Request.Context(), user, pf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": added})
}

func (s *Server) convert(c *gin.Context) {
	if err := s.deps.Orchestrator.Trigger(c.Param("user")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (s *Server) events(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":   s.deps.Events.Since(c.Param("user"), since),
		"last_seq": s.deps.Events.LastSeq(),
	})
}

func (s *Server) downloadResult(c *gin.Context) {
	file, ok := s.deps.Outbox.TakeResult(c.Param("user"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	contentType := mime.TypeByExtension(path.Ext(file.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("X-Result-Category", string(file.Category))
	c.Data(http.StatusOK, contentType, file.Data)
}

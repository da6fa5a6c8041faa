package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/limits"
)

// KindResponse describes one selectable conversion kind.
type KindResponse struct {
	domain.KindSpec
	Extensions []string `json:"extensions"`
}

func (s *Server) listKinds(c *gin.Context) {
	kinds := domain.Kinds()
	out := make([]KindResponse, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, KindResponse{KindSpec: k, Extensions: limits.Extensions(k.Source)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listConverters(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Registry.ListInfo())
}

func (s *Server) enableConverter(c *gin.Context)  { s.toggleConverter(c, true) }
func (s *Server) disableConverter(c *gin.Context) { s.toggleConverter(c, false) }

func (s *Server) toggleConverter(c *gin.Context, enabled bool) {
	name := c.Param("name")
	var err error
	if enabled {
		err = s.deps.Registry.Enable(name)
	} else {
		err = s.deps.Registry.Disable(name)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "enabled": enabled})
}

func (s *Server) listTasks(c *gin.Context) {
	if s.deps.Tasks == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	limit := parseIntDefault(c.Query("limit"), 100)
	offset := parseIntDefault(c.Query("offset"), 0)
	rows, err := s.deps.Tasks.ListTasks(c.Query("user"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getStats(c *gin.Context) {
	resp := gin.H{
		"active_jobs":    s.deps.Store.Active(),
		"queue_len":      s.deps.Queue.Len(),
		"parked_results": s.deps.Outbox.Len(),
	}
	if s.deps.Tasks != nil {
		stats, err := s.deps.Tasks.GetStats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["history"] = stats
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) diagnostics(c *gin.Context) {
	ffmpeg := gin.H{"available": false}
	if s.deps.FFmpeg != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if p, err := s.deps.FFmpeg.Locate(ctx); err != nil {
			ffmpeg["error"] = err.Error()
		} else {
			ffmpeg["available"] = true
			ffmpeg["path"] = p
			if v, err := s.deps.FFmpeg.Version(ctx); err == nil {
				ffmpeg["version"] = v
			} else {
				ffmpeg["error"] = err.Error()
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"ffmpeg":          ffmpeg,
		"converters":      s.deps.Registry.ListInfo(),
		"cloud_available": s.deps.CloudAvailable,
	})
}

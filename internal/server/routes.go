package server

import (
	"net/http"
	"time"

	"github.com/danmuck/sshexec/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.opts.Name,
			"version": s.opts.Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.gate != nil
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     ready,
			"uptime":    time.Since(s.appeared).String(),
			"service":   s.opts.Name,
			"version":   s.opts.Version,
			"transport": s.opts.Transport,
		})
	})

	if s.opts.Transport != TransportHTTP {
		return
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	s.router.Any("/mcp", auth.RequireBearer(bearerValidator(s.opts.AuthToken)), gin.WrapH(handler))
}

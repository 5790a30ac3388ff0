// Package adminhttp exposes an operational HTTP surface - health and basic
// stats - alongside the raw wire listeners, using the teacher's gin.New() +
// gin.Logger() + gin.Recovery() convention rather than the core wire
// protocol's own hand-rolled codec.
package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stats is the set of counters the /stats endpoint reports. Callers (the
// cmd/ binaries) populate it by closure over their own ownership maps.
type Stats struct {
	LocalSessionCount func() int
	ChannelCount      func() int
	InstanceID        string
}

// NewRouter builds the admin HTTP router.
func NewRouter(serviceName string, stats Stats) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	router.GET("/stats", func(c *gin.Context) {
		sessions := 0
		if stats.LocalSessionCount != nil {
			sessions = stats.LocalSessionCount()
		}
		channels := 0
		if stats.ChannelCount != nil {
			channels = stats.ChannelCount()
		}
		c.JSON(http.StatusOK, gin.H{
			"service":         serviceName,
			"instance_id":     stats.InstanceID,
			"local_sessions":  sessions,
			"history_channels": channels,
		})
	})

	return router
}

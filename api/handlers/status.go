package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskwell/mailroom/services/ingestion"
)

// EngineStatus reports per-inbox connection state and poll progress
func EngineStatus(poller *ingestion.Poller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "operational",
			"inboxes": poller.Status(),
		})
	}
}

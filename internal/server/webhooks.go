package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlePayPalWebhook receives one provider delivery and runs it through the
// reconciliation engine. Errors answer 500 so the provider redelivers;
// everything the engine settled, including skips and decode failures, answers
// 200 because redelivery cannot change the outcome.
func (s *Server) HandlePayPalWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to read request body"})
		return
	}

	result, err := s.webhookSvc.Process(c.Request.Context(), payload)
	if err != nil {
		s.log.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"processed":  result.Processed,
		"event_type": result.EventType,
	})
}

func (s *Server) AcknowledgeProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

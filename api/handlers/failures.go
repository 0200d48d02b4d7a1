package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/tracing"
)

// ListFailures returns an inbox's failed messages that are still inside the
// attempt budget, so operators can see what the next cycles will retry.
func ListFailures(recordRepository interfaces.IngestionRecordRepository, maxAttempts int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListFailures", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagInbox(span, id)

		records, err := recordRepository.GetFailedRecords(ctx, id, maxAttempts)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"failures": records})
	}
}

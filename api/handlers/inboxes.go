package handlers

import (
	"net/http"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"

	"github.com/taskwell/mailroom/dto"
	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/tracing"
)

// ListInboxes returns all registered inboxes
func ListInboxes(inboxRepository interfaces.InboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListInboxes", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		inboxes, err := inboxRepository.GetInboxes(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"inboxes": inboxes})
	}
}

// RegisterInbox adds a new inbox configuration. The next poll tick picks it up.
func RegisterInbox(inboxRepository interfaces.InboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RegisterInbox", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request dto.RegisterInboxRequest
		err := c.ShouldBindJSON(&request)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		validation := mailvalidate.ValidateEmailSyntax(request.EmailAddress)
		if !validation.IsValid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address"})
			return
		}
		request.EmailAddress = validation.CleanEmail
		if request.ImapHost == "" || request.SmtpHost == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "imapHost and smtpHost are required"})
			return
		}

		inbox := request.ToInbox()
		err = inboxRepository.SaveInbox(ctx, inbox)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"status": "inbox registered", "id": inbox.ID})
	}
}

// RemoveInbox deletes an inbox and its sync state. Ingestion records stay so
// already-created tasks keep their provenance.
func RemoveInbox(inboxRepository interfaces.InboxRepository, syncStateRepository interfaces.SyncStateRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RemoveInbox", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagInbox(span, id)

		if err := inboxRepository.DeleteInbox(ctx, id); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := syncStateRepository.DeleteInboxSyncStates(ctx, id); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "inbox removed", "id": id})
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/services/rules"
)

// ListRules returns an inbox's rules in evaluation order
func ListRules(ruleRepository interfaces.RuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListRules", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		inboxID := c.Param("id")
		tracing.TagInbox(span, inboxID)

		ruleSet, err := ruleRepository.GetRulesForInbox(ctx, inboxID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"rules": ruleSet})
	}
}

// SaveRule creates or updates a rule for an inbox. The condition tree is
// parsed here so a malformed shape is rejected before it reaches storage;
// regex and vocabulary errors still surface at compile time as CompileError.
func SaveRule(ruleRepository interfaces.RuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SaveRule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		inboxID := c.Param("id")
		tracing.TagInbox(span, inboxID)

		var rule models.Rule
		if err := c.ShouldBindJSON(&rule); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rule.InboxID = inboxID

		if _, err := rules.ParseConditions(rule.Conditions); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// A rewritten rule gets a clean slate; the next snapshot recompiles it.
		rule.CompileError = ""
		if err := ruleRepository.SaveRule(ctx, &rule); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "rule saved", "id": rule.ID})
	}
}

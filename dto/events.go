package dto

import (
	"time"

	"github.com/taskwell/mailroom/internal/enum"
)

// Event is the envelope every published message travels in.
type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uberTraceId"`
	Timestamp   string `json:"timestamp"`
}

const (
	EventTaskCreated     = "task.created"
	EventTaskUpdated     = "task.updated"
	EventIngestionFailed = "ingestion.failed"
)

type TaskCreated struct {
	TaskID          string    `json:"taskId"`
	OrganizationID  string    `json:"organizationId"`
	ProjectID       string    `json:"projectId"`
	SourceInboxID   string    `json:"sourceInboxId"`
	SourceMessageID string    `json:"sourceMessageId"`
	Title           string    `json:"title"`
	Priority        string    `json:"priority"`
	AssigneeID      string    `json:"assigneeId,omitempty"`
	Labels          []string  `json:"labels,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type TaskUpdated struct {
	TaskID          string   `json:"taskId"`
	SourceInboxID   string   `json:"sourceInboxId"`
	SourceMessageID string   `json:"sourceMessageId"`
	Priority        string   `json:"priority,omitempty"`
	AssigneeID      string   `json:"assigneeId,omitempty"`
	Labels          []string `json:"labels,omitempty"`
}

type IngestionFailed struct {
	InboxID   string `json:"inboxId"`
	MessageID string `json:"messageId"`
	Stage     string `json:"stage"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError"`
}

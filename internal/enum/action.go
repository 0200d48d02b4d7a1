package enum

// ActionType names the effects a matched rule can request.
type ActionType string

const (
	ActionSetPriority ActionType = "setPriority"
	ActionAssignTo    ActionType = "assignTo"
	ActionAddLabels   ActionType = "addLabels"
	ActionAutoReply   ActionType = "autoReply"
	ActionCreateTask  ActionType = "createTask"
)

// EntityType tags published events with the entity they concern.
type EntityType string

const (
	TASK  EntityType = "TASK"
	INBOX EntityType = "INBOX"
	EMAIL EntityType = "EMAIL"
)

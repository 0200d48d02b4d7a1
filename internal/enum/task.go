package enum

// TaskPriority mirrors the priority vocabulary of the task service.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

func DecodeTaskPriority(s string) TaskPriority {
	p := TaskPriority(s)
	if p.Valid() {
		return p
	}
	return TaskPriorityMedium
}

// TaskType is an opaque identifier owned by the task service; the engine only
// copies it from the inbox defaults.
type TaskType string

const (
	TaskTypeTask  TaskType = "TASK"
	TaskTypeBug   TaskType = "BUG"
	TaskTypeStory TaskType = "STORY"
)

func DecodeTaskType(s string) TaskType {
	switch t := TaskType(s); t {
	case TaskTypeTask, TaskTypeBug, TaskTypeStory:
		return t
	}
	return TaskTypeTask
}

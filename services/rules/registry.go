package rules

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/models"
)

// FieldExtractor returns the string values a leaf condition tests. A leaf
// matches when any extracted value satisfies its operator.
type FieldExtractor func(message *models.InboundMessage) []string

// Operator evaluates one leaf comparison. compiled is non-nil only for
// operators that declared NeedsRegex.
type Operator struct {
	NeedsRegex bool
	Eval       func(haystack, needle string, compiled *regexp.Regexp) bool
}

// Action is one decoded rule effect, applied in list order by the executor.
type Action struct {
	Type enum.ActionType

	// setPriority
	Priority enum.TaskPriority
	// assignTo
	AssigneeID string
	// addLabels
	Labels []string
	// autoReply
	TemplateID string
	// createTask
	CreateTask bool
	Overrides  TaskOverrides
}

// TaskOverrides are the per-rule overrides a createTask action may carry on
// top of the inbox defaults.
type TaskOverrides struct {
	Title    string        `json:"title,omitempty"`
	TaskType enum.TaskType `json:"taskType,omitempty"`
	StatusID string        `json:"statusId,omitempty"`
}

// ActionParser decodes one stored action object into its typed form.
type ActionParser func(params map[string]interface{}) (*Action, error)

// Registry holds the condition field, operator and action vocabularies. The
// stored rule schema is JSON, so new vocabulary entries can be registered
// without touching the engine walk.
type Registry struct {
	fields    map[string]FieldExtractor
	operators map[string]Operator
	actions   map[string]ActionParser
}

func (r *Registry) RegisterField(name string, extractor FieldExtractor) {
	r.fields[strings.ToLower(name)] = extractor
}

func (r *Registry) RegisterOperator(name string, op Operator) {
	r.operators[strings.ToLower(name)] = op
}

func (r *Registry) RegisterAction(name string, parser ActionParser) {
	r.actions[strings.ToLower(name)] = parser
}

func (r *Registry) field(name string) (FieldExtractor, bool) {
	f, ok := r.fields[strings.ToLower(name)]
	return f, ok
}

func (r *Registry) operator(name string) (Operator, bool) {
	op, ok := r.operators[strings.ToLower(name)]
	return op, ok
}

func (r *Registry) action(name string) (ActionParser, bool) {
	p, ok := r.actions[strings.ToLower(name)]
	return p, ok
}

// DefaultRegistry builds the built-in vocabulary: fields {from, to, subject,
// body, hasAttachment}, operators {contains, equals, startsWith, matches},
// actions {setPriority, assignTo, addLabels, autoReply, createTask}.
func DefaultRegistry() *Registry {
	r := &Registry{
		fields:    make(map[string]FieldExtractor),
		operators: make(map[string]Operator),
		actions:   make(map[string]ActionParser),
	}

	r.RegisterField("from", func(m *models.InboundMessage) []string {
		return []string{m.From}
	})
	r.RegisterField("to", func(m *models.InboundMessage) []string {
		return m.To
	})
	r.RegisterField("subject", func(m *models.InboundMessage) []string {
		return []string{m.Subject}
	})
	r.RegisterField("body", func(m *models.InboundMessage) []string {
		return []string{m.MatchBody()}
	})
	r.RegisterField("hasAttachment", func(m *models.InboundMessage) []string {
		if m.HasAttachment() {
			return []string{"true"}
		}
		return []string{"false"}
	})

	// String operators compare case-insensitively; matches runs the regex as
	// compiled at rule-load time.
	r.RegisterOperator("contains", Operator{
		Eval: func(haystack, needle string, _ *regexp.Regexp) bool {
			return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
		},
	})
	r.RegisterOperator("equals", Operator{
		Eval: func(haystack, needle string, _ *regexp.Regexp) bool {
			return strings.EqualFold(haystack, needle)
		},
	})
	r.RegisterOperator("startsWith", Operator{
		Eval: func(haystack, needle string, _ *regexp.Regexp) bool {
			return strings.HasPrefix(strings.ToLower(haystack), strings.ToLower(needle))
		},
	})
	r.RegisterOperator("matches", Operator{
		NeedsRegex: true,
		Eval: func(haystack, _ string, compiled *regexp.Regexp) bool {
			return compiled.MatchString(haystack)
		},
	})

	r.RegisterAction("setPriority", func(params map[string]interface{}) (*Action, error) {
		priority := enum.TaskPriority(stringParam(params, "value"))
		if !priority.Valid() {
			return nil, errors.Errorf("setPriority: unknown priority %q", priority)
		}
		return &Action{Type: enum.ActionSetPriority, Priority: priority}, nil
	})
	r.RegisterAction("assignTo", func(params map[string]interface{}) (*Action, error) {
		userID := stringParam(params, "userId")
		if userID == "" {
			return nil, errors.New("assignTo: userId is required")
		}
		return &Action{Type: enum.ActionAssignTo, AssigneeID: userID}, nil
	})
	r.RegisterAction("addLabels", func(params map[string]interface{}) (*Action, error) {
		labels := stringSliceParam(params, "labels")
		if len(labels) == 0 {
			return nil, errors.New("addLabels: labels are required")
		}
		return &Action{Type: enum.ActionAddLabels, Labels: labels}, nil
	})
	r.RegisterAction("autoReply", func(params map[string]interface{}) (*Action, error) {
		templateID := stringParam(params, "templateId")
		if templateID == "" {
			return nil, errors.New("autoReply: templateId is required")
		}
		return &Action{Type: enum.ActionAutoReply, TemplateID: templateID}, nil
	})
	r.RegisterAction("createTask", func(params map[string]interface{}) (*Action, error) {
		action := &Action{Type: enum.ActionCreateTask, CreateTask: true}
		if enabled, ok := params["enabled"].(bool); ok {
			action.CreateTask = enabled
		}
		if overrides, ok := params["overrides"].(map[string]interface{}); ok {
			raw, err := json.Marshal(overrides)
			if err != nil {
				return nil, errors.Wrap(err, "createTask: overrides are not serializable")
			}
			if err := json.Unmarshal(raw, &action.Overrides); err != nil {
				return nil, errors.Wrap(err, "createTask: malformed overrides")
			}
		}
		return action, nil
	})

	return r
}

func stringParam(params map[string]interface{}, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	var values []string
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			values = append(values, strings.TrimSpace(s))
		}
	}
	return values
}

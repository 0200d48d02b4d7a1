package rules

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/taskwell/mailroom/internal/models"
)

// Condition is one node of a rule's boolean expression tree: either a leaf
// comparison {field, operator, value} or a combinator {any: [...]} /
// {all: [...]}. A node must be exactly one of the three shapes.
type Condition struct {
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`

	Any []*Condition `json:"any,omitempty"`
	All []*Condition `json:"all,omitempty"`
}

func (c *Condition) isLeaf() bool {
	return c.Field != "" || c.Operator != "" || c.Value != ""
}

// ParseConditions decodes a rule's stored conditions blob into a tree.
func ParseConditions(conditions models.JSONMap) (*Condition, error) {
	if len(conditions) == 0 {
		return nil, errors.New("conditions are empty")
	}

	raw, err := json.Marshal(conditions)
	if err != nil {
		return nil, errors.Wrap(err, "conditions are not serializable")
	}

	var root Condition
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&root); err != nil {
		return nil, errors.Wrap(err, "malformed condition tree")
	}

	if err := validateCondition(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

func validateCondition(node *Condition) error {
	shapes := 0
	if node.isLeaf() {
		shapes++
	}
	if node.Any != nil {
		shapes++
	}
	if node.All != nil {
		shapes++
	}
	if shapes != 1 {
		return errors.New("condition node must be exactly one of leaf, any, all")
	}

	if node.isLeaf() {
		if node.Field == "" || node.Operator == "" {
			return errors.New("condition leaf requires field and operator")
		}
		return nil
	}

	for _, child := range append(node.Any, node.All...) {
		if child == nil {
			return errors.New("condition combinator contains null child")
		}
		if err := validateCondition(child); err != nil {
			return err
		}
	}
	return nil
}

package rules

import (
	"context"
	"regexp"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

// compiledNode is a Condition with its leaf bound to registry entries and its
// regex, if any, compiled.
type compiledNode struct {
	leaf     bool
	extract  FieldExtractor
	operator Operator
	value    string
	regex    *regexp.Regexp

	anyOf []*compiledNode
	allOf []*compiledNode
}

// CompiledRule is one rule ready for evaluation.
type CompiledRule struct {
	Rule    *models.Rule
	Actions []*Action
	root    *compiledNode
}

// RuleSet is the immutable per-cycle snapshot of an inbox's rules, in
// evaluation order. Disabled rules and rules that failed to compile are
// already excluded; compile failures are reported separately so the caller
// can surface them as configuration errors.
type RuleSet struct {
	Rules []*CompiledRule
}

type CompileFailure struct {
	RuleID string
	Err    error
}

type Engine struct {
	registry *Registry
}

func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Engine{registry: registry}
}

// Compile turns the stored rule rows into an evaluation snapshot. Rules
// arrive already ordered (ascending priority, creation tie-break) and keep
// that order. A rule that fails to compile is excluded and reported, never
// allowed to poison the rest of the set.
func (e *Engine) Compile(ctx context.Context, ruleRows []*models.Rule) (*RuleSet, []CompileFailure) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Engine.Compile")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("rules.count", len(ruleRows))

	set := &RuleSet{}
	var failures []CompileFailure

	for _, row := range ruleRows {
		if !row.Enabled {
			continue
		}

		compiled, err := e.compileRule(row)
		if err != nil {
			err = er.RuleCompileError(err, "rule "+row.ID+" failed to compile")
			tracing.TraceErr(span, err)
			failures = append(failures, CompileFailure{RuleID: row.ID, Err: err})
			continue
		}
		set.Rules = append(set.Rules, compiled)
	}

	return set, failures
}

func (e *Engine) compileRule(row *models.Rule) (*CompiledRule, error) {
	tree, err := ParseConditions(row.Conditions)
	if err != nil {
		return nil, err
	}

	root, err := e.compileNode(tree)
	if err != nil {
		return nil, err
	}

	actions, err := e.compileActions(row)
	if err != nil {
		return nil, err
	}

	return &CompiledRule{Rule: row, Actions: actions, root: root}, nil
}

func (e *Engine) compileNode(node *Condition) (*compiledNode, error) {
	if node.isLeaf() {
		extract, ok := e.registry.field(node.Field)
		if !ok {
			return nil, errors.Errorf("unknown condition field %q", node.Field)
		}
		operator, ok := e.registry.operator(node.Operator)
		if !ok {
			return nil, errors.Errorf("unknown condition operator %q", node.Operator)
		}

		compiled := &compiledNode{
			leaf:     true,
			extract:  extract,
			operator: operator,
			value:    node.Value,
		}
		if operator.NeedsRegex {
			regex, err := regexp.Compile(node.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid regex %q", node.Value)
			}
			compiled.regex = regex
		}
		return compiled, nil
	}

	compiled := &compiledNode{}
	for _, child := range node.Any {
		childNode, err := e.compileNode(child)
		if err != nil {
			return nil, err
		}
		compiled.anyOf = append(compiled.anyOf, childNode)
	}
	if node.Any != nil && compiled.anyOf == nil {
		compiled.anyOf = []*compiledNode{}
	}
	for _, child := range node.All {
		childNode, err := e.compileNode(child)
		if err != nil {
			return nil, err
		}
		compiled.allOf = append(compiled.allOf, childNode)
	}
	if node.All != nil && compiled.allOf == nil {
		compiled.allOf = []*compiledNode{}
	}
	return compiled, nil
}

func (e *Engine) compileActions(row *models.Rule) ([]*Action, error) {
	if len(row.Actions) == 0 {
		return nil, nil
	}

	var actions []*Action
	for i, item := range row.Actions {
		params, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("action %d is not an object", i)
		}
		name, _ := params["type"].(string)
		if name == "" {
			return nil, errors.Errorf("action %d has no type", i)
		}
		parser, ok := e.registry.action(name)
		if !ok {
			return nil, errors.Errorf("unknown action type %q", name)
		}
		action, err := parser(params)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// MatchResult is the outcome of evaluating one message against a snapshot.
type MatchResult struct {
	MatchedRuleIDs []string
	// Actions accumulate across matched rules in evaluation order, unless a
	// matched rule sets stopOnMatch.
	Actions []*Action
}

func (r *MatchResult) Matched() bool {
	return len(r.MatchedRuleIDs) > 0
}

// Evaluate walks the snapshot in order, accumulating the actions of every
// matching rule until one with stopOnMatch matches. Evaluation order depends
// only on the snapshot order, never on map iteration.
func (e *Engine) Evaluate(ctx context.Context, set *RuleSet, message *models.InboundMessage) *MatchResult {
	span, _ := opentracing.StartSpanFromContext(ctx, "Engine.Evaluate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.id", message.MessageID)

	result := &MatchResult{}
	for _, rule := range set.Rules {
		if !evalNode(rule.root, message) {
			continue
		}
		result.MatchedRuleIDs = append(result.MatchedRuleIDs, rule.Rule.ID)
		result.Actions = append(result.Actions, rule.Actions...)
		if rule.Rule.StopOnMatch {
			break
		}
	}

	span.SetTag("matched.count", len(result.MatchedRuleIDs))
	return result
}

// evalNode walks the tree. An all with zero children is vacuously true; an
// any with zero children is false.
func evalNode(node *compiledNode, message *models.InboundMessage) bool {
	if node.leaf {
		for _, haystack := range node.extract(message) {
			if node.operator.Eval(haystack, node.value, node.regex) {
				return true
			}
		}
		return false
	}

	if node.anyOf != nil {
		for _, child := range node.anyOf {
			if evalNode(child, message) {
				return true
			}
		}
		return false
	}

	for _, child := range node.allOf {
		if !evalNode(child, message) {
			return false
		}
	}
	return true
}

package automation

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleParser reads rule definitions from YAML or JSON documents. A document
// holds either a single rule or a `rules:` list.
type RuleParser struct{}

// NewRuleParser creates a new rule parser
func NewRuleParser() *RuleParser {
	return &RuleParser{}
}

// ParseFromYAML parses automation rules from YAML
func (rp *RuleParser) ParseFromYAML(yamlData []byte) ([]Rule, error) {
	var raw interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %v", err)
	}
	return rp.parseDocument(raw)
}

// ParseFromJSON parses automation rules from JSON
func (rp *RuleParser) ParseFromJSON(jsonData []byte) ([]Rule, error) {
	var raw interface{}
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %v", err)
	}
	return rp.parseDocument(raw)
}

// Parse dispatches on format ("yaml", "yml" or "json").
func (rp *RuleParser) Parse(data []byte, format string) ([]Rule, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return rp.ParseFromYAML(data)
	case "json", "":
		return rp.ParseFromJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format %q, use 'yaml' or 'json'", format)
	}
}

func (rp *RuleParser) parseDocument(raw interface{}) ([]Rule, error) {
	switch doc := raw.(type) {
	case map[string]interface{}:
		if list, ok := doc["rules"]; ok {
			items, ok := list.([]interface{})
			if !ok {
				return nil, fmt.Errorf("rules must be an array")
			}
			return rp.parseList(items)
		}
		rule, err := rp.parseFromMap(doc)
		if err != nil {
			return nil, err
		}
		return []Rule{rule}, nil
	case []interface{}:
		return rp.parseList(doc)
	default:
		return nil, fmt.Errorf("rule document must be an object or an array")
	}
}

func (rp *RuleParser) parseList(items []interface{}) ([]Rule, error) {
	rules := make([]Rule, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("rule %d must be an object", i)
		}
		rule, err := rp.parseFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %v", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// parseFromMap converts one decoded rule object into a Rule. Rules are active
// unless isActive is explicitly false.
func (rp *RuleParser) parseFromMap(rawRule map[string]interface{}) (Rule, error) {
	if name, ok := rawRule["name"].(string); !ok || name == "" {
		return Rule{}, fmt.Errorf("rule name is required")
	}
	if _, ok := rawRule["trigger"]; !ok {
		return Rule{}, fmt.Errorf("trigger is required")
	}
	if _, ok := rawRule["actions"]; !ok {
		return Rule{}, fmt.Errorf("actions are required")
	}
	if _, ok := rawRule["isActive"]; !ok {
		rawRule["isActive"] = true
	}

	data, err := json.Marshal(rawRule)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to encode rule: %v", err)
	}
	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return Rule{}, fmt.Errorf("invalid rule structure: %v", err)
	}
	if rule.Conditions == nil {
		rule.Conditions = []Condition{}
	}
	return rule, nil
}

// SerializeToYAML serializes rules to YAML under a `rules:` key.
func (rp *RuleParser) SerializeToYAML(rules []Rule) ([]byte, error) {
	data, err := json.Marshal(map[string]interface{}{"rules": rules})
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// ValidateRuleSyntax validates rule syntax without registering anything.
func (rp *RuleParser) ValidateRuleSyntax(data []byte, format string) *RuleValidationResult {
	rules, err := rp.Parse(data, format)
	if err != nil {
		return &RuleValidationResult{
			Valid: false,
			Errors: []RuleValidationError{{
				Field:   "syntax",
				Message: fmt.Sprintf("parse error: %v", err),
			}},
		}
	}

	result := &RuleValidationResult{Valid: true, Errors: []RuleValidationError{}}
	for i, rule := range rules {
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("rule_%d", i)
		}
		res := rule.Validate()
		for _, e := range res.Errors {
			result.add(fmt.Sprintf("rules[%d].%s", i, e.Field), "%s", e.Message)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/pkg/schema"
)

// ruleSchemaJSON is the JSON Schema for rule files. Embedded as a constant to
// avoid filesystem dependencies.
const ruleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://navsight.dev/schemas/rules.json",
  "type": "array",
  "items": { "$ref": "#/$defs/rule" },
  "$defs": {
    "rule": {
      "type": "object",
      "required": ["id", "if_all", "action"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1,
          "pattern": "^[A-Za-z0-9][A-Za-z0-9_.-]*$"
        },
        "description": { "type": "string" },
        "if_all": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["expr"],
            "properties": {
              "expr": { "type": "string", "minLength": 1 }
            },
            "additionalProperties": false
          }
        },
        "action": {
          "type": "object",
          "required": ["type", "target"],
          "properties": {
            "type": { "type": "string", "minLength": 1 },
            "target": { "type": "string" },
            "params": { "type": "object" }
          },
          "additionalProperties": false
        },
        "justification_template": { "type": "string" },
        "expected_impact": { "type": "object" },
        "priority": { "type": "integer", "minimum": 1, "maximum": 5 },
        "confidence": { "type": "number", "minimum": 0, "maximum": 1 },
        "dedupe_key": { "type": "string" },
        "max_per_type": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    }
  }
}`

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

func ruleSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ruleSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal rule schema: %w", err)
			return
		}
		if err := c.AddResource("https://navsight.dev/schemas/rules.json", doc); err != nil {
			compileErr = fmt.Errorf("add rule schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile("https://navsight.dev/schemas/rules.json")
	})
	return compiled, compileErr
}

// Load reads and validates a rule file. Any structural, semantic, or
// expression-syntax problem fails the whole load: a partially valid rule-set
// never reaches evaluation.
func Load(path string, limits dsl.Limits) (*schema.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRuleDefinition,
			"read rule file %s: %s", path, err.Error()).WithCause(err)
	}
	return Parse(data, path, limits)
}

// Parse validates and decodes rule-set content (YAML; JSON is a YAML subset).
// Validation is layered: JSON Schema first, then semantic checks (duplicate
// IDs, expression and template syntax), all eager.
func Parse(data []byte, source string, limits dsl.Limits) (*schema.RuleSet, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRuleDefinition,
			"rule file %s is not valid YAML: %s", source, err.Error()).WithCause(err)
	}
	if doc == nil {
		return schema.NewRuleSet(source, nil), nil
	}

	if err := validateStructure(doc, source); err != nil {
		return nil, err
	}

	var defs []schema.RuleDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRuleDefinition,
			"decode rule file %s: %s", source, err.Error()).WithCause(err)
	}

	for i := range defs {
		applyDefaults(&defs[i])
	}
	if err := validateSemantics(defs, limits); err != nil {
		return nil, err
	}

	return schema.NewRuleSet(source, defs), nil
}

// validateStructure runs the embedded JSON Schema over the decoded document.
// The YAML value round-trips through JSON so the validator sees the exact
// value types it is specified against.
func validateStructure(doc any, source string) error {
	sch, err := ruleSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodeRuleDefinition, err.Error()).WithCause(err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeRuleDefinition,
			"rule file %s does not serialize: %s", source, err.Error()).WithCause(err)
	}
	jsonDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeRuleDefinition,
			"rule file %s: %s", source, err.Error()).WithCause(err)
	}

	if err := sch.Validate(jsonDoc); err != nil {
		return schema.NewErrorf(schema.ErrCodeRuleDefinition,
			"rule file %s failed schema validation: %s", source, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"source": source})
	}
	return nil
}

func applyDefaults(r *schema.RuleDefinition) {
	if r.Priority == 0 {
		r.Priority = schema.PriorityDefault
	}
	if r.Confidence == 0 {
		r.Confidence = schema.DefaultConfidence
	}
	if r.Action.Type == "" {
		r.Action.Type = schema.ActionOther
	}
}

// validateSemantics checks everything the schema cannot: unique IDs and the
// syntax of every expression and template a rule carries.
func validateSemantics(defs []schema.RuleDefinition, limits dsl.Limits) error {
	seen := make(map[string]int, len(defs))
	for i, r := range defs {
		if prev, dup := seen[r.ID]; dup {
			return schema.NewErrorf(schema.ErrCodeRuleDefinition,
				"duplicate rule id %q (rules #%d and #%d)", r.ID, prev, i).
				WithRule(r.ID)
		}
		seen[r.ID] = i

		for j, c := range r.IfAll {
			if _, err := dsl.ParseWithLimits(c.Expr, limits); err != nil {
				return schema.NewErrorf(schema.ErrCodeRuleDefinition,
					"condition #%d: %s", j, err.Error()).
					WithRule(r.ID).WithCause(err)
			}
		}

		if err := dsl.ValidateTemplate(r.JustificationTemplate, limits); err != nil {
			return schema.NewErrorf(schema.ErrCodeRuleDefinition,
				"justification template: %s", err.Error()).
				WithRule(r.ID).WithCause(err)
		}
		if err := dsl.ValidateTemplate(r.DedupeKey, limits); err != nil {
			return schema.NewErrorf(schema.ErrCodeRuleDefinition,
				"dedupe key template: %s", err.Error()).
				WithRule(r.ID).WithCause(err)
		}
		if err := validateParams(r.Action.Params, limits); err != nil {
			return schema.NewErrorf(schema.ErrCodeRuleDefinition,
				"action params: %s", err.Error()).
				WithRule(r.ID).WithCause(err)
		}
	}
	return nil
}

// validateParams walks param values and checks template syntax in any string
// carrying a ${{ span. Impact expressions are deliberately not checked here:
// a non-parsing impact string is a literal by contract, matching how rule
// authors write plain-text impact notes.
func validateParams(v any, limits dsl.Limits) error {
	switch t := v.(type) {
	case string:
		return dsl.ValidateTemplate(t, limits)
	case map[string]any:
		for _, child := range t {
			if err := validateParams(child, limits); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := validateParams(child, limits); err != nil {
				return err
			}
		}
	}
	return nil
}

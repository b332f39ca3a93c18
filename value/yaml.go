package value

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SyntaxError reports text that is not a well-formed document.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	default:
		return e.Message
	}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// Parse decodes a single YAML (or JSON, which is YAML) document.
func Parse(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, syntaxErrorFromYAML(err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, &SyntaxError{Message: "document is empty"}
	}
	return FromYAML(&doc)
}

// FromYAML converts a decoded yaml.Node tree. Aliases are expanded; merge
// keys and duplicate keys are rejected. An anchor whose value contains an
// alias to itself, or aliasing that expands far beyond the size of the
// tree, fails with *SyntaxError.
func FromYAML(node *yaml.Node) (Value, error) {
	c := &converter{
		expanding: make(map[*yaml.Node]bool),
		budget:    expansionBudget(countNodes(node)),
	}
	return c.convert(node)
}

const (
	// minExpansionBudget lets small documents use aliases freely.
	minExpansionBudget = 10_000
	// expansionFactor bounds expanded nodes per node in the source tree.
	expansionFactor = 100
)

func expansionBudget(nodes int) int {
	return max(minExpansionBudget, nodes*expansionFactor)
}

// countNodes counts the nodes of the tree without following aliases.
func countNodes(node *yaml.Node) int {
	if node == nil {
		return 0
	}
	n := 1
	for _, child := range node.Content {
		n += countNodes(child)
	}
	return n
}

type converter struct {
	expanding map[*yaml.Node]bool
	budget    int
}

func (c *converter) convert(node *yaml.Node) (Value, error) {
	at := Position{Line: node.Line, Column: node.Column}
	if c.budget--; c.budget < 0 {
		return nil, &SyntaxError{Line: at.Line, Column: at.Column, Message: "document expands to too many nodes through aliases"}
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null{At: at}, nil
		}
		return c.convert(node.Content[0])

	case yaml.AliasNode:
		target := node.Alias
		if target == nil {
			return nil, &SyntaxError{Line: at.Line, Column: at.Column, Message: "unresolved alias"}
		}
		if c.expanding[target] {
			return nil, &SyntaxError{Line: at.Line, Column: at.Column, Message: fmt.Sprintf("anchor %q value contains itself", target.Anchor)}
		}
		c.expanding[target] = true
		v, err := c.convert(target)
		delete(c.expanding, target)
		return v, err

	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := c.convert(child)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return Array{Items: items, At: at}, nil

	case yaml.MappingNode:
		fields := make([]Field, 0, len(node.Content)/2)
		seen := make(map[string]bool, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return nil, &SyntaxError{Line: key.Line, Column: key.Column, Message: "mapping keys must be scalars"}
			}
			if key.ShortTag() == "!!merge" {
				return nil, &SyntaxError{Line: key.Line, Column: key.Column, Message: "merge keys are not supported"}
			}
			if seen[key.Value] {
				return nil, &SyntaxError{Line: key.Line, Column: key.Column, Message: fmt.Sprintf("duplicate key %q", key.Value)}
			}
			seen[key.Value] = true

			v, err := c.convert(val)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Key: key.Value, Value: v})
		}
		return Object{Fields: fields, At: at}, nil

	case yaml.ScalarNode:
		return scalarFromYAML(node, at)

	default:
		return nil, &SyntaxError{Line: at.Line, Column: at.Column, Message: fmt.Sprintf("unsupported node kind %d", node.Kind)}
	}
}

func scalarFromYAML(node *yaml.Node, at Position) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null{At: at}, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, &SyntaxError{Line: at.Line, Column: at.Column, Message: err.Error()}
		}
		return Bool{V: b, At: at}, nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			// Fall back for plain decimal text the tag resolver accepted.
			parsed, perr := strconv.ParseFloat(node.Value, 64)
			if perr != nil {
				return nil, &SyntaxError{Line: at.Line, Column: at.Column, Message: err.Error()}
			}
			f = parsed
		}
		return Number{V: f, At: at}, nil
	default:
		// !!str, !!timestamp and !!binary keep their source text.
		return String{V: node.Value, At: at}, nil
	}
}

func syntaxErrorFromYAML(err error) *SyntaxError {
	se := &SyntaxError{Message: err.Error()}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		se.Message = typeErr.Errors[0]
	}
	if m := yamlLinePattern.FindStringSubmatch(se.Message); m != nil {
		se.Line, _ = strconv.Atoi(m[1])
	}
	return se
}

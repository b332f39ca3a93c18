package schema

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/zackproser/portfolio-sub002/manifest"
	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/value"
)

type codeSet int

const (
	envelopeCodes codeSet = 100
	factsCodes    codeSet = 200
)

const (
	codeSchema = iota
	codeRequired
	codeUnknown
	codeType
	codeEnum
	codeString
	codeRange
	codeFormat
)

func (c codeSet) code(offset int) string {
	return fmt.Sprintf("MF-%d", int(c)+offset)
}

var patterns sync.Map // pattern -> *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patterns.Store(p, re)
	return re, nil
}

// checker walks a value alongside its schema and records every violation
// with the pointer and source line where it occurs.
type checker struct {
	root   *jsonschema.Schema
	codes  codeSet
	issues []manifest.Issue
}

func (c *checker) add(offset int, at pointer.Pointer, v value.Value, format string, args ...any) {
	c.issues = append(c.issues, manifest.Issue{
		Code:    c.codes.code(offset),
		Path:    at.String(),
		Message: fmt.Sprintf(format, args...),
		Line:    posOf(v).Line,
	})
}

// deref follows local $defs references.
func (c *checker) deref(s *jsonschema.Schema) *jsonschema.Schema {
	for s != nil && s.Ref != "" {
		name, ok := strings.CutPrefix(s.Ref, "#/$defs/")
		if !ok {
			return s
		}
		s = c.root.Defs[name]
	}
	return s
}

func (c *checker) check(s *jsonschema.Schema, v value.Value, at pointer.Pointer) {
	s = c.deref(s)
	if s == nil {
		return
	}

	if types := schemaTypes(s); len(types) > 0 && !slices.ContainsFunc(types, func(t string) bool { return typeMatches(t, v) }) {
		c.add(codeType, at, v, "expected %s, got %s", strings.Join(types, " or "), typeName(v))
		return
	}
	if len(s.Enum) > 0 && !enumContains(s.Enum, v) {
		c.add(codeEnum, at, v, "%v is not one of %s", value.Plain(v), formatEnum(s.Enum))
		return
	}

	switch n := v.(type) {
	case value.String:
		c.checkString(s, n, at)
	case value.Number:
		if s.Minimum != nil && n.V < *s.Minimum {
			c.add(codeRange, at, v, "%v is less than the minimum %v", n.V, *s.Minimum)
		}
	case value.Array:
		if s.MinItems != nil && len(n.Items) < *s.MinItems {
			c.add(codeRange, at, v, "expected at least %d items, got %d", *s.MinItems, len(n.Items))
		}
		for i, item := range n.Items {
			c.check(s.Items, item, at.AppendIndex(i))
		}
	case value.Object:
		for _, req := range s.Required {
			if _, ok := n.Get(req); !ok {
				c.add(codeRequired, at.Append(req), v, "required property %q is missing", req)
			}
		}
		for _, f := range n.Fields {
			field := at.Append(f.Key)
			if prop, ok := s.Properties[f.Key]; ok {
				c.check(prop, f.Value, field)
				continue
			}
			if forbidsExtra(s) {
				c.add(codeUnknown, field, f.Value, "unknown property %q", f.Key)
				continue
			}
			if s.AdditionalProperties != nil {
				c.check(s.AdditionalProperties, f.Value, field)
			}
		}
	}
}

func (c *checker) checkString(s *jsonschema.Schema, v value.String, at pointer.Pointer) {
	if s.MinLength != nil && utf8.RuneCountInString(v.V) < *s.MinLength {
		c.add(codeString, at, v, "expected at least %d characters", *s.MinLength)
		return
	}
	if s.Pattern != "" {
		re, err := compilePattern(s.Pattern)
		if err != nil {
			c.add(codeSchema, at, v, "bad pattern %q in schema: %v", s.Pattern, err)
			return
		}
		if !re.MatchString(v.V) {
			c.add(codeString, at, v, "%q does not match %s", v.V, s.Pattern)
			return
		}
	}
	if err := checkFormat(s.Format, v.V); err != nil {
		c.add(codeFormat, at, v, "%v", err)
	}
}

// checkFormat enforces the formats the validator treats as annotations.
func checkFormat(format, s string) error {
	switch format {
	case "uri":
		return checkURL(s)
	case "date-time":
		_, err := manifest.ParseTime(s)
		return err
	case "json-pointer":
		_, err := pointer.Parse(s)
		return err
	default:
		return nil
	}
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", s)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", s)
	}
	return nil
}

// forbidsExtra reports additionalProperties: false, which decodes to the
// schema that matches nothing.
func forbidsExtra(s *jsonschema.Schema) bool {
	return s.AdditionalProperties != nil && s.AdditionalProperties.Not != nil
}

func schemaTypes(s *jsonschema.Schema) []string {
	if s.Type != "" {
		return []string{s.Type}
	}
	return s.Types
}

func typeMatches(t string, v value.Value) bool {
	switch n := v.(type) {
	case value.Object:
		return t == "object"
	case value.Array:
		return t == "array"
	case value.String:
		return t == "string"
	case value.Bool:
		return t == "boolean"
	case value.Number:
		if t == "integer" {
			return !math.IsInf(n.V, 0) && n.V == math.Trunc(n.V)
		}
		return t == "number"
	default:
		return t == "null"
	}
}

func typeName(v value.Value) string {
	switch v.(type) {
	case value.Object:
		return "object"
	case value.Array:
		return "array"
	case value.String:
		return "string"
	case value.Bool:
		return "boolean"
	case value.Number:
		return "number"
	default:
		return "null"
	}
}

func enumContains(enum []any, v value.Value) bool {
	switch v.(type) {
	case value.Object, value.Array:
		return false
	}
	plain := value.Plain(v)
	for _, e := range enum {
		if e == plain {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, len(enum))
	for i, e := range enum {
		parts[i] = fmt.Sprint(e)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

package schema

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies the shape a Node accepts.
type Kind int

const (
	KindAny Kind = iota
	KindObject
	KindArray
	KindString
	KindInteger
	KindNumber
	KindBoolean
	KindLiteral
	KindEnum
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindLiteral:
		return "literal"
	case KindEnum:
		return "enum"
	case KindUnion:
		return "union"
	default:
		return "any"
	}
}

// Node is one element of a declarative document schema. Defaults are declared on
// the node and filled in during resolution; callers never hardcode them.
type Node struct {
	Kind Kind
	// Label names union alternatives in error messages.
	Label string

	Fields     []Field
	Strict     bool
	Additional *Node

	Items *Node

	Options []*Node
	Values  []any

	Default    any
	hasDefault bool
}

// Field is a named member of an object node.
type Field struct {
	Name     string
	Node     *Node
	Required bool
}

// Object returns a lenient object node: unknown keys are preserved untouched.
func Object(fields ...Field) *Node { return &Node{Kind: KindObject, Fields: fields} }

// StrictObject returns an object node that reports unknown keys.
func StrictObject(fields ...Field) *Node {
	return &Node{Kind: KindObject, Fields: fields, Strict: true}
}

// Record returns an object node whose every key is validated against value.
func Record(value *Node) *Node { return &Node{Kind: KindObject, Additional: value} }

func Array(items *Node) *Node { return &Node{Kind: KindArray, Items: items} }
func String() *Node           { return &Node{Kind: KindString} }
func Integer() *Node          { return &Node{Kind: KindInteger} }
func Number() *Node           { return &Node{Kind: KindNumber} }
func Boolean() *Node          { return &Node{Kind: KindBoolean} }
func Any() *Node              { return &Node{Kind: KindAny} }

// Literal accepts exactly one value.
func Literal(v any) *Node { return &Node{Kind: KindLiteral, Values: []any{v}} }

// Enum accepts one of the listed string values.
func Enum(values ...string) *Node {
	n := &Node{Kind: KindEnum}
	for _, v := range values {
		n.Values = append(n.Values, v)
	}
	return n
}

// Union accepts the first alternative that resolves without issues.
func Union(options ...*Node) *Node { return &Node{Kind: KindUnion, Options: options} }

// Required declares a mandatory object member.
func Required(name string, n *Node) Field { return Field{Name: name, Node: n, Required: true} }

// Optional declares an optional object member.
func Optional(name string, n *Node) Field { return Field{Name: name, Node: n} }

// WithDefault returns a copy of n that fills v when the member is absent.
func (n *Node) WithDefault(v any) *Node {
	c := *n
	c.Default = v
	c.hasDefault = true
	return &c
}

// Named returns a copy of n labelled for union error messages.
func (n *Node) Named(label string) *Node {
	c := *n
	c.Label = label
	return &c
}

// Resolve validates value against n and returns a copy with schema defaults applied.
// Every violation is appended to issues; resolution continues past failures so the
// caller sees all of them at once.
func (n *Node) Resolve(value any, path string, issues *[]FieldIssue) any {
	switch n.Kind {
	case KindAny:
		return value
	case KindObject:
		return n.resolveObject(value, path, issues)
	case KindArray:
		return n.resolveArray(value, path, issues)
	case KindString:
		if _, ok := value.(string); !ok {
			addIssue(issues, path, "expected string, got %s", describe(value))
		}
		return value
	case KindInteger:
		i, ok := asInt(value)
		if !ok {
			addIssue(issues, path, "expected integer, got %s", describe(value))
			return value
		}
		return i
	case KindNumber:
		if _, ok := asFloat(value); !ok {
			addIssue(issues, path, "expected number, got %s", describe(value))
		}
		return value
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			addIssue(issues, path, "expected boolean, got %s", describe(value))
		}
		return value
	case KindLiteral:
		if !sameValue(value, n.Values[0]) {
			addIssue(issues, path, "expected %v, got %v", n.Values[0], value)
		}
		return normalizeScalar(value)
	case KindEnum:
		for _, v := range n.Values {
			if sameValue(value, v) {
				return value
			}
		}
		addIssue(issues, path, "expected one of %s, got %v", joinValues(n.Values), value)
		return value
	case KindUnion:
		return n.resolveUnion(value, path, issues)
	}
	return value
}

func (n *Node) resolveObject(value any, path string, issues *[]FieldIssue) any {
	obj, ok := value.(map[string]any)
	if !ok {
		addIssue(issues, path, "expected object, got %s", describe(value))
		return value
	}

	out := make(map[string]any, len(obj))
	known := make(map[string]struct{}, len(n.Fields))
	for _, f := range n.Fields {
		known[f.Name] = struct{}{}
		fieldPath := join(path, f.Name)
		v, present := obj[f.Name]
		switch {
		case present && v != nil:
			out[f.Name] = f.Node.Resolve(v, fieldPath, issues)
		case f.Node.hasDefault:
			out[f.Name] = f.Node.Resolve(cloneValue(f.Node.Default), fieldPath, issues)
		case f.Required:
			addIssue(issues, fieldPath, "is required")
		}
	}

	extra := make([]string, 0)
	for k := range obj {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		switch {
		case n.Additional != nil:
			out[k] = n.Additional.Resolve(obj[k], join(path, k), issues)
		case n.Strict:
			addIssue(issues, join(path, k), "unknown field")
		default:
			out[k] = obj[k]
		}
	}
	return out
}

func (n *Node) resolveArray(value any, path string, issues *[]FieldIssue) any {
	arr, ok := value.([]any)
	if !ok {
		addIssue(issues, path, "expected array, got %s", describe(value))
		return value
	}
	out := make([]any, len(arr))
	for i, item := range arr {
		out[i] = n.Items.Resolve(item, fmt.Sprintf("%s[%d]", path, i), issues)
	}
	return out
}

func (n *Node) resolveUnion(value any, path string, issues *[]FieldIssue) any {
	var best []FieldIssue
	labels := make([]string, 0, len(n.Options))
	for i, opt := range n.Options {
		var local []FieldIssue
		resolved := opt.Resolve(value, path, &local)
		if len(local) == 0 {
			return resolved
		}
		if i == 0 || len(local) < len(best) {
			best = local
		}
		label := opt.Label
		if label == "" {
			label = opt.Kind.String()
		}
		labels = append(labels, label)
	}
	addIssue(issues, path, "does not match any of: %s", strings.Join(labels, " | "))
	*issues = append(*issues, best...)
	return value
}

func addIssue(issues *[]FieldIssue, path, format string, args ...any) {
	if path == "" {
		path = "(root)"
	}
	*issues = append(*issues, FieldIssue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := asFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t == math.Trunc(t) {
			return int(t), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func normalizeScalar(v any) any {
	if i, ok := asInt(v); ok {
		return i
	}
	return v
}

func sameValue(a, b any) bool {
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	if okA || okB {
		return okA && okB && fa == fb
	}
	return a == b
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

// cloneValue deep-copies maps and slices so defaults are never shared between documents.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

package compiler

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dmitrymomot/mailblocks/pkg/blocks"
)

// Node is one element of a block tree. Props may carry nested nodes under
// the reserved "content" or "children" keys; the explicit Children field is
// an alternative nesting channel and takes precedence when present.
type Node struct {
	Type     string         `json:"type"`
	Props    map[string]any `json:"props,omitempty"`
	Children []Node         `json:"children,omitempty"`
}

// Document is the root of a block tree, matching the editor's payload shape:
// optional root props plus an ordered list of top-level nodes.
type Document struct {
	Root    RootProps `json:"root,omitzero"`
	Content []Node    `json:"content"`
}

// RootProps carries document-level editor metadata. The compiler ignores it
// beyond round-tripping, but the editor persists it with every document.
type RootProps struct {
	Props map[string]any `json:"props,omitempty"`
}

// Result is the compiled artifact: a complete HTML document and its
// plain-text alternative.
type Result struct {
	HTML string
	Text string
}

// Compiler walks block trees and produces compiled artifacts. It is
// stateless apart from its registry and safe for concurrent use.
type Compiler struct {
	registry *blocks.Registry
	strip    *bluemonday.Policy
}

// New creates a compiler over the given component registry. A nil registry
// falls back to the built-in component set.
func New(registry *blocks.Registry) *Compiler {
	if registry == nil {
		registry = blocks.Default()
	}
	return &Compiler{
		registry: registry,
		strip:    bluemonday.StrictPolicy(),
	}
}

// Compile renders the document twice, once per output mode, and wraps the
// fragments in the fixed document envelope. The subject seeds the hidden
// preheader line in the HTML head section.
//
// Compilation never fails: unknown block types and malformed nodes degrade
// to empty fragments so partial documents stay renderable.
func (c *Compiler) Compile(doc Document, subject string) Result {
	var htmlBody, textBody strings.Builder
	for _, node := range doc.Content {
		htmlBody.WriteString(c.renderNode(blocks.ModeHTML, node))
	}
	for _, node := range doc.Content {
		textBody.WriteString(c.renderNode(blocks.ModeText, node))
	}
	return Result{
		HTML: envelopeHTML(subject, htmlBody.String()),
		Text: envelopeText(textBody.String()),
	}
}

// renderNode compiles one node depth-first: children fragments first, then
// the node's own render function over sanitized props.
func (c *Compiler) renderNode(mode blocks.Mode, node Node) string {
	if node.Type == "" {
		return ""
	}
	def, ok := c.registry.Lookup(node.Type)
	if !ok || def.Render == nil {
		return ""
	}

	children := effectiveChildren(node)
	fragments := make([]string, 0, len(children))
	for _, child := range children {
		fragments = append(fragments, c.renderNode(mode, child))
	}

	props := c.sanitizeProps(def, node.Props)

	// Slot components receive compiled children through the slot prop and
	// never through the generic channel; non-slot components the reverse.
	if slot, ok := def.Fields.Slot(); ok {
		props[slot] = fragments
		return def.Render(mode, props, nil)
	}
	return def.Render(mode, props, fragments)
}

// sanitizeProps builds the prop set a render function is allowed to see.
// Only schema-declared fields survive, which also drops the editor's
// bookkeeping "id" field and any raw nested-content payload. String values
// are stripped of markup, numbers are clamped to the declared bounds, and
// select values outside the declared options fall back to the default.
func (c *Compiler) sanitizeProps(def blocks.Definition, raw map[string]any) blocks.Props {
	props := make(blocks.Props, len(def.Fields))
	for name, field := range def.Fields {
		if field.Type == blocks.FieldSlot {
			continue
		}

		value, present := raw[name]
		if !present {
			if fallback, ok := def.Defaults[name]; ok {
				props[name] = fallback
			}
			continue
		}

		switch field.Type {
		case blocks.FieldText, blocks.FieldTextarea:
			s, ok := value.(string)
			if !ok {
				s, _ = def.Defaults[name].(string)
			}
			props[name] = c.stripMarkup(s)
		case blocks.FieldNumber:
			n, ok := toNumber(value)
			if !ok {
				n, _ = def.Defaults[name].(float64)
			}
			if field.Max > field.Min {
				n = min(max(n, field.Min), field.Max)
			}
			props[name] = n
		case blocks.FieldSelect:
			s, ok := value.(string)
			if !ok || !allowedOption(field.Options, s) {
				s, _ = def.Defaults[name].(string)
			}
			props[name] = s
		}
	}
	return props
}

// stripMarkup removes any HTML the user typed into a text field. The
// sanitizer escapes entities on the way through, so the result is unescaped
// back to plain text and renderers escape it per output mode.
func (c *Compiler) stripMarkup(s string) string {
	return html.UnescapeString(c.strip.Sanitize(s))
}

// effectiveChildren resolves a node's child list with fixed precedence:
// the explicit children field, else props.children, else props.content,
// else empty. Exactly one channel is authoritative per node.
func effectiveChildren(node Node) []Node {
	if node.Children != nil {
		return node.Children
	}
	if kids, ok := nodesFromAny(node.Props["children"]); ok {
		return kids
	}
	if kids, ok := nodesFromAny(node.Props["content"]); ok {
		return kids
	}
	return nil
}

// nodesFromAny decodes a raw nested-content payload (a JSON array of node
// objects) into nodes. Malformed entries are dropped; a scalar "content"
// value (a Heading's text, say) is not a child list at all.
func nodesFromAny(value any) ([]Node, bool) {
	list, ok := value.([]any)
	if !ok {
		return nil, false
	}
	nodes := make([]Node, 0, len(list))
	for _, item := range list {
		if node, ok := nodeFromAny(item); ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, true
}

func nodeFromAny(value any) (Node, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return Node{}, false
	}
	typeName, ok := obj["type"].(string)
	if !ok || typeName == "" {
		return Node{}, false
	}
	node := Node{Type: typeName}
	if props, ok := obj["props"].(map[string]any); ok {
		node.Props = props
	}
	if kids, ok := nodesFromAny(obj["children"]); ok {
		node.Children = kids
	}
	return node, true
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func allowedOption(options []blocks.SelectOption, value string) bool {
	for _, opt := range options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

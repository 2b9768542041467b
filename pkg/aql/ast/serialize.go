package ast

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Serialization walks the tree with an explicit stack. Nesting depth is
// controlled by the query author, so none of the walkers below recurse.

// flagName returns the JSON key of a node type's boolean attribute.
func flagName(t NodeType) string {
	switch t {
	case NodeReturn:
		return "distinct"
	case NodeSortElement:
		return "ascending"
	case NodeUpsert:
		return "replace"
	}
	return ""
}

type walkFrame struct {
	h    Handle
	next int
}

// Serialize returns the canonical JSON form of the subtree at h. Field
// order is fixed (type, name or value or flag, subNodes) and children keep
// their insertion order, so equal trees always produce equal bytes.
func (a *Arena) Serialize(h Handle) []byte {
	return a.AppendJSON(make([]byte, 0, 64*a.Len()), h)
}

// AppendJSON appends the canonical JSON form of the subtree at h to buf.
func (a *Arena) AppendJSON(buf []byte, h Handle) []byte {
	buf = a.appendHead(buf, h)
	if !a.hasSubNodes(h) {
		return append(buf, '}')
	}

	stack := []walkFrame{{h: h}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n := a.node(top.h)

		if top.next == len(n.children) {
			buf = append(buf, "]}"...)
			stack = stack[:len(stack)-1]
			continue
		}

		if top.next > 0 {
			buf = append(buf, ',')
		}
		child := n.children[top.next]
		top.next++

		buf = a.appendHead(buf, child)
		if a.hasSubNodes(child) {
			stack = append(stack, walkFrame{h: child})
		} else {
			buf = append(buf, '}')
		}
	}
	return buf
}

func (a *Arena) hasSubNodes(h Handle) bool {
	_, max := a.node(h).Type.Arity()
	return max != 0
}

// appendHead writes everything up to the subNodes array, which it opens if
// the node type can carry children.
func (a *Arena) appendHead(buf []byte, h Handle) []byte {
	n := a.node(h)

	buf = append(buf, `{"type":`...)
	buf = appendJSONString(buf, n.Type.String())

	switch {
	case n.Type == NodeValue:
		buf = append(buf, `,"value":`...)
		buf = n.Value.appendJSON(buf)
	case n.Type.named():
		buf = append(buf, `,"name":`...)
		buf = appendJSONString(buf, n.Value.String)
	case flagName(n.Type) != "":
		buf = append(buf, `,"`...)
		buf = append(buf, flagName(n.Type)...)
		buf = append(buf, `":`...)
		if n.Value.Bool {
			buf = append(buf, "true"...)
		} else {
			buf = append(buf, "false"...)
		}
	}

	if a.hasSubNodes(h) {
		buf = append(buf, `,"subNodes":[`...)
	}
	return buf
}

const hexDigits = "0123456789abcdef"

// appendJSONString appends s as a JSON string. Invalid UTF-8 is replaced
// with U+FFFD so the output is always valid JSON.
func appendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf = append(buf, '\\', c)
			case c == '\n':
				buf = append(buf, '\\', 'n')
			case c == '\r':
				buf = append(buf, '\\', 'r')
			case c == '\t':
				buf = append(buf, '\\', 't')
			case c < 0x20:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			default:
				buf = append(buf, c)
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, `�`...)
		} else {
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}

// ToTree converts the subtree at h into nested maps and slices, the form
// handed to callers that want to inspect the tree without an Arena.
func (a *Arena) ToTree(h Handle) map[string]any {
	root := a.treeHead(h)

	type pending struct {
		h   Handle
		out map[string]any
	}
	stack := []pending{{h, root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !a.hasSubNodes(top.h) {
			continue
		}
		children := a.node(top.h).children
		subs := make([]any, len(children))
		for i, c := range children {
			m := a.treeHead(c)
			subs[i] = m
			stack = append(stack, pending{c, m})
		}
		top.out["subNodes"] = subs
	}
	return root
}

func (a *Arena) treeHead(h Handle) map[string]any {
	n := a.node(h)
	m := map[string]any{"type": n.Type.String()}

	switch {
	case n.Type == NodeValue:
		m["value"] = n.Value.Interface()
	case n.Type.named():
		m["name"] = n.Value.String
	case flagName(n.Type) != "":
		m[flagName(n.Type)] = n.Value.Bool
	}
	return m
}

// Interface returns v as a plain Go value.
func (v Value) Interface() any {
	switch v.Kind {
	case ValueBool:
		return v.Bool
	case ValueInt:
		return v.Int
	case ValueDouble:
		return v.Double
	case ValueString:
		return v.String
	default:
		return nil
	}
}

// Dump renders the subtree at h as an indented outline, one node per line.
func (a *Arena) Dump(h Handle) string {
	var out bytes.Buffer

	type item struct {
		h     Handle
		depth int
	}
	stack := []item{{h, 0}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := a.node(top.h)

		out.WriteString(strings.Repeat("  ", top.depth))
		out.WriteString(n.Type.String())
		switch {
		case n.Type == NodeValue:
			out.WriteByte(' ')
			out.Write(n.Value.appendJSON(nil))
		case n.Type.named():
			out.WriteString(" ")
			out.WriteString(n.Value.String)
		case flagName(n.Type) != "" && n.Value.Bool:
			out.WriteString(" (" + flagName(n.Type) + ")")
		}
		out.WriteByte('\n')

		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, item{n.children[i], top.depth + 1})
		}
	}
	return out.String()
}

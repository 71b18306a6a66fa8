package render

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/loom-ui/loom/pkg/vdom"
)

// ToString serializes a VNode tree to an HTML string.
//
// Void elements never receive a closing tag or children; every other
// element always gets one, even when childless. Handler props have no
// markup representation and are skipped. Unknown tags are serialized as-is:
// tags are opaque strings, never an error here.
func ToString(node *vdom.VNode) (string, error) {
	var buf bytes.Buffer
	if err := ToWriter(&buf, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToWriter streams a VNode tree to the given writer.
func ToWriter(w io.Writer, node *vdom.VNode) error {
	if err := vdom.Validate(node); err != nil {
		return err
	}
	return writeNode(w, node)
}

func writeNode(w io.Writer, node *vdom.VNode) error {
	if node == nil {
		return nil
	}

	switch node.Kind {
	case vdom.KindText:
		_, err := io.WriteString(w, escapeHTML(node.Text))
		return err
	case vdom.KindFragment:
		for _, child := range node.Children {
			if err := writeNode(w, child); err != nil {
				return err
			}
		}
		return nil
	case vdom.KindElement:
		return writeElement(w, node)
	default:
		return fmt.Errorf("unknown node kind: %d", node.Kind)
	}
}

func writeElement(w io.Writer, node *vdom.VNode) error {
	if _, err := fmt.Fprintf(w, "<%s", node.Tag); err != nil {
		return err
	}
	if err := writeAttributes(w, node); err != nil {
		return err
	}
	if _, err := w.Write([]byte{'>'}); err != nil {
		return err
	}

	if vdom.IsVoidElement(node.Tag) {
		return nil
	}

	for _, child := range node.Children {
		if err := writeNode(w, child); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "</%s>", node.Tag)
	return err
}

// writeAttributes serializes the attribute props of an element. Keys are
// sorted for deterministic output. Boolean props render as bare attributes
// when true and are omitted when false; style maps flatten to a single
// "k:v;" string; class lists join with spaces.
func writeAttributes(w io.Writer, node *vdom.VNode) error {
	if len(node.Props) == 0 {
		return nil
	}

	keys := make([]string, 0, len(node.Props))
	for key := range node.Props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := node.Props[key]

		if key == "key" {
			continue
		}
		if vdom.KindOfProp(key, value) == vdom.PropHandler {
			continue
		}

		if b, ok := value.(bool); ok {
			if b {
				if _, err := fmt.Fprintf(w, " %s", key); err != nil {
					return err
				}
			}
			continue
		}

		str := AttrString(key, value)
		if str == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, ` %s="%s"`, key, escapeAttr(str)); err != nil {
			return err
		}
	}
	return nil
}

// AttrString converts a prop value to its attribute string form. Style
// maps and class lists get their flattened representation; the live
// renderer uses the same conversion so markup and live trees agree.
func AttrString(key string, value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]string:
		return flattenStyle(v)
	case map[string]any:
		m := make(map[string]string, len(v))
		for k, val := range v {
			m[k] = fmt.Sprintf("%v", val)
		}
		return flattenStyle(m)
	case []string:
		return strings.Join(v, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Attribute values additionally escape whitespace control characters,
// which could otherwise terminate the attribute early.
var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;",
	)
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;",
		"\n", "&#10;", "\r", "&#13;", "\t", "&#9;",
	)
)

func escapeHTML(s string) string { return textEscaper.Replace(s) }

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// flattenStyle renders a style map as "k:v;" pairs in sorted key order.
func flattenStyle(style map[string]string) string {
	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(style[k])
		b.WriteByte(';')
	}
	return b.String()
}

// Package render serializes virtual DOM trees to HTML. Output is
// deterministic: attributes are sorted, handler props are skipped and
// all text and attribute values are escaped.
package render

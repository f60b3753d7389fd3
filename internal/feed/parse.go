package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// node is one element of a parsed feed document. The tree is schema-free so
// the same walk handles item-based and entry-based dialects plus whatever
// vendor extensions a feed carries.
type node struct {
	name     string
	attrs    map[string]string
	text     string
	children []*node
}

// parseDocument builds a node tree from raw XML. The decoder is lenient
// about charset and entity quirks common in syndicated feeds.
func parseDocument(data []byte) (*node, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	root := &node{name: ""}
	stack := []*node{root}
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse feed document: %w", err)
		}
		switch tok := token.(type) {
		case xml.StartElement:
			child := &node{name: elementName(tok.Name)}
			for _, attr := range tok.Attr {
				if child.attrs == nil {
					child.attrs = make(map[string]string, len(tok.Attr))
				}
				child.attrs[elementName(attr.Name)] = attr.Value
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, child)
			stack = append(stack, child)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text += string(tok)
		}
	}
	if len(root.children) == 0 {
		return nil, errors.New("parse feed document: no root element")
	}
	return root.children[0], nil
}

// elementName preserves the prefix for namespaced elements (dc:creator) and
// uses the bare local name otherwise. Decoded namespace URLs are mapped back
// to their conventional prefixes.
func elementName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	if prefix, ok := namespacePrefixes[name.Space]; ok {
		if prefix == "" {
			return name.Local
		}
		return prefix + ":" + name.Local
	}
	if strings.Contains(name.Space, "/") {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

var namespacePrefixes = map[string]string{
	"http://purl.org/dc/elements/1.1/":         "dc",
	"http://www.w3.org/2003/01/geo/wgs84_pos#": "geo",
	"http://purl.org/rss/1.0/modules/content/": "content",
	"http://www.w3.org/2005/Atom":              "",
}

// child returns the first direct child with the given name, or nil. Safe on
// a nil receiver so lookups chain.
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// childrenNamed returns every direct child with the given name.
func (n *node) childrenNamed(name string) []*node {
	if n == nil {
		return nil
	}
	var matched []*node
	for _, c := range n.children {
		if c.name == name {
			matched = append(matched, c)
		}
	}
	return matched
}

// trimmedText returns the node's own character data, whitespace-trimmed.
func (n *node) trimmedText() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text)
}

// attr returns an attribute value, or empty.
func (n *node) attr(name string) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.attrs[name])
}

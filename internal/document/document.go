// Package document parses SOPR disclosure XML into a lightweight element tree.
//
// The tree keeps only what flattening needs: element names, attributes, and
// child elements. Names are matched case-insensitively because the published
// dumps have changed capitalisation between releases.
package document

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// RootElement is the name of the container every disclosure document must open with.
const RootElement = "publicfilings"

// ErrNotFilings is returned when a document parses but its root is not a filings container.
var ErrNotFilings = errors.New("document root is not a filings container")

// Node is a single XML element.
type Node struct {
	Name     string
	attrs    map[string]string
	Children []*Node
}

// Attr returns the raw (XML-decoded) attribute value and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	value, ok := n.attrs[strings.ToLower(name)]
	return value, ok
}

// Is reports whether the element has the given name.
func (n *Node) Is(name string) bool {
	return n != nil && strings.EqualFold(n.Name, name)
}

// Child returns the first direct child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.Is(name) {
			return child
		}
	}
	return nil
}

// ChildrenNamed returns the direct children with the given name in document order.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, child := range n.Children {
		if child.Is(name) {
			out = append(out, child)
		}
	}
	return out
}

// Descendants returns every element below n with the given name, depth first.
func (n *Node) Descendants(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, child := range n.Children {
		if child.Is(name) {
			out = append(out, child)
		}
		out = append(out, child.Descendants(name)...)
	}
	return out
}

// Document is one parsed source file.
type Document struct {
	Name string
	Root *Node
}

// Filings returns the filing elements directly under the root in document order.
func (d *Document) Filings() []*Node {
	if d == nil || d.Root == nil {
		return nil
	}
	return d.Root.ChildrenNamed("filing")
}

// Parse reads a whole document. The context bounds parse time: it is checked
// between tokens, so a runaway document fails with the context's error.
func Parse(ctx context.Context, name string, r io.Reader) (*Document, error) {
	decoder := newDecoder(r)

	var (
		root  *Node
		stack []*Node
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parse %s aborted: %w", name, err)
		}

		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing XML %s: %w", name, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			node := newNode(t)
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("error parsing XML %s: multiple root elements", name)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("error parsing XML %s: no root element", name)
	}
	if !root.Is(RootElement) {
		return nil, fmt.Errorf("%s: %w (found %q)", name, ErrNotFilings, root.Name)
	}

	return &Document{Name: name, Root: root}, nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// newDecoder transcodes BOM-marked input to UTF-8 up front. The SOPR dumps are
// UTF-16 with a BOM, which encoding/xml cannot read far enough to find the prolog.
// Once transcoded, the prolog's encoding label must be ignored.
func newDecoder(r io.Reader) *xml.Decoder {
	buffered := bufio.NewReader(r)
	head, _ := buffered.Peek(3)

	var (
		input      io.Reader = buffered
		transcoded bool
	)
	if bytes.HasPrefix(head, bomUTF8) || bytes.HasPrefix(head, bomUTF16LE) || bytes.HasPrefix(head, bomUTF16BE) {
		input = transform.NewReader(buffered, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
		transcoded = true
	}

	decoder := xml.NewDecoder(input)
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = func(label string, in io.Reader) (io.Reader, error) {
		if transcoded {
			return in, nil
		}
		return charset.NewReaderLabel(label, in)
	}
	return decoder
}

func newNode(start xml.StartElement) *Node {
	node := &Node{
		Name:  start.Name.Local,
		attrs: make(map[string]string, len(start.Attr)),
	}
	for _, attr := range start.Attr {
		key := strings.ToLower(attr.Name.Local)
		if _, seen := node.attrs[key]; seen {
			continue
		}
		node.attrs[key] = attr.Value
	}
	return node
}

// NewNode builds an element by hand; attribute names are case-folded like parsed ones.
func NewNode(name string, attrs map[string]string, children ...*Node) *Node {
	node := &Node{Name: name, attrs: make(map[string]string, len(attrs)), Children: children}
	for key, value := range attrs {
		node.attrs[strings.ToLower(key)] = value
	}
	return node
}

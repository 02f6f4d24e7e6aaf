// Package xml provides well-formedness checks, XPath queries and pretty
// printing for metadata documents.
//
// Security Notes:
//   - External entities are never fetched: parsing goes through Go's
//     xml.Decoder, directly or through xmlquery.
//   - Validate disables entity expansion beyond the five predefined entities.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/encoding"
)

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node is an element, attribute or text node of a Document.
type Node struct {
	node *xmlquery.Node
}

// ValidationResult reports whether a document is well-formed.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is a well-formedness violation.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// FormatOptions controls pretty printing.
type FormatOptions struct {
	Indent string // defaults to two spaces
}

// Parse parses data into a queryable Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that data is a well-formed XML document with exactly one
// root element. Schema validation is not performed.
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}
	fail := func(dec *xml.Decoder, msg string) ValidationResult {
		line, col := dec.InputPos()
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Line: line, Column: col, Message: msg})
		return result
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	// XXE Protection (CWE-611)
	dec.Entity = map[string]string{}

	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(dec, err.Error())
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return fail(dec, "more than one root element")
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots == 0 {
		return fail(dec, "no root element")
	}
	return result
}

// Format pretty prints data. Elements with mixed content, such as DocBook
// paragraphs, are written on one line exactly as parsed so that their text is
// not altered.
func Format(data []byte, opts FormatOptions) ([]byte, error) {
	if opts.Indent == "" {
		opts.Indent = "  "
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// The parser synthesizes a declaration when the input has none.
	declared := hasDeclaration(data)

	var buf bytes.Buffer
	for n := doc.root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.DeclarationNode && !declared {
			continue
		}
		formatNode(&buf, n, 0, opts.Indent)
	}
	return buf.Bytes(), nil
}

func hasDeclaration(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("<?xml"))
}

func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, a := range n.Attr {
			fmt.Fprintf(w, ` %s="%s"`, a.Name.Local, encoding.EscapeXMLAttr(a.Value))
		}
		w.WriteString("?>\n")

	case xmlquery.CommentNode:
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteString("<!--" + n.Data + "-->\n")

	case xmlquery.TextNode, xmlquery.CharDataNode:
		// Only reached for stray top-level text.
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(encoding.EscapeXMLText(text) + "\n")
		}

	case xmlquery.ElementNode:
		w.WriteString(strings.Repeat(indent, depth))
		if n.FirstChild == nil {
			writeStartTag(w, n, true)
			w.WriteString("\n")
			return
		}
		if isMixed(n) {
			w.WriteString(n.OutputXML(true))
			w.WriteString("\n")
			return
		}
		writeStartTag(w, n, false)
		w.WriteString("\n")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.TextNode {
				continue
			}
			formatNode(w, c, depth+1, indent)
		}
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteString("</" + qualifiedName(n.Prefix, n.Data) + ">\n")
	}
}

// isMixed reports whether n holds non-whitespace text or CDATA, in which case
// its layout is significant.
func isMixed(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.CharDataNode:
			return true
		case xmlquery.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		}
	}
	return false
}

func writeStartTag(w *bytes.Buffer, n *xmlquery.Node, selfClose bool) {
	w.WriteString("<" + qualifiedName(n.Prefix, n.Data))
	for _, a := range n.Attr {
		fmt.Fprintf(w, ` %s="%s"`, qualifiedName(a.Name.Space, a.Name.Local), encoding.EscapeXMLAttr(a.Value))
	}
	if selfClose {
		w.WriteString("/>")
	} else {
		w.WriteString(">")
	}
}

func qualifiedName(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// Root returns the document element.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return &Node{node: c}
		}
	}
	return nil
}

// XPath returns every node matching expr.
func (d *Document) XPath(expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	nodes := xmlquery.QuerySelectorAll(d.root, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst returns the first node matching expr, or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	n := xmlquery.QuerySelector(d.root, compiled)
	if n == nil {
		return nil, nil
	}
	return &Node{node: n}, nil
}

// Evaluate evaluates expr and returns its value as text. Node sets yield the
// text of their first node; numbers and booleans are formatted.
func (d *Document) Evaluate(expr string) (string, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return "", fmt.Errorf("invalid xpath: %w", err)
	}
	switch v := compiled.Evaluate(xmlquery.CreateXPathNavigator(d.root)).(type) {
	case *xpath.NodeIterator:
		if v.MoveNext() {
			return v.Current().Value(), nil
		}
		return "", nil
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", v), "0"), "."), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Serialize writes the document back out.
func (d *Document) Serialize() []byte {
	if d.root == nil {
		return nil
	}
	return []byte(d.root.OutputXML(true))
}

// Name returns the local name of the node.
func (n *Node) Name() string {
	if n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	if n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// InnerXML returns the serialized children of the node.
func (n *Node) InnerXML() string {
	if n.node == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.node.FirstChild; c != nil; c = c.NextSibling {
		buf.WriteString(c.OutputXML(true))
	}
	return buf.String()
}

// Children returns the child elements.
func (n *Node) Children() []*Node {
	if n.node == nil {
		return nil
	}
	var children []*Node
	for c := n.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: c})
		}
	}
	return children
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) string {
	if n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

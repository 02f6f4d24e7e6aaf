// Package docbook converts long-form metadata text between the HTML subset
// used for display and the DocBook subset embedded in EML documents.
//
// Both directions are best effort and never fail. Tags outside the supported
// vocabulary, and tags without a matching partner, are emitted as escaped
// text. Whitespace is normalized everywhere except inside preformatted
// regions.
package docbook

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/encoding"
)

// element describes how a recognized tag is rewritten.
type element struct {
	open, close string // replacement markup; open may hold a %s for attr
	attr        string // required attribute copied into open
	block       bool
	pre         bool
}

var htmlToDocBook = map[string]element{
	"div": {open: "<section>", close: "</section>", block: true},
	"h1":  {open: "<title>", close: "</title>", block: true},
	"h2":  {open: "<title>", close: "</title>", block: true},
	"h3":  {open: "<title>", close: "</title>", block: true},
	"h4":  {open: "<title>", close: "</title>", block: true},
	"h5":  {open: "<title>", close: "</title>", block: true},
	"ul":  {open: "<para><itemizedlist>", close: "</itemizedlist></para>", block: true},
	"ol":  {open: "<para><orderedlist>", close: "</orderedlist></para>", block: true},
	"li":  {open: "<listitem><para>", close: "</para></listitem>", block: true},
	"p":   {open: "<para>", close: "</para>", block: true},
	"pre": {open: "<literalLayout>", close: "</literalLayout>", block: true, pre: true},
	"b":   {open: "<emphasis>", close: "</emphasis>"},
	"sub": {open: "<subscript>", close: "</subscript>"},
	"sup": {open: "<superscript>", close: "</superscript>"},
	"a":   {open: `<ulink url="%s"><citetitle>`, close: "</citetitle></ulink>", attr: "href"},
}

var docBookToHTML = map[string]element{
	"section":       {open: "<div>", close: "</div>", block: true},
	"title":         {open: "<h1>", close: "</h1>", block: true},
	"itemizedlist":  {open: "<ul>", close: "</ul>", block: true},
	"orderedlist":   {open: "<ol>", close: "</ol>", block: true},
	"listitem":      {open: "<li>", close: "</li>", block: true},
	"para":          {open: "<p>", close: "</p>", block: true},
	"literallayout": {open: "<pre>", close: "</pre>", block: true, pre: true},
	"emphasis":      {open: "<b>", close: "</b>"},
	"subscript":     {open: "<sub>", close: "</sub>"},
	"superscript":   {open: "<sup>", close: "</sup>"},
	"ulink":         {open: `<a href="%s">`, close: "</a>", attr: "url"},
	"citetitle":     {},
}

// ToDocBook converts display HTML to DocBook markup.
func ToDocBook(html string) string {
	return transcode(html, htmlToDocBook, nil)
}

// ToHTML converts DocBook markup to display HTML. Paragraph wrappers around
// lists and around the single paragraph of a list item are removed, so
// ToHTML(ToDocBook(s)) reproduces s for canonical input.
func ToHTML(docbook string) string {
	return transcode(docbook, docBookToHTML, unwrapParas)
}

// StripOuterTag removes the element wrapping s, for example the <abstract>
// element around captured EML content, and trims the remainder. Input that is
// not a single wrapped element is only trimmed.
func StripOuterTag(s string) string {
	s = strings.TrimSpace(s)
	toks := tokenize(s)
	if len(toks) == 0 || !strings.HasPrefix(s, toks[0].raw) {
		return s
	}
	if toks[0].kind == selfClosingToken && len(toks) == 1 {
		return ""
	}
	if toks[0].kind != startToken {
		return s
	}
	pair(toks, map[string]element{toks[0].name: {}})
	first, last := toks[0], toks[len(toks)-1]
	if first.match != len(toks)-1 || !strings.HasSuffix(s, last.raw) {
		return s
	}
	return strings.TrimSpace(s[len(first.raw) : len(s)-len(last.raw)])
}

// FromRawXML converts a captured free-text element into stored HTML. Named
// HTML entities such as &nbsp; are decoded to characters; the predefined XML
// entities are kept.
func FromRawXML(raw string) string {
	return ToHTML(decodeNamedEntities(StripOuterTag(raw)))
}

var namedEntity = regexp.MustCompile(`&[A-Za-z][A-Za-z0-9]*;`)

func decodeNamedEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return namedEntity.ReplaceAllStringFunc(s, func(e string) string {
		switch e {
		case "&amp;", "&lt;", "&gt;", "&quot;", "&apos;":
			return e
		}
		return html.UnescapeString(e)
	})
}

// Paragraphs wraps top-level content that is not already inside a para or
// section element into para elements, as required where EML expects
// structured text.
func Paragraphs(docbook string) string {
	docbook = strings.TrimSpace(docbook)
	if docbook == "" {
		return ""
	}

	toks := tokenize(docbook)
	pair(toks, map[string]element{"para": {}, "section": {}})

	var out, loose strings.Builder
	flush := func() {
		if t := strings.TrimSpace(loose.String()); t != "" {
			out.WriteString("<para>")
			out.WriteString(t)
			out.WriteString("</para>")
		}
		loose.Reset()
	}
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		isBlock := t.name == "para" || t.name == "section"
		switch {
		case t.kind == startToken && isBlock && t.match > i:
			flush()
			for k := i; k <= t.match; k++ {
				out.WriteString(toks[k].raw)
			}
			i = t.match
		case t.kind == selfClosingToken && isBlock:
			flush()
			out.WriteString(t.raw)
		default:
			loose.WriteString(t.raw)
		}
	}
	flush()
	return out.String()
}

// pair links start and end tags of recognized elements. Start tags left open
// by a mismatched end tag, and end tags without an open partner, stay
// unpaired.
func pair(toks []token, vocab map[string]element) {
	var open []int
	for i := range toks {
		t := &toks[i]
		el, known := vocab[t.name]
		if !known {
			continue
		}
		switch t.kind {
		case startToken:
			if el.attr != "" {
				if _, ok := attrValue(t.attrs, el.attr); !ok {
					continue
				}
			}
			open = append(open, i)
		case endToken:
			for k := len(open) - 1; k >= 0; k-- {
				if toks[open[k]].name == t.name {
					toks[open[k]].match = i
					t.match = open[k]
					open = open[:k]
					break
				}
			}
		}
	}
}

// unwrapParas drops para elements that only wrap a list, and the para that is
// the sole content of a list item.
func unwrapParas(toks []token) {
	for i, t := range toks {
		if t.kind != startToken || t.match < 0 {
			continue
		}
		switch t.name {
		case "para":
			k := nextContent(toks, i+1)
			if k < 0 || toks[k].kind != startToken || toks[k].match < 0 {
				continue
			}
			if toks[k].name != "itemizedlist" && toks[k].name != "orderedlist" {
				continue
			}
			if nextContent(toks, toks[k].match+1) == t.match {
				toks[i].drop = true
				toks[t.match].drop = true
			}
		case "listitem":
			k := nextContent(toks, i+1)
			if k < 0 || toks[k].kind != startToken || toks[k].name != "para" || toks[k].match < 0 {
				continue
			}
			if nextContent(toks, toks[k].match+1) == t.match {
				toks[k].drop = true
				toks[toks[k].match].drop = true
			}
		}
	}
}

// nextContent returns the index of the first token at or after i that is not
// whitespace-only text.
func nextContent(toks []token, i int) int {
	for ; i < len(toks); i++ {
		if toks[i].kind != textToken || strings.TrimSpace(toks[i].raw) != "" {
			return i
		}
	}
	return -1
}

type pieceKind int

const (
	pieceText pieceKind = iota
	piecePre
	pieceInline
	pieceBlock
)

type piece struct {
	kind pieceKind
	s    string
}

func transcode(s string, vocab map[string]element, fixup func([]token)) string {
	toks := tokenize(s)
	pair(toks, vocab)
	if fixup != nil {
		fixup(toks)
	}

	var pieces []piece
	preDepth := 0
	text := func(s string) {
		kind := pieceText
		if preDepth > 0 {
			kind = piecePre
		}
		if n := len(pieces); n > 0 && pieces[n-1].kind == kind {
			pieces[n-1].s += s
			return
		}
		pieces = append(pieces, piece{kind: kind, s: s})
	}
	tag := func(el element, s string) {
		if s == "" {
			return
		}
		kind := pieceInline
		if el.block {
			kind = pieceBlock
		}
		pieces = append(pieces, piece{kind: kind, s: s})
	}

	for _, t := range toks {
		el := vocab[t.name]
		switch t.kind {
		case textToken:
			text(encoding.EscapeOnce(t.raw))
		case cdataToken:
			text(encoding.EscapeXMLText(t.text))
		case startToken:
			if t.match < 0 {
				text(encoding.EscapeOnce(t.raw))
				continue
			}
			if t.drop {
				continue
			}
			tag(el, openTag(el, t))
			if el.pre {
				preDepth++
			}
		case endToken:
			if t.match < 0 {
				text(encoding.EscapeOnce(t.raw))
				continue
			}
			if t.drop {
				continue
			}
			if el.pre {
				preDepth--
			}
			tag(el, el.close)
		case selfClosingToken:
			_, known := vocab[t.name]
			if !known {
				text(encoding.EscapeOnce(t.raw))
				continue
			}
			if el.attr != "" {
				if _, ok := attrValue(t.attrs, el.attr); !ok {
					text(encoding.EscapeOnce(t.raw))
					continue
				}
			}
			tag(el, openTag(el, t))
			tag(el, el.close)
		}
	}
	return render(pieces)
}

func openTag(el element, t token) string {
	if el.attr == "" {
		return el.open
	}
	v, _ := attrValue(t.attrs, el.attr)
	v = strings.ReplaceAll(encoding.EscapeOnce(v), `"`, "&quot;")
	return fmt.Sprintf(el.open, v)
}

// render joins pieces, collapsing whitespace in text and trimming it next to
// block tags. Preformatted text is written unchanged.
func render(pieces []piece) string {
	var sb strings.Builder
	for i, p := range pieces {
		if p.kind != pieceText {
			sb.WriteString(p.s)
			continue
		}
		t := collapseSpace(p.s)
		if i == 0 || pieces[i-1].kind == pieceBlock {
			t = strings.TrimLeft(t, " ")
		}
		if i == len(pieces)-1 || pieces[i+1].kind == pieceBlock {
			t = strings.TrimRight(t, " ")
		}
		sb.WriteString(t)
	}
	return sb.String()
}

func collapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if isCollapsibleSpace(r) {
			space = true
			s = s[size:]
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteString(s[:size])
		s = s[size:]
	}
	if space {
		sb.WriteByte(' ')
	}
	return sb.String()
}

// isCollapsibleSpace reports XML whitespace. A no-break space is content.
func isCollapsibleSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

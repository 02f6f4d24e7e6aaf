// Package encoding provides shared text encoding and escaping utilities.
package encoding

import "strings"

// maxEntityLen bounds how far EscapeOnce looks ahead for an entity reference,
// counted from the ampersand up to and including the semicolon.
const maxEntityLen = 10

// namedEntities are the XML entities passed through by EscapeOnce.
var namedEntities = []string{"&amp;", "&lt;", "&gt;", "&quot;", "&apos;"}

// EscapeXMLText escapes only the basic XML entities for text content.
// Existing entity references are escaped again; use EscapeOnce for text
// that may already contain them.
func EscapeXMLText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// EscapeXMLAttr escapes text for use in XML attributes.
// Includes quote escaping in addition to basic XML entities.
func EscapeXMLAttr(s string) string {
	s = EscapeXMLText(s)
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// EscapeOnce escapes &, < and > like EscapeXMLText, but leaves entity
// references that are already escaped untouched, so that
// EscapeOnce(EscapeOnce(s)) == EscapeOnce(s).
//
// Recognized references are &amp; &lt; &gt; &quot; &apos; and numeric
// character references (&#169; &#xA9;).
func EscapeOnce(s string) string {
	if !strings.ContainsAny(s, "&<>") {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '&':
			if n := entityLen(s[i:]); n > 0 {
				sb.WriteString(s[i : i+n])
				i += n - 1
				continue
			}
			sb.WriteString("&amp;")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// entityLen returns the length of the entity reference at the start of s, or 0
// if s does not start with a recognized reference.
func entityLen(s string) int {
	for _, e := range namedEntities {
		if strings.HasPrefix(s, e) {
			return len(e)
		}
	}
	if len(s) < 4 || s[1] != '#' {
		return 0
	}

	hex := s[2] == 'x' || s[2] == 'X'
	start := 2
	if hex {
		start = 3
	}
	for j := start; j < len(s) && j < maxEntityLen; j++ {
		c := s[j]
		switch {
		case c == ';':
			if j == start {
				return 0
			}
			return j + 1
		case c >= '0' && c <= '9':
		case hex && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return 0
		}
	}
	return 0
}

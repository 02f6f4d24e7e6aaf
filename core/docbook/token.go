package docbook

import "strings"

type tokenKind int

const (
	textToken tokenKind = iota
	startToken
	endToken
	selfClosingToken
	cdataToken
)

// token is one lexical unit of a markup fragment. Comments, processing
// instructions and doctype declarations never become tokens.
type token struct {
	kind  tokenKind
	raw   string // exact source text
	name  string // lower-cased element name for tags
	attrs string // raw attribute text for start tags
	text  string // character data for CDATA sections
	match int    // index of the paired start or end tag, -1 if unpaired
	drop  bool   // paired tag removed from the output
}

// tokenize splits s into text, tags and CDATA sections. A '<' that does not
// begin well-formed markup is kept as text.
func tokenize(s string) []token {
	var toks []token
	textStart := 0
	flush := func(end int) {
		if end > textStart {
			toks = append(toks, token{kind: textToken, raw: s[textStart:end], match: -1})
		}
	}

	for i := 0; i < len(s); {
		if s[i] != '<' {
			i++
			continue
		}
		tok, n, keep := scanMarkup(s[i:])
		if n == 0 {
			i++
			continue
		}
		flush(i)
		if keep {
			tok.match = -1
			toks = append(toks, tok)
		}
		i += n
		textStart = i
	}
	flush(len(s))
	return toks
}

// scanMarkup reads the markup construct at the start of s. It returns the
// consumed length (0 if s does not start with markup) and whether the
// construct produces a token.
func scanMarkup(s string) (token, int, bool) {
	switch {
	case strings.HasPrefix(s, "<!--"):
		end := strings.Index(s[4:], "-->")
		if end < 0 {
			return token{}, 0, false
		}
		return token{}, end + 7, false
	case strings.HasPrefix(s, "<![CDATA["):
		end := strings.Index(s[9:], "]]>")
		if end < 0 {
			return token{}, 0, false
		}
		n := end + 12
		return token{kind: cdataToken, raw: s[:n], text: s[9 : 9+end]}, n, true
	case strings.HasPrefix(s, "<?"):
		end := strings.Index(s, "?>")
		if end < 0 {
			return token{}, 0, false
		}
		return token{}, end + 2, false
	case strings.HasPrefix(s, "<!"):
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return token{}, 0, false
		}
		return token{}, end + 1, false
	case strings.HasPrefix(s, "</"):
		name := scanName(s[2:])
		if name == "" {
			return token{}, 0, false
		}
		rest := strings.TrimLeft(s[2+len(name):], " \t\r\n")
		if !strings.HasPrefix(rest, ">") {
			return token{}, 0, false
		}
		n := len(s) - len(rest) + 1
		return token{kind: endToken, raw: s[:n], name: strings.ToLower(name)}, n, true
	}

	name := scanName(s[1:])
	if name == "" {
		return token{}, 0, false
	}
	end := tagEnd(s, 1+len(name))
	if end < 0 {
		return token{}, 0, false
	}
	tok := token{kind: startToken, raw: s[:end+1], name: strings.ToLower(name)}
	attrs := s[1+len(name) : end]
	if strings.HasSuffix(attrs, "/") {
		tok.kind = selfClosingToken
		attrs = attrs[:len(attrs)-1]
	}
	tok.attrs = attrs
	return tok, end + 1, true
}

// scanName returns the element name at the start of s.
func scanName(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '-' || c == '_' || c == ':' || c == '.'):
		default:
			return s[:i]
		}
	}
	return s
}

// tagEnd finds the closing '>' of a start tag, skipping quoted attribute
// values. It returns -1 if the tag is not terminated.
func tagEnd(s string, from int) int {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '<':
			return -1
		case c == '>':
			return i
		}
	}
	return -1
}

// attrValue looks up an attribute in raw start-tag attribute text.
func attrValue(attrs, key string) (string, bool) {
	const space = " \t\r\n"
	s := attrs
	for {
		s = strings.TrimLeft(s, space)
		if s == "" {
			return "", false
		}
		end := strings.IndexAny(s, "="+space)
		if end < 0 {
			return "", strings.EqualFold(s, key)
		}
		name := s[:end]
		s = strings.TrimLeft(s[end:], space)
		if !strings.HasPrefix(s, "=") {
			if strings.EqualFold(name, key) {
				return "", true
			}
			continue
		}
		s = strings.TrimLeft(s[1:], space)

		var val string
		if s != "" && (s[0] == '"' || s[0] == '\'') {
			end := strings.IndexByte(s[1:], s[0])
			if end < 0 {
				return "", false
			}
			val = s[1 : 1+end]
			s = s[end+2:]
		} else {
			end := strings.IndexAny(s, space)
			if end < 0 {
				end = len(s)
			}
			val = s[:end]
			s = s[end:]
		}
		if strings.EqualFold(name, key) {
			return val, true
		}
	}
}

// Package digester binds XML documents to Go objects through declarative
// path rules.
//
// A RuleSet maps slash-joined element paths (for example
// "eml/dataset/creator/individualName/surName") to typed actions on an object
// stack. Bind seeds the stack with a root object, streams the document and
// fires the rules of each element at its start and end tag. The engine knows
// nothing about any particular dialect; new dialects only need a new table.
//
// Failures come in two kinds. Malformed XML and misuse of the stack abort the
// bind with an error. Values that cannot be converted are reported as
// FieldErrors in the Result and the field is left unset.
package digester

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/errors"
)

// Result is the outcome of a successful Bind.
type Result struct {
	// Root is the object that seeded the stack.
	Root any
	// Warnings lists recovered per-field failures in document order.
	Warnings []*FieldError
}

// frame is the per-element state between a start and an end tag.
type frame struct {
	path  string
	attrs []xml.Attr
	text  strings.Builder
	start int64
	rules []*Rule
}

func (f *frame) attr(name string) (string, bool) {
	for _, a := range f.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (f *frame) trimmed() string {
	return strings.TrimSpace(f.text.String())
}

// binder owns the object stack of one Bind call.
type binder struct {
	data     []byte
	offset   int64 // input offset after the current tag
	stack    []any
	warnings []*FieldError
}

func (b *binder) push(v any) {
	b.stack = append(b.stack, v)
}

func (b *binder) raw(f *frame) string {
	return string(b.data[f.start:b.offset])
}

func top[T any](b *binder) (*T, error) {
	if len(b.stack) == 0 {
		return nil, ErrStackUnderflow
	}
	v := b.stack[len(b.stack)-1]
	t, ok := v.(*T)
	if !ok {
		return nil, &StackTypeError{Want: fmt.Sprintf("%T", (*T)(nil)), Got: fmt.Sprintf("%T", v)}
	}
	return t, nil
}

// pop removes the top object. The seeded root can never be popped.
func pop[T any](b *binder) (*T, error) {
	if len(b.stack) < 2 {
		return nil, ErrStackUnderflow
	}
	t, err := top[T](b)
	if err != nil {
		return nil, err
	}
	b.stack = b.stack[:len(b.stack)-1]
	return t, nil
}

// Bind reads one XML document from r and applies rules to it, starting with
// root as the only object on the stack. root must be a pointer to the type the
// top-level rules operate on.
func Bind(r io.Reader, rules *RuleSet, root any) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", "", err)
	}
	return BindBytes(data, rules, root)
}

// BindBytes is like Bind for an in-memory document.
func BindBytes(data []byte, rules *RuleSet, root any) (*Result, error) {
	data, err := toUTF8(data)
	if err != nil {
		return nil, &errors.ParseError{Format: "XML", Message: err.Error(), Err: err}
	}

	b := &binder{data: data, stack: []any{root}}
	if err := b.run(rules); err != nil {
		return nil, err
	}
	return &Result{Root: root, Warnings: b.warnings}, nil
}

func (b *binder) run(rules *RuleSet) error {
	dec := newDecoder(bytes.NewReader(b.data))

	var (
		names  []string
		frames []*frame
		seen   bool
	)
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return syntaxError(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seen = true
			names = append(names, t.Name.Local)
			f := &frame{
				path:  rulePath(names, rules.relative),
				attrs: t.Attr,
				start: start,
			}
			f.rules = rules.match(f.path, f)
			frames = append(frames, f)
			if err := b.fire(f, true, dec); err != nil {
				return err
			}

		case xml.CharData:
			if n := len(frames); n > 0 {
				frames[n-1].text.Write(t)
			}

		case xml.EndElement:
			n := len(frames)
			f := frames[n-1]
			frames = frames[:n-1]
			names = names[:len(names)-1]
			if err := b.fire(f, false, dec); err != nil {
				return err
			}
		}
	}

	if !seen {
		return &errors.ParseError{Format: "XML", Message: "no root element"}
	}
	return nil
}

// fire runs the begin or end actions of the rules matched for f in table
// order. Field errors are recorded and the remaining rules still run.
func (b *binder) fire(f *frame, begin bool, dec *xml.Decoder) error {
	if len(f.rules) == 0 {
		return nil
	}
	b.offset = dec.InputOffset()
	for _, r := range f.rules {
		action := r.end
		if begin {
			action = r.begin
		}
		if action == nil {
			continue
		}
		err := action(b, f)
		if err == nil {
			continue
		}
		var fe *FieldError
		if errors.As(err, &fe) {
			b.warnings = append(b.warnings, fe)
			continue
		}
		return errors.Wrapf(err, "rule %s", r)
	}
	return nil
}

func rulePath(names []string, relative bool) string {
	if relative {
		if len(names) < 2 {
			return ""
		}
		names = names[1:]
	}
	return strings.Join(names, "/")
}

func syntaxError(err error) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &errors.ParseError{Format: "XML", Line: se.Line, Message: se.Msg, Err: err}
	}
	return &errors.ParseError{Format: "XML", Message: err.Error(), Err: err}
}

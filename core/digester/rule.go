package digester

import (
	"fmt"
	"strings"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/errors"
)

type ruleKind int

const (
	kindCreate ruleKind = iota
	kindSetText
	kindSetParsed
	kindSetAttr
	kindCall
	kindCallWithAttr
	kindSetNext
	kindRawXML
)

var kindNames = map[ruleKind]string{
	kindCreate:       "create",
	kindSetText:      "set-text",
	kindSetParsed:    "set-parsed",
	kindSetAttr:      "set-attr",
	kindCall:         "call",
	kindCallWithAttr: "call-with-attr",
	kindSetNext:      "set-next",
	kindRawXML:       "raw-xml",
}

func (k ruleKind) String() string {
	return kindNames[k]
}

// Rule binds an element path to one action on the object stack. Rules are
// built with the typed constructors in this package and are immutable.
type Rule struct {
	Path string

	kind  ruleKind
	attr  string // attribute read at element start
	when  string // qualifier attribute
	value string // required qualifier value, empty for any
	begin func(b *binder, f *frame) error
	end   func(b *binder, f *frame) error
}

// When returns a copy of r that fires only if the element carries attr. A
// non-empty value additionally requires the attribute to equal it.
func (r Rule) When(attr, value string) Rule {
	r.when = attr
	r.value = value
	return r
}

func (r Rule) String() string {
	s := r.kind.String() + " " + r.Path
	if r.when != "" {
		s += fmt.Sprintf("[@%s=%q]", r.when, r.value)
	}
	return s
}

func (r *Rule) matches(f *frame) bool {
	if r.when == "" {
		return true
	}
	v, ok := f.attr(r.when)
	return ok && (r.value == "" || v == r.value)
}

// Create pushes a new T when the element starts.
func Create[T any](path string) Rule {
	return Rule{
		Path: path,
		kind: kindCreate,
		begin: func(b *binder, f *frame) error {
			b.push(new(T))
			return nil
		},
	}
}

// SetText assigns the trimmed element text to the object on top of the stack.
func SetText[T any](path string, set func(*T, string)) Rule {
	return Rule{
		Path: path,
		kind: kindSetText,
		end: func(b *binder, f *frame) error {
			t, err := top[T](b)
			if err != nil {
				return err
			}
			set(t, f.trimmed())
			return nil
		},
	}
}

// SetParsed converts the trimmed element text with parse before assigning it.
// Empty text leaves the field unset. A conversion failure is reported as a
// FieldError and also leaves the field unset.
func SetParsed[T, V any](path string, parse func(string) (V, error), set func(*T, V)) Rule {
	return Rule{
		Path: path,
		kind: kindSetParsed,
		end: func(b *binder, f *frame) error {
			t, err := top[T](b)
			if err != nil {
				return err
			}
			text := f.trimmed()
			if text == "" {
				return nil
			}
			v, err := parse(text)
			if err != nil {
				return &FieldError{Path: f.path, Text: text, Err: err}
			}
			set(t, v)
			return nil
		},
	}
}

// SetAttr assigns the value of attr to the object on top of the stack when
// the element starts. Elements without the attribute are ignored.
func SetAttr[T any](path, attr string, set func(*T, string)) Rule {
	return Rule{
		Path: path,
		kind: kindSetAttr,
		attr: attr,
		begin: func(b *binder, f *frame) error {
			v, ok := f.attr(attr)
			if !ok {
				return nil
			}
			t, err := top[T](b)
			if err != nil {
				return err
			}
			set(t, strings.TrimSpace(v))
			return nil
		},
	}
}

// Call invokes fn with the trimmed element text. An error returned by fn is
// recorded as a FieldError.
func Call[T any](path string, fn func(*T, string) error) Rule {
	return Rule{
		Path: path,
		kind: kindCall,
		end: func(b *binder, f *frame) error {
			t, err := top[T](b)
			if err != nil {
				return err
			}
			text := f.trimmed()
			if err := fn(t, text); err != nil {
				return &FieldError{Path: f.path, Text: text, Err: err}
			}
			return nil
		},
	}
}

// CallWithAttr invokes fn with the trimmed element text and the value of attr
// read when the element started (empty if absent).
func CallWithAttr[T any](path, attr string, fn func(t *T, text, attr string) error) Rule {
	return Rule{
		Path: path,
		kind: kindCallWithAttr,
		attr: attr,
		end: func(b *binder, f *frame) error {
			t, err := top[T](b)
			if err != nil {
				return err
			}
			text := f.trimmed()
			v, _ := f.attr(attr)
			if err := fn(t, text, strings.TrimSpace(v)); err != nil {
				return &FieldError{Path: f.path, Text: text, Err: err}
			}
			return nil
		},
	}
}

// SetNext pops the child C when the element ends and links it to the parent
// P now on top of the stack.
func SetNext[P, C any](path string, link func(parent *P, child *C)) Rule {
	return Rule{
		Path: path,
		kind: kindSetNext,
		end: func(b *binder, f *frame) error {
			child, err := pop[C](b)
			if err != nil {
				return err
			}
			parent, err := top[P](b)
			if err != nil {
				return err
			}
			link(parent, child)
			return nil
		},
	}
}

// SetRawXML assigns the element's outer XML, exactly as it appears in the
// input, to the object on top of the stack.
func SetRawXML[T any](path string, set func(*T, string)) Rule {
	return Rule{
		Path: path,
		kind: kindRawXML,
		end: func(b *binder, f *frame) error {
			t, err := top[T](b)
			if err != nil {
				return err
			}
			set(t, b.raw(f))
			return nil
		},
	}
}

// RuleSet is an immutable table of rules indexed by path. It is safe for
// concurrent use by any number of Bind calls.
type RuleSet struct {
	byPath   map[string][]Rule
	size     int
	relative bool
}

// Option configures a RuleSet.
type Option func(*RuleSet)

// RelativeToRoot makes rule paths relative to the document element, so that
// "title" matches <dc><title> as well as <record><title>.
func RelativeToRoot() Option {
	return func(s *RuleSet) {
		s.relative = true
	}
}

// NewRuleSet indexes rules by path, keeping table order within each path.
// Every Create rule needs a SetNext rule on the same path with the same When
// qualifier.
func NewRuleSet(rules []Rule, opts ...Option) (*RuleSet, error) {
	s := &RuleSet{byPath: make(map[string][]Rule), size: len(rules)}
	for _, opt := range opts {
		opt(s)
	}

	creates := make(map[string]int)
	for i, r := range rules {
		if r.Path == "" || strings.HasPrefix(r.Path, "/") || strings.HasSuffix(r.Path, "/") {
			return nil, errors.NewValidation(fmt.Sprintf("rule %d", i), fmt.Sprintf("invalid path %q", r.Path))
		}
		if r.begin == nil && r.end == nil {
			return nil, errors.NewValidation(fmt.Sprintf("rule %d", i), "rule has no action")
		}
		key := r.Path
		if r.when != "" {
			key += fmt.Sprintf("[@%s=%q]", r.when, r.value)
		}
		switch r.kind {
		case kindCreate:
			creates[key]++
		case kindSetNext:
			creates[key]--
		}
		s.byPath[r.Path] = append(s.byPath[r.Path], r)
	}
	for key, n := range creates {
		if n != 0 {
			return nil, errors.NewValidation(key, "create and set-next rules are unbalanced")
		}
	}
	return s, nil
}

// MustRuleSet is like NewRuleSet but panics on an invalid table. It is meant
// for package-level rule tables.
func MustRuleSet(rules []Rule, opts ...Option) *RuleSet {
	s, err := NewRuleSet(rules, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	return s.size
}

// Paths returns the number of distinct paths with at least one rule.
func (s *RuleSet) Paths() int {
	return len(s.byPath)
}

// Rules returns the rules registered for path in table order.
func (s *RuleSet) Rules(path string) []Rule {
	return s.byPath[path]
}

func (s *RuleSet) match(path string, f *frame) []*Rule {
	rules := s.byPath[path]
	if len(rules) == 0 {
		return nil
	}
	matched := make([]*Rule, 0, len(rules))
	for i := range rules {
		if rules[i].matches(f) {
			matched = append(matched, &rules[i])
		}
	}
	return matched
}

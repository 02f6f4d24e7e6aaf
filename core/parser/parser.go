// Package parser recognizes and binds metadata documents of unknown dialect.
//
// A Parser holds an ordered list of candidate dialects. Parse buffers the
// input and binds it with each candidate in turn, returning the first
// document that has content. ParseDetected instead sniffs the dialect with
// Detect and binds with that table only.
package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/cache"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/cas"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/dc"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/digester"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/eml"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/logging"
)

// BindFunc binds a buffered document with one dialect's rule table.
type BindFunc func(data []byte) (metadata.Document, []*digester.FieldError, error)

// Candidate is one dialect the resolver may try.
type Candidate struct {
	Type metadata.Type
	Bind BindFunc
}

// EMLCandidate binds documents with the EML rule table.
var EMLCandidate = Candidate{
	Type: metadata.EML,
	Bind: func(data []byte) (metadata.Document, []*digester.FieldError, error) {
		doc := eml.New()
		res, err := digester.BindBytes(data, eml.Rules, doc)
		if err != nil {
			return nil, nil, err
		}
		return doc, res.Warnings, nil
	},
}

// DCCandidate binds documents with the Dublin Core rule table.
var DCCandidate = Candidate{
	Type: metadata.DC,
	Bind: func(data []byte) (metadata.Document, []*digester.FieldError, error) {
		doc := &dc.DublinCore{}
		res, err := digester.BindBytes(data, dc.Rules, doc)
		if err != nil {
			return nil, nil, err
		}
		return doc, res.Warnings, nil
	},
}

// DefaultCandidates returns the built-in dialects, richest first.
func DefaultCandidates() []Candidate {
	return []Candidate{EMLCandidate, DCCandidate}
}

// Resolution is a bound document together with how it was obtained.
type Resolution struct {
	Document metadata.Document
	Warnings []*digester.FieldError
	Digest   cas.Digest
	// Cached is set when the document came from the parser's cache.
	Cached bool
}

// Type returns the dialect of the resolved document.
func (r *Resolution) Type() metadata.Type {
	return r.Document.Type()
}

type cached struct {
	doc      metadata.Document
	warnings []*digester.FieldError
}

// Parser resolves documents against a fixed candidate list. A Parser is safe
// for concurrent use. Documents returned from the cache are shared between
// callers and must not be modified.
type Parser struct {
	candidates []Candidate
	cache      cache.Cache[string, cached]
}

// Option configures a Parser.
type Option func(*Parser)

// WithCandidates replaces the candidate list. Candidates are tried in the
// given order.
func WithCandidates(c ...Candidate) Option {
	return func(p *Parser) {
		p.candidates = append([]Candidate(nil), c...)
	}
}

// WithCache keeps up to size resolved documents keyed by the BLAKE3 digest
// of their input. A size of zero or less disables caching.
func WithCache(size int) Option {
	return WithCacheConfig(cache.Config{MaxSize: size})
}

// WithCacheConfig is WithCache with an expiry. Entries older than cfg.TTL
// are resolved again. A MaxSize of zero or less disables caching. Dropped
// entries are logged at debug level unless cfg.OnEvict is set.
func WithCacheConfig(cfg cache.Config) Option {
	return func(p *Parser) {
		if cfg.MaxSize <= 0 {
			p.cache = nil
			return
		}
		if cfg.OnEvict == nil {
			cfg.OnEvict = func(key, _ any) {
				logging.Debug("dropped cached document", "blake3", key)
			}
		}
		p.cache = cache.NewLRUCache[string, cached](cfg)
	}
}

// New returns a Parser trying EML before Dublin Core.
func New(opts ...Option) *Parser {
	p := &Parser{candidates: DefaultCandidates()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Resolve binds data with the default candidates and returns the first
// document with content.
func Resolve(data []byte) (metadata.Document, error) {
	return defaultParser.ParseBytes(data)
}

// Parse reads r fully and resolves it.
func (p *Parser) Parse(r io.Reader) (metadata.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, unreadable(err)
	}
	return p.ParseBytes(data)
}

// ParseBytes resolves an in-memory document.
func (p *Parser) ParseBytes(data []byte) (metadata.Document, error) {
	res, err := p.Resolve(data)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// Resolve tries each candidate in order. A candidate failing with a hard
// error, or producing a document without content, is skipped. Later
// candidates are not run once one succeeds.
func (p *Parser) Resolve(data []byte) (*Resolution, error) {
	digest := cas.Sum(data)
	if p.cache != nil {
		if c, ok := p.cache.Get(digest.BLAKE3); ok {
			return &Resolution{Document: c.doc, Warnings: c.warnings, Digest: digest, Cached: true}, nil
		}
	}

	for _, cand := range p.candidates {
		doc, warnings, err := cand.Bind(data)
		if err != nil {
			logging.CandidateRejected(cand.Type.String(), err.Error(), "digest", digest.Short())
			continue
		}
		if !metadata.HasContent(doc.BasicMetadata()) {
			logging.CandidateRejected(cand.Type.String(), "no content", "digest", digest.Short())
			continue
		}

		for _, w := range warnings {
			logging.FieldWarning(w.Path, w.Text, w.Err, "dialect", cand.Type.String())
		}
		logging.DocumentResolved(cand.Type.String(), len(warnings), "digest", digest.Short())

		if p.cache != nil {
			p.cache.Put(digest.BLAKE3, cached{doc: doc, warnings: warnings})
		}
		return &Resolution{Document: doc, Warnings: warnings, Digest: digest}, nil
	}
	return nil, ErrNoParser
}

// ParseDetected sniffs the dialect of r and binds it with that dialect's
// table only. Binding errors are returned unchanged.
func (p *Parser) ParseDetected(r io.Reader) (metadata.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, unreadable(err)
	}
	res, err := p.ResolveDetected(data)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// ResolveDetected is like ParseDetected for an in-memory document. The
// document is returned even when it has no content.
func (p *Parser) ResolveDetected(data []byte) (*Resolution, error) {
	t, err := Detect(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	cand, ok := p.candidate(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoParser, t)
	}

	doc, warnings, err := cand.Bind(data)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logging.FieldWarning(w.Path, w.Text, w.Err, "dialect", t.String())
	}
	digest := cas.Sum(data)
	logging.DocumentResolved(t.String(), len(warnings), "digest", digest.Short(), "detected", true)
	return &Resolution{Document: doc, Warnings: warnings, Digest: digest}, nil
}

// CacheStats returns the cache statistics, or false when caching is off.
func (p *Parser) CacheStats() (cache.Stats, bool) {
	if p.cache == nil {
		return cache.Stats{}, false
	}
	return p.cache.Stats(), true
}

func (p *Parser) candidate(t metadata.Type) (Candidate, bool) {
	for _, c := range p.candidates {
		if c.Type == t {
			return c, true
		}
	}
	return Candidate{}, false
}

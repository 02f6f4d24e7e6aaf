package parser

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/cache"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/dc"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/digester"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/eml"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/logging"
)

const emlDoc = `<?xml version="1.0" encoding="UTF-8"?>
<eml:eml xmlns:eml="https://eml.ecoinformatics.org/eml-2.2.0" packageId="abc/v7.41" system="http://gbif.org" scope="system">
  <dataset>
    <title>Birds of Vienna</title>
    <abstract><para>Observations of birds.</para></abstract>
  </dataset>
</eml:eml>`

const dcDoc = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns:dc="http://purl.org/dc/terms/">
  <dc:title>World Register of Marine Species</dc:title>
  <dc:rights>http://creativecommons.org/licenses/by/4.0/legalcode</dc:rights>
</metadata>`

// bothDoc binds to a document with content under either table.
const bothDoc = `<eml:eml xmlns:eml="https://eml.ecoinformatics.org/eml-2.2.0" xmlns:dc="http://purl.org/dc/terms/" packageId="both/v1.0">
  <dataset><title>EML title</title></dataset>
  <dc:title>DC title</dc:title>
</eml:eml>`

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want metadata.Type
	}{
		{"eml", emlDoc, metadata.EML},
		{"dublin core", dcDoc, metadata.DC},
		{"dc prefix dcterms", `<r xmlns:dcterms="http://purl.org/dc/terms/"><dcterms:title>x</dcterms:title></r>`, metadata.DC},
		{"default namespace", `<title xmlns="http://purl.org/dc/terms/">x</title>`, metadata.DC},
		{"eml wins over earlier dc", `<eml xmlns:dc="http://purl.org/dc/terms/"><dc:title>x</dc:title><dataset/></eml>`, metadata.EML},
		{"eml wins in mixed document", bothDoc, metadata.EML},
		{"unprefixed eml", `<eml><dataset/></eml>`, metadata.EML},
		{"dc kept after later syntax error", `<m xmlns:dc="http://purl.org/dc/terms/"><dc:title>x</dc:title><oops></m>`, metadata.DC},
		{"latin-1 declaration", "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><m xmlns:dc=\"http://purl.org/dc/terms/\"><dc:title>Caf\xe9</dc:title></m>", metadata.DC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectNoDialect(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		unreadable bool
	}{
		{"plain xml", `<root><a/></root>`, false},
		{"dataset too deep", `<wrap><eml><dataset/></eml></wrap>`, false},
		{"dataset not under eml", `<metadata><dataset/></metadata>`, false},
		{"other dc namespace", `<r xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>x</dc:title></r>`, false},
		{"empty", ``, false},
		{"malformed", `<root><a></root>`, true},
		{"undeclared entity", `<root>&bogus;</root>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Detect(strings.NewReader(tt.in))
			if !errors.Is(err, ErrNoDialect) {
				t.Fatalf("Detect() error = %v, want ErrNoDialect", err)
			}
			if got := errors.Is(err, ErrUnreadable); got != tt.unreadable {
				t.Errorf("errors.Is(err, ErrUnreadable) = %v, want %v (%v)", got, tt.unreadable, err)
			}
		})
	}
}

func TestDetectReadError(t *testing.T) {
	cause := errors.New("disk on fire")
	_, err := Detect(iotest.ErrReader(cause))
	if !errors.Is(err, ErrUnreadable) || !errors.Is(err, cause) {
		t.Errorf("Detect() error = %v, want ErrUnreadable wrapping the cause", err)
	}
}

func TestResolveEML(t *testing.T) {
	doc, err := Resolve([]byte(emlDoc))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	e, ok := doc.(*eml.Eml)
	if !ok {
		t.Fatalf("Resolve() = %T, want *eml.Eml", doc)
	}
	if e.GUID != "abc" {
		t.Errorf("GUID = %q, want abc", e.GUID)
	}
	if v := e.Version(); v.Major != 7 || v.Minor != 41 {
		t.Errorf("Version() = %v, want 7.41", v)
	}
	if got := e.PackageID(); got != "abc/v7.41" {
		t.Errorf("PackageID() = %q, want abc/v7.41", got)
	}
}

func TestResolveDublinCore(t *testing.T) {
	doc, err := Resolve([]byte(dcDoc))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	d, ok := doc.(*dc.DublinCore)
	if !ok {
		t.Fatalf("Resolve() = %T, want *dc.DublinCore", doc)
	}
	if d.Title != "World Register of Marine Species" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.License != metadata.LicenseCCBy {
		t.Errorf("License = %v, want %v", d.License, metadata.LicenseCCBy)
	}
	if b := doc.BasicMetadata(); b.License != metadata.LicenseCCBy {
		t.Errorf("BasicMetadata().License = %v", b.License)
	}
}

func TestResolveNoParser(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"csv", "title,description\nBirds,Observations\n"},
		{"binary", "\x00\x01\x02\xff"},
		{"empty", ""},
		{"empty eml", `<eml:eml xmlns:eml="https://eml.ecoinformatics.org/eml-2.2.0"><dataset/></eml:eml>`},
		{"unrelated xml", `<html><body><p>hello</p></body></html>`},
		{"truncated", `<metadata xmlns:dc="http://purl.org/dc/terms/"><dc:title>x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Resolve([]byte(tt.in))
			if !errors.Is(err, ErrNoParser) {
				t.Errorf("Resolve() = %v, %v; want ErrNoParser", doc, err)
			}
			if err != nil && err.Error() != "no suitable parser" {
				t.Errorf("error message = %q", err.Error())
			}
		})
	}
}

// counting wraps c so that tests can see whether it ran.
func counting(c Candidate, n *int32) Candidate {
	bind := c.Bind
	c.Bind = func(data []byte) (metadata.Document, []*digester.FieldError, error) {
		atomic.AddInt32(n, 1)
		return bind(data)
	}
	return c
}

func TestResolvePriority(t *testing.T) {
	var emlRuns, dcRuns int32
	p := New(WithCandidates(counting(EMLCandidate, &emlRuns), counting(DCCandidate, &dcRuns)))

	doc, err := p.ParseBytes([]byte(bothDoc))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if doc.Type() != metadata.EML || doc.BasicMetadata().Title != "EML title" {
		t.Errorf("ParseBytes() = %v %q, want the EML binding", doc.Type(), doc.BasicMetadata().Title)
	}
	if emlRuns != 1 || dcRuns != 0 {
		t.Errorf("candidate runs = EML %d, DC %d; want 1, 0", emlRuns, dcRuns)
	}

	// The DC table binds the same document when tried alone.
	alone, err := New(WithCandidates(DCCandidate)).ParseBytes([]byte(bothDoc))
	if err != nil {
		t.Fatalf("DC-only ParseBytes() error = %v", err)
	}
	if alone.BasicMetadata().Title != "DC title" {
		t.Errorf("DC-only title = %q", alone.BasicMetadata().Title)
	}
}

func TestResolveFallsThrough(t *testing.T) {
	var emlRuns, dcRuns int32
	p := New(WithCandidates(counting(EMLCandidate, &emlRuns), counting(DCCandidate, &dcRuns)))

	res, err := p.Resolve([]byte(dcDoc))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Type() != metadata.DC {
		t.Errorf("Type() = %v, want DC", res.Type())
	}
	if emlRuns != 1 || dcRuns != 1 {
		t.Errorf("candidate runs = EML %d, DC %d; want 1, 1", emlRuns, dcRuns)
	}
}

func TestResolveHardErrorSkipsCandidate(t *testing.T) {
	failing := Candidate{
		Type: metadata.EML,
		Bind: func([]byte) (metadata.Document, []*digester.FieldError, error) {
			return nil, nil, digester.ErrStackUnderflow
		},
	}
	doc, err := New(WithCandidates(failing, DCCandidate)).ParseBytes([]byte(dcDoc))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if doc.Type() != metadata.DC {
		t.Errorf("Type() = %v, want DC", doc.Type())
	}
}

func TestResolveWarnings(t *testing.T) {
	in := strings.Replace(dcDoc, "</metadata>", "<dc:issued>not a date</dc:issued></metadata>", 1)
	res, err := New().Resolve([]byte(in))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Path != "issued" {
		t.Errorf("Warnings = %v, want one for issued", res.Warnings)
	}
}

func TestParseReader(t *testing.T) {
	doc, err := New().Parse(strings.NewReader(emlDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Type() != metadata.EML {
		t.Errorf("Type() = %v", doc.Type())
	}

	cause := errors.New("connection reset")
	if _, err := New().Parse(iotest.ErrReader(cause)); !errors.Is(err, ErrUnreadable) || !errors.Is(err, cause) {
		t.Errorf("Parse() error = %v, want ErrUnreadable", err)
	}
}

func TestParseDetected(t *testing.T) {
	var emlRuns, dcRuns int32
	p := New(WithCandidates(counting(EMLCandidate, &emlRuns), counting(DCCandidate, &dcRuns)))

	doc, err := p.ParseDetected(strings.NewReader(dcDoc))
	if err != nil {
		t.Fatalf("ParseDetected() error = %v", err)
	}
	if doc.Type() != metadata.DC {
		t.Errorf("Type() = %v, want DC", doc.Type())
	}
	if emlRuns != 0 || dcRuns != 1 {
		t.Errorf("candidate runs = EML %d, DC %d; want 0, 1", emlRuns, dcRuns)
	}

	if _, err := p.ParseDetected(strings.NewReader(`<root/>`)); !errors.Is(err, ErrNoDialect) {
		t.Errorf("ParseDetected(<root/>) error = %v, want ErrNoDialect", err)
	}
	if _, err := New(WithCandidates(EMLCandidate)).ParseDetected(strings.NewReader(dcDoc)); !errors.Is(err, ErrNoParser) {
		t.Errorf("ParseDetected() without a DC candidate error = %v, want ErrNoParser", err)
	}
}

func TestResolveDetectedKeepsEmptyDocument(t *testing.T) {
	res, err := New().ResolveDetected([]byte(`<eml><dataset/></eml>`))
	if err != nil {
		t.Fatalf("ResolveDetected() error = %v", err)
	}
	if res.Type() != metadata.EML || metadata.HasContent(res.Document.BasicMetadata()) {
		t.Errorf("ResolveDetected() = %+v", res)
	}
}

func TestCache(t *testing.T) {
	var emlRuns int32
	p := New(WithCandidates(counting(EMLCandidate, &emlRuns)), WithCache(4))

	first, err := p.Resolve([]byte(emlDoc))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := p.Resolve([]byte(emlDoc))
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("Cached = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if first.Document != second.Document || first.Digest != second.Digest {
		t.Error("cached resolution differs from the first")
	}
	if emlRuns != 1 {
		t.Errorf("EML runs = %d, want 1", emlRuns)
	}

	stats, ok := p.CacheStats()
	if !ok || stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("CacheStats() = %+v, %v", stats, ok)
	}

	// Failures are not cached.
	for i := 0; i < 2; i++ {
		if _, err := p.Resolve([]byte("not xml")); !errors.Is(err, ErrNoParser) {
			t.Errorf("Resolve(not xml) error = %v", err)
		}
	}
	if stats, _ := p.CacheStats(); stats.Size != 1 {
		t.Errorf("cache size = %d after failures, want 1", stats.Size)
	}
}

func TestCacheDisabled(t *testing.T) {
	p := New(WithCache(8), WithCache(0))
	if _, ok := p.CacheStats(); ok {
		t.Error("CacheStats() reported a cache after WithCache(0)")
	}
	res, err := p.Resolve([]byte(emlDoc))
	if err != nil || res.Cached {
		t.Errorf("Resolve() = %+v, %v", res, err)
	}
}

func TestCacheExpiry(t *testing.T) {
	var emlRuns int32
	var dropped []any
	p := New(
		WithCandidates(counting(EMLCandidate, &emlRuns)),
		WithCacheConfig(cache.Config{
			MaxSize: 4,
			TTL:     time.Millisecond,
			OnEvict: func(key, _ any) { dropped = append(dropped, key) },
		}),
	)

	first, err := p.Resolve([]byte(emlDoc))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := p.Resolve([]byte(emlDoc))
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if second.Cached {
		t.Error("expired entry was served from the cache")
	}
	if emlRuns != 2 {
		t.Errorf("EML runs = %d, want 2", emlRuns)
	}
	if len(dropped) != 1 || dropped[0] != first.Digest.BLAKE3 {
		t.Errorf("OnEvict keys = %v, want [%s]", dropped, first.Digest.BLAKE3)
	}
}

func TestCacheEvictionLogged(t *testing.T) {
	var buf bytes.Buffer
	logging.InitLogger(logging.LevelDebug, logging.FormatText)
	logging.SetOutput(&buf)
	t.Cleanup(func() {
		logging.InitLogger(logging.LevelInfo, logging.FormatText)
		logging.SetOutput(io.Discard)
	})

	p := New(WithCache(1))
	for _, doc := range []string{emlDoc, dcDoc} {
		if _, err := p.Resolve([]byte(doc)); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if stats, _ := p.CacheStats(); stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if !strings.Contains(buf.String(), "dropped cached document") {
		t.Errorf("eviction not logged: %q", buf.String())
	}
}

func TestResolveConcurrent(t *testing.T) {
	p := New(WithCache(2))
	inputs := [][]byte{[]byte(emlDoc), []byte(dcDoc), []byte(bothDoc)}

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(in []byte) {
			defer wg.Done()
			res, err := p.Resolve(in)
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			want := metadata.EML
			if bytes.Equal(in, []byte(dcDoc)) {
				want = metadata.DC
			}
			if res.Type() != want {
				t.Errorf("Type() = %v, want %v", res.Type(), want)
			}
		}(inputs[i%len(inputs)])
	}
	wg.Wait()
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/cas"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/docbook"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/eml"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/parser"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/archive"
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
  <dc:subject>marine; taxonomy</dc:subject>
</metadata>`

const junkDoc = `<inventory><item>nothing to see</item></inventory>`

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// Test helper functions

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create test dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func setStdin(t *testing.T, content string) {
	t.Helper()
	prev := stdin
	stdin = strings.NewReader(content)
	t.Cleanup(func() { stdin = prev })
}

func noCache() *Globals {
	return &Globals{LogLevel: "info", LogFormat: "text"}
}

// Tests for DetectCmd

func TestDetectCmd_Run(t *testing.T) {
	dir := t.TempDir()
	emlPath := createTestFile(t, dir, "eml.xml", emlDoc)
	dcPath := createTestFile(t, dir, "dc.xml", dcDoc)
	out := captureOutput(t)

	cmd := &DetectCmd{Paths: []string{emlPath, dcPath}}
	if err := cmd.Run(); err != nil {
		t.Fatalf("DetectCmd.Run() error = %v", err)
	}

	want := emlPath + "\tEML\n" + dcPath + "\tDC\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestDetectCmd_Run_Stdin(t *testing.T) {
	setStdin(t, dcDoc)
	out := captureOutput(t)

	if err := (&DetectCmd{Paths: []string{"-"}}).Run(); err != nil {
		t.Fatalf("DetectCmd.Run() error = %v", err)
	}
	if got := out.String(); got != "-\tDC\n" {
		t.Errorf("output = %q", got)
	}
}

func TestDetectCmd_Run_NoDialect(t *testing.T) {
	dir := t.TempDir()
	junk := createTestFile(t, dir, "junk.xml", junkDoc)
	good := createTestFile(t, dir, "eml.xml", emlDoc)
	out := captureOutput(t)

	err := (&DetectCmd{Paths: []string{junk, good}}).Run()
	if err == nil {
		t.Fatal("expected error for unclassifiable document")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %v, want count of failures", err)
	}
	if !strings.Contains(out.String(), good+"\tEML") {
		t.Errorf("classifiable document missing from output: %q", out.String())
	}
}

// Tests for ParseCmd

func TestParseCmd_Run(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "eml.xml", emlDoc)
	out := captureOutput(t)

	if err := (&ParseCmd{Path: path}).Run(noCache()); err != nil {
		t.Fatalf("ParseCmd.Run() error = %v", err)
	}
	for _, want := range []string{
		"Dialect:    EML",
		"Title:      Birds of Vienna",
		"PackageId:  abc/v7.41",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestParseCmd_Run_JSON(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "dc.xml", dcDoc)
	out := captureOutput(t)

	cmd := &ParseCmd{Path: path, JSON: true}
	if err := cmd.Run(noCache()); err != nil {
		t.Fatalf("ParseCmd.Run() error = %v", err)
	}

	var got summary
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got.Dialect != "DC" {
		t.Errorf("Dialect = %q, want DC", got.Dialect)
	}
	if got.Title != "World Register of Marine Species" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Digest != cas.Sum([]byte(dcDoc)) {
		t.Errorf("Digest = %+v, want digest of the input", got.Digest)
	}
}

func TestParseCmd_Run_Detect(t *testing.T) {
	setStdin(t, emlDoc)
	out := captureOutput(t)

	if err := (&ParseCmd{Path: "-", Detect: true}).Run(noCache()); err != nil {
		t.Fatalf("ParseCmd.Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Birds of Vienna") {
		t.Errorf("output = %q", out.String())
	}
}

func TestParseCmd_Run_NoParser(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "junk.xml", junkDoc)
	captureOutput(t)

	err := (&ParseCmd{Path: path}).Run(noCache())
	if !errors.Is(err, parser.ErrNoParser) {
		t.Errorf("error = %v, want ErrNoParser", err)
	}
}

func TestContact(t *testing.T) {
	tests := []struct {
		name, email, want string
	}{
		{"", "", ""},
		{"Ann", "", "Ann"},
		{"", "ann@example.org", "<ann@example.org>"},
		{"Ann", "ann@example.org", "Ann <ann@example.org>"},
	}
	for _, tt := range tests {
		if got := contact(tt.name, tt.email); got != tt.want {
			t.Errorf("contact(%q, %q) = %q, want %q", tt.name, tt.email, got, tt.want)
		}
	}
}

// Tests for ConvertCmd

func TestConvertCmd_Run_DublinCore(t *testing.T) {
	dir := t.TempDir()
	in := createTestFile(t, dir, "dc.xml", dcDoc)
	outPath := filepath.Join(dir, "out.xml")
	captureOutput(t)

	cmd := &ConvertCmd{Path: in, Out: outPath, Profile: "1.3", Bump: "none"}
	if err := cmd.Run(noCache()); err != nil {
		t.Fatalf("ConvertCmd.Run() error = %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	res, err := parser.New().Resolve(data)
	if err != nil {
		t.Fatalf("converted document does not resolve: %v", err)
	}
	if res.Type() != metadata.EML {
		t.Errorf("converted dialect = %v, want EML", res.Type())
	}
	if got := res.Document.BasicMetadata().Title; got != "World Register of Marine Species" {
		t.Errorf("converted title = %q", got)
	}
}

func TestConvertCmd_Run_Bump(t *testing.T) {
	tests := []struct {
		bump string
		want string
	}{
		{"none", "abc/v7.41"},
		{"minor", "abc/v7.42"},
		{"major", "abc/v8.0"},
	}
	for _, tt := range tests {
		t.Run(tt.bump, func(t *testing.T) {
			in := createTestFile(t, t.TempDir(), "eml.xml", emlDoc)
			out := captureOutput(t)

			cmd := &ConvertCmd{Path: in, Profile: "gbif-1.3", Bump: tt.bump, Pretty: true}
			if err := cmd.Run(noCache()); err != nil {
				t.Fatalf("ConvertCmd.Run() error = %v", err)
			}
			res, err := parser.New().Resolve(out.Bytes())
			if err != nil {
				t.Fatalf("output does not resolve: %v", err)
			}
			if got := res.Document.(*eml.Eml).PackageID(); got != tt.want {
				t.Errorf("packageId = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertCmd_Run_BadProfile(t *testing.T) {
	in := createTestFile(t, t.TempDir(), "eml.xml", emlDoc)
	captureOutput(t)

	cmd := &ConvertCmd{Path: in, Profile: "2.0", Bump: "none"}
	if err := cmd.Run(noCache()); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestToEMLDoesNotShareVersion(t *testing.T) {
	res, err := parser.New().Resolve([]byte(emlDoc))
	if err != nil {
		t.Fatal(err)
	}
	orig := res.Document.(*eml.Eml)
	copied := toEML(orig)
	copied.BumpMajorVersion()
	if got := orig.PackageID(); got != "abc/v7.41" {
		t.Errorf("source document changed to %q", got)
	}
}

// Tests for InspectCmd

func TestInspectCmd_Run(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "eml.xml", emlDoc)

	tests := []struct {
		name string
		cmd  InspectCmd
		want string
	}{
		{"validate", InspectCmd{Validate: true}, path + ": well-formed\n"},
		{"default validates", InspectCmd{}, path + ": well-formed\n"},
		{"eval", InspectCmd{Eval: "count(//title)"}, "1\n"},
		{"xpath", InspectCmd{XPath: "//title"}, "title\tBirds of Vienna\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t)
			cmd := tt.cmd
			cmd.Path = path
			if err := cmd.Run(); err != nil {
				t.Fatalf("InspectCmd.Run() error = %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestInspectCmd_Run_Format(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "flat.xml", `<a><b>x</b><c/></a>`)
	out := captureOutput(t)

	if err := (&InspectCmd{Path: path, Format: true}).Run(); err != nil {
		t.Fatalf("InspectCmd.Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "\n  <b>x</b>") {
		t.Errorf("output not indented:\n%s", out.String())
	}
}

func TestInspectCmd_Run_Malformed(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "bad.xml", `<a><b></a>`)
	out := captureOutput(t)

	if err := (&InspectCmd{Path: path, Validate: true}).Run(); err == nil {
		t.Error("expected error for malformed document")
	}
	if !strings.HasPrefix(out.String(), path+":") {
		t.Errorf("violations not reported: %q", out.String())
	}
}

// Tests for MarkupCmd

func TestMarkupCmds_Run(t *testing.T) {
	dir := t.TempDir()
	html := createTestFile(t, dir, "in.html", "<p>Hello <b>world</b></p>\n")
	db := createTestFile(t, dir, "in.docbook", "<para>Hello <emphasis>world</emphasis></para>")

	out := captureOutput(t)
	if err := (&MarkupToDocBookCmd{Path: html}).Run(); err != nil {
		t.Fatalf("to-docbook error = %v", err)
	}
	if want := docbook.ToDocBook("<p>Hello <b>world</b></p>") + "\n"; out.String() != want {
		t.Errorf("to-docbook = %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := (&MarkupToHTMLCmd{Path: db}).Run(); err != nil {
		t.Fatalf("to-html error = %v", err)
	}
	if want := docbook.ToHTML("<para>Hello <emphasis>world</emphasis></para>") + "\n"; out.String() != want {
		t.Errorf("to-html = %q, want %q", out.String(), want)
	}
}

func TestMarkupCmd_Run_Stdin(t *testing.T) {
	setStdin(t, "<para>x</para>")
	out := captureOutput(t)

	if err := (&MarkupToHTMLCmd{Path: "-"}).Run(); err != nil {
		t.Fatalf("to-html error = %v", err)
	}
	if want := docbook.ToHTML("<para>x</para>") + "\n"; out.String() != want {
		t.Errorf("to-html = %q, want %q", out.String(), want)
	}
}

// Tests for IndexCmd and SearchCmd

func TestIndexAndSearch(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	createTestFile(t, docs, "eml.xml", emlDoc)
	createTestFile(t, docs, "sub/dc.xml", dcDoc)
	createTestFile(t, docs, "junk.xml", junkDoc)
	createTestFile(t, docs, "notes.txt", "ignored")

	bw, err := archive.CreateBundle(filepath.Join(docs, "set.tar.xz"), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := bw.Add("other.xml", []byte(strings.Replace(emlDoc, "abc/v7.41", "def/v1.0", 1))); err != nil {
		t.Fatal(err)
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(dir, "catalog.db")
	storeDir := filepath.Join(dir, "store")
	out := captureOutput(t)

	index := &IndexCmd{Paths: []string{docs}, Catalog: dbPath, Store: storeDir}
	if err := index.Run(noCache()); err != nil {
		t.Fatalf("IndexCmd.Run() error = %v", err)
	}
	if want := "indexed 3 documents, skipped 1\n"; out.String() != want {
		t.Errorf("index output = %q, want %q", out.String(), want)
	}

	store, err := cas.NewStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	if !store.Has(cas.Hash([]byte(emlDoc))) {
		t.Error("raw document not kept in store")
	}

	out.Reset()
	if err := (&SearchCmd{Catalog: dbPath, Counts: true}).Run(); err != nil {
		t.Fatalf("SearchCmd.Run() error = %v", err)
	}
	if want := "EML\t2\nDC\t1\n"; out.String() != want {
		t.Errorf("counts = %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := (&SearchCmd{Catalog: dbPath, Keyword: "marine"}).Run(); err != nil {
		t.Fatalf("SearchCmd.Run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "World Register of Marine Species") {
		t.Errorf("keyword search = %q", out.String())
	}

	out.Reset()
	if err := (&SearchCmd{Catalog: dbPath, Dialect: "eml", JSON: true}).Run(); err != nil {
		t.Fatalf("SearchCmd.Run() error = %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(out.Bytes(), &records); err != nil {
		t.Fatalf("search JSON: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d EML records, want 2", len(records))
	}

	// Indexing again replaces records instead of duplicating them.
	out.Reset()
	if err := index.Run(noCache()); err != nil {
		t.Fatalf("second IndexCmd.Run() error = %v", err)
	}
	out.Reset()
	if err := (&SearchCmd{Catalog: dbPath, Counts: true}).Run(); err != nil {
		t.Fatal(err)
	}
	if want := "EML\t2\nDC\t1\n"; out.String() != want {
		t.Errorf("counts after reindex = %q, want %q", out.String(), want)
	}
}

func TestSearchCmd_Run_BadFilter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	tests := []SearchCmd{
		{Catalog: dbPath, Dialect: "marc"},
		{Catalog: dbPath, License: "proprietary"},
	}
	for _, cmd := range tests {
		if err := cmd.Run(); err == nil {
			t.Errorf("SearchCmd%+v.Run() error = nil, want error", cmd)
		}
	}
}

// Tests for BundleCmd

func TestBundleCmd_Run(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "birds.xml", emlDoc)
	b := createTestFile(t, dir, "worms.xml", dcDoc)
	outPath := filepath.Join(dir, "out", "bundle.tar.xz")
	out := captureOutput(t)

	cmd := &BundleCmd{Paths: []string{a, b}, Out: outPath, Profile: "1.2", BaseDir: "eml"}
	if err := cmd.Run(noCache()); err != nil {
		t.Fatalf("BundleCmd.Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "wrote 2 documents") {
		t.Errorf("output = %q", out.String())
	}

	var names []string
	err := archive.Documents(outPath, func(name string, data []byte) error {
		names = append(names, name)
		res, err := parser.New().Resolve(data)
		if err != nil {
			return err
		}
		if res.Type() != metadata.EML {
			t.Errorf("%s resolved as %v, want EML", name, res.Type())
		}
		if !bytes.Contains(data, []byte(eml.ProfileGBIF12.Schema)) {
			t.Errorf("%s not written for profile 1.2", name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reading bundle: %v", err)
	}
	if want := []string{"eml/birds.xml", "eml/worms.xml"}; strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestBundleCmd_Run_Errors(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a/data.xml", emlDoc)
	b := createTestFile(t, dir, "b/data.xml", emlDoc)
	junk := createTestFile(t, dir, "junk.xml", junkDoc)
	captureOutput(t)

	tests := []struct {
		name string
		cmd  BundleCmd
	}{
		{"name collision", BundleCmd{Paths: []string{a, b}, Out: filepath.Join(dir, "x.tar")}},
		{"unresolvable input", BundleCmd{Paths: []string{junk}, Out: filepath.Join(dir, "y.tar")}},
		{"bad format", BundleCmd{Paths: []string{a}, Out: filepath.Join(dir, "z.zip")}},
		{"bad profile", BundleCmd{Paths: []string{a}, Out: filepath.Join(dir, "w.tar"), Profile: "9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd
			if cmd.Profile == "" {
				cmd.Profile = "1.3"
			}
			if err := cmd.Run(noCache()); err == nil {
				t.Error("expected error")
			}
			if _, err := os.Stat(cmd.Out); err == nil {
				t.Errorf("%s written despite error", cmd.Out)
			}
		})
	}
}

// Tests for VersionCmd and flag wiring

func TestVersionCmd_Run(t *testing.T) {
	out := captureOutput(t)
	if err := (&VersionCmd{}).Run(); err != nil {
		t.Fatalf("VersionCmd.Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "gbifmeta version "+version) {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "default 1.3") {
		t.Errorf("default profile missing: %q", out.String())
	}
}

func newTestParser(t *testing.T, options ...kong.Option) *kong.Kong {
	t.Helper()
	options = append([]kong.Option{
		kong.Name("gbifmeta"),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	}, options...)
	k, err := kong.New(&CLI, options...)
	if err != nil {
		t.Fatalf("kong.New() error = %v", err)
	}
	return k
}

func TestCLI_Commands(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"detect", "a.xml"}, "detect <paths>"},
		{[]string{"markup", "to-html", "in.docbook"}, "markup to-html <path>"},
		{[]string{"markup", "to-docbook", "in.html"}, "markup to-docbook <path>"},
		{[]string{"version"}, "version"},
	}
	for _, tt := range tests {
		ctx, err := newTestParser(t).Parse(tt.args)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tt.args, err)
			continue
		}
		if got := ctx.Command(); got != tt.want {
			t.Errorf("Parse(%q).Command() = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestCLI_EnvFallback(t *testing.T) {
	t.Setenv("GBIFMETA_CACHE_SIZE", "7")
	t.Setenv("GBIFMETA_LOG_LEVEL", "warn")

	if _, err := newTestParser(t).Parse([]string{"version"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if CLI.CacheSize != 7 {
		t.Errorf("CacheSize = %d, want 7", CLI.CacheSize)
	}
	if CLI.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", CLI.LogLevel)
	}
}

func TestCLI_ConfigFile(t *testing.T) {
	cfg := createTestFile(t, t.TempDir(), "gbifmeta.json", `{"log_format": "json", "cache_ttl": "90s"}`)

	k := newTestParser(t, kong.Configuration(kong.JSON, cfg))
	if _, err := k.Parse([]string{"version"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if CLI.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", CLI.LogFormat)
	}
	if CLI.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", CLI.CacheTTL)
	}
}

func TestGlobals_Parser(t *testing.T) {
	stats, ok := (&Globals{CacheSize: 2, CacheTTL: time.Minute}).parser().CacheStats()
	if !ok || stats.MaxSize != 2 {
		t.Errorf("CacheStats() = %+v, %v; want MaxSize 2", stats, ok)
	}
	if _, ok := (&Globals{CacheTTL: time.Minute}).parser().CacheStats(); ok {
		t.Error("CacheStats() reported a cache with CacheSize 0")
	}
}

func TestGlobals_SetupLogging(t *testing.T) {
	t.Cleanup(func() {
		logging.InitLogger(logging.LevelInfo, logging.FormatText)
		logging.SetOutput(io.Discard)
	})

	if err := (&Globals{LogLevel: "debug", LogFormat: "json"}).setupLogging(); err != nil {
		t.Errorf("setupLogging() error = %v", err)
	}
	if err := (&Globals{LogLevel: "loud", LogFormat: "text"}).setupLogging(); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := (&Globals{LogLevel: "info", LogFormat: "yaml"}).setupLogging(); err == nil {
		t.Error("expected error for unknown format")
	}
}

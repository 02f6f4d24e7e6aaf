// Command gbifmeta reads, converts and indexes GBIF dataset metadata
// documents in EML and Dublin Core.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/cache"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/cas"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/docbook"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/eml"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/parser"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/sqlite"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/xml"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/archive"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/logging"
)

const version = "0.4.0"

// Command output goes here; logs go to stderr.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// Globals are flags shared by every command.
type Globals struct {
	Config    kong.ConfigFlag `help:"Load flag defaults from a JSON file. Keys use underscores, e.g. log_format."`
	LogLevel  string          `help:"Log level (debug, info, warn, error)." default:"info" env:"GBIFMETA_LOG_LEVEL"`
	LogFormat string          `help:"Log format (text, json)." default:"text" env:"GBIFMETA_LOG_FORMAT"`
	CacheSize int             `help:"Documents kept by the resolver cache, 0 disables it." default:"128" env:"GBIFMETA_CACHE_SIZE"`
	CacheTTL  time.Duration   `name:"cache-ttl" help:"How long resolved documents stay cached, 0 keeps them until evicted." default:"0s" env:"GBIFMETA_CACHE_TTL"`
}

func (g *Globals) setupLogging() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

func (g *Globals) parser() *parser.Parser {
	return parser.New(parser.WithCacheConfig(cache.Config{MaxSize: g.CacheSize, TTL: g.CacheTTL}))
}

// CLI defines the command-line interface.
var CLI struct {
	Globals

	// Documents
	Detect  DetectCmd  `cmd:"" help:"Report the dialect of metadata documents"`
	Parse   ParseCmd   `cmd:"" help:"Bind a document and print its basic metadata"`
	Convert ConvertCmd `cmd:"" help:"Write a document as GBIF profile EML"`
	Inspect InspectCmd `cmd:"" help:"Validate, pretty print or query XML"`
	Markup  MarkupCmd  `cmd:"" help:"Convert rich text between HTML and DocBook"`

	// Collections
	Index  IndexCmd  `cmd:"" help:"Index documents, directories and bundles into the catalog"`
	Search SearchCmd `cmd:"" help:"List catalog records"`
	Bundle BundleCmd `cmd:"" help:"Convert documents to EML and pack them into a bundle"`

	Version VersionCmd `cmd:"" help:"Show version information"`
}

// readInput reads a document from path, or from stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	return archive.ReadDocument(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// DetectCmd sniffs the dialect of each document without binding it.
type DetectCmd struct {
	Paths []string `arg:"" help:"Documents to classify (- for stdin)"`
}

func (c *DetectCmd) Run() error {
	failed := 0
	for _, path := range c.Paths {
		data, err := readInput(path)
		if err == nil {
			var t metadata.Type
			if t, err = parser.Detect(bytes.NewReader(data)); err == nil {
				fmt.Fprintf(stdout, "%s\t%s\n", path, t)
				continue
			}
		}
		failed++
		fmt.Fprintf(stdout, "%s\terror: %v\n", path, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be classified", failed, len(c.Paths))
	}
	return nil
}

// summary is the printable view of a resolved document.
type summary struct {
	Source       string     `json:"source"`
	Dialect      string     `json:"dialect"`
	Digest       cas.Digest `json:"digest"`
	Title        string     `json:"title,omitempty"`
	PackageID    string     `json:"packageId,omitempty"`
	Creator      string     `json:"creator,omitempty"`
	Publisher    string     `json:"publisher,omitempty"`
	Published    string     `json:"published,omitempty"`
	Language     string     `json:"language,omitempty"`
	Homepage     string     `json:"homepage,omitempty"`
	License      string     `json:"license,omitempty"`
	Subject      string     `json:"subject,omitempty"`
	Descriptions []string   `json:"descriptions,omitempty"`
	Warnings     []string   `json:"warnings,omitempty"`
}

func summarize(source string, res *parser.Resolution) summary {
	b := res.Document.BasicMetadata()
	s := summary{
		Source:       source,
		Dialect:      res.Type().String(),
		Digest:       res.Digest,
		Title:        b.Title,
		Creator:      contact(b.CreatorName, b.CreatorEmail),
		Publisher:    contact(b.PublisherName, b.PublisherEmail),
		Language:     b.Language,
		Homepage:     b.Homepage,
		Subject:      b.Subject,
		Descriptions: b.Descriptions,
	}
	if e, ok := res.Document.(*eml.Eml); ok {
		s.PackageID = e.PackageID()
	}
	if b.Published != nil {
		s.Published = metadata.FormatDate(*b.Published)
	}
	if b.License != metadata.LicenseUnspecified {
		s.License = b.License.String()
	}
	for _, w := range res.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	return s
}

func contact(name, email string) string {
	switch {
	case email == "":
		return name
	case name == "":
		return "<" + email + ">"
	}
	return name + " <" + email + ">"
}

func (s summary) writeText(w io.Writer) {
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-11s %s\n", label+":", value)
		}
	}
	row("Source", s.Source)
	row("Dialect", s.Dialect)
	row("Digest", s.Digest.Short())
	row("Title", s.Title)
	row("PackageId", s.PackageID)
	row("Creator", s.Creator)
	row("Publisher", s.Publisher)
	row("Published", s.Published)
	row("Language", s.Language)
	row("Homepage", s.Homepage)
	row("License", s.License)
	row("Subject", s.Subject)
	for _, d := range s.Descriptions {
		row("Description", d)
	}
	for _, warning := range s.Warnings {
		row("Warning", warning)
	}
}

// ParseCmd binds one document.
type ParseCmd struct {
	Path   string `arg:"" help:"Document to parse (- for stdin)"`
	Detect bool   `help:"Bind only with the dialect the sniffer reports instead of trying every dialect."`
	JSON   bool   `help:"Print JSON instead of text."`
}

func (c *ParseCmd) Run(g *Globals) error {
	res, err := resolve(g.parser(), c.Path, c.Detect)
	if err != nil {
		return err
	}
	s := summarize(c.Path, res)
	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	s.writeText(stdout)
	return nil
}

func resolve(p *parser.Parser, path string, detect bool) (*parser.Resolution, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if detect {
		return p.ResolveDetected(data)
	}
	return p.Resolve(data)
}

// toEML returns an EML document for any resolved document. Dublin Core and
// other dialects are carried over through their basic metadata.
func toEML(doc metadata.Document) *eml.Eml {
	if e, ok := doc.(*eml.Eml); ok {
		c := *e
		return &c
	}
	return eml.FromBasic(doc.BasicMetadata())
}

// ConvertCmd writes a document as EML for a GBIF profile.
type ConvertCmd struct {
	Path    string `arg:"" help:"Document to convert (- for stdin)"`
	Out     string `short:"o" help:"Output file (default stdout)"`
	Profile string `help:"GBIF profile version to write (1.1, 1.2, 1.3)." default:"1.3"`
	Bump    string `help:"Bump the resource version before writing." enum:"none,major,minor" default:"none"`
	Pretty  bool   `help:"Pretty print the output."`
}

func (c *ConvertCmd) Run(g *Globals) error {
	profile, err := eml.ParseProfile(c.Profile)
	if err != nil {
		return err
	}
	res, err := resolve(g.parser(), c.Path, false)
	if err != nil {
		return err
	}
	e := toEML(res.Document)
	switch c.Bump {
	case "major":
		e.BumpMajorVersion()
	case "minor":
		e.BumpMinorVersion()
	}
	out, err := renderEML(e, profile, c.Pretty)
	if err != nil {
		return err
	}
	logging.Debug("converted document",
		"source", c.Path,
		"dialect", res.Type().String(),
		"profile", profile.Name,
		"package_id", e.PackageID(),
	)
	return writeOutput(c.Out, out)
}

func renderEML(e *eml.Eml, profile eml.Profile, pretty bool) ([]byte, error) {
	out, err := eml.Marshal(e, profile)
	if err != nil {
		return nil, err
	}
	if !pretty {
		return out, nil
	}
	return xml.Format(out, xml.FormatOptions{})
}

// InspectCmd works on XML without binding it to a dialect.
type InspectCmd struct {
	Path     string `arg:"" help:"XML document (- for stdin)"`
	XPath    string `name:"xpath" help:"Print the nodes selected by an XPath expression." xor:"action"`
	Eval     string `help:"Print the value of an XPath expression, e.g. count(//keyword)." xor:"action"`
	Format   bool   `help:"Pretty print the document." xor:"action"`
	Validate bool   `help:"Check that the document is well-formed." xor:"action"`
}

func (c *InspectCmd) Run() error {
	data, err := readInput(c.Path)
	if err != nil {
		return err
	}

	switch {
	case c.Format:
		out, err := xml.Format(data, xml.FormatOptions{})
		if err != nil {
			return err
		}
		return writeOutput("", out)

	case c.Eval != "":
		doc, err := xml.Parse(data)
		if err != nil {
			return err
		}
		v, err := doc.Evaluate(c.Eval)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, v)
		return nil

	case c.XPath != "":
		doc, err := xml.Parse(data)
		if err != nil {
			return err
		}
		nodes, err := doc.XPath(c.XPath)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Fprintf(stdout, "%s\t%s\n", n.Name(), strings.TrimSpace(n.Text()))
		}
		return nil
	}

	result := xml.Validate(data)
	for _, e := range result.Errors {
		fmt.Fprintf(stdout, "%s:%s\n", c.Path, e)
	}
	if !result.Valid {
		return fmt.Errorf("%s is not well-formed", c.Path)
	}
	fmt.Fprintf(stdout, "%s: well-formed\n", c.Path)
	return nil
}

// MarkupCmd groups the rich text conversions.
type MarkupCmd struct {
	ToHTML    MarkupToHTMLCmd    `cmd:"" name:"to-html" help:"Convert DocBook to HTML"`
	ToDocBook MarkupToDocBookCmd `cmd:"" name:"to-docbook" help:"Convert HTML to DocBook"`
}

// MarkupToHTMLCmd converts a DocBook fragment to HTML.
type MarkupToHTMLCmd struct {
	Path string `arg:"" optional:"" default:"-" help:"Fragment file (default stdin)"`
}

func (c *MarkupToHTMLCmd) Run() error {
	in, err := readFragment(c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, docbook.ToHTML(in))
	return nil
}

// MarkupToDocBookCmd converts an HTML fragment to DocBook.
type MarkupToDocBookCmd struct {
	Path string `arg:"" optional:"" default:"-" help:"Fragment file (default stdin)"`
}

func (c *MarkupToDocBookCmd) Run() error {
	in, err := readFragment(c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, docbook.ToDocBook(in))
	return nil
}

// readFragment reads markup, which is not a document and may carry any
// extension.
func readFragment(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading fragment: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "gbifmeta version %s\n", version)
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "sqlite driver: %s (%s)\n", info.DriverName, info.Package)
	var names []string
	for _, p := range eml.Profiles() {
		names = append(names, p.Version)
	}
	fmt.Fprintf(stdout, "EML profiles: %s (default %s)\n", strings.Join(names, ", "), eml.DefaultProfile.Version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("gbifmeta"),
		kong.Description("GBIF dataset metadata: EML and Dublin Core"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON, "~/.config/gbifmeta/config.json", "gbifmeta.json"),
	)
	ctx.FatalIfErrorf(CLI.Globals.setupLogging())
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/cas"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/eml"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/parser"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/archive"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/catalog"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/logging"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/validation"
)

// IndexCmd resolves documents and records them in the catalog.
type IndexCmd struct {
	Paths   []string `arg:"" help:"Documents, bundles or directories to index" type:"existingpath"`
	Catalog string   `help:"Catalog database." default:"gbifmeta.db" env:"GBIFMETA_CATALOG" type:"path"`
	Store   string   `help:"Also keep the raw documents in a content-addressed store at this directory." type:"path"`
}

// indexer carries the state of one index run.
type indexer struct {
	ctx     context.Context
	parser  *parser.Parser
	catalog *catalog.Catalog
	store   *cas.Store

	indexed int
	skipped int
}

func (c *IndexCmd) Run(g *Globals) error {
	ctx := logging.WithRunID(context.Background(), uuid.NewString())

	cat, err := catalog.Open(ctx, c.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()

	ix := &indexer{ctx: ctx, parser: g.parser(), catalog: cat}
	if c.Store != "" {
		if ix.store, err = cas.NewStore(c.Store); err != nil {
			return err
		}
	}

	for _, path := range c.Paths {
		if err := ix.walk(path); err != nil {
			return err
		}
	}

	logging.InfoContext(ctx, "index complete",
		"indexed", ix.indexed,
		"skipped", ix.skipped,
		"catalog", c.Catalog,
	)
	fmt.Fprintf(stdout, "indexed %d documents, skipped %d\n", ix.indexed, ix.skipped)
	return nil
}

func (ix *indexer) walk(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case archive.IsBundle(path):
			return archive.Documents(path, func(name string, data []byte) error {
				return ix.add(path+"!"+name, data)
			})
		case archive.IsDocument(path):
			data, err := archive.ReadDocument(path)
			if err != nil {
				logging.WarnContext(ix.ctx, "skipping unreadable file", "path", path, "error", err)
				ix.skipped++
				return nil
			}
			return ix.add(path, data)
		}
		return nil
	})
}

// add resolves one document. Documents no dialect accepts are skipped;
// catalog and store failures abort the run.
func (ix *indexer) add(source string, data []byte) error {
	res, err := ix.parser.Resolve(data)
	if err != nil {
		logging.WarnContext(ix.ctx, "skipping document", "source", source, "error", err)
		ix.skipped++
		return nil
	}
	if ix.store != nil {
		if _, err := ix.store.Put(data); err != nil {
			return fmt.Errorf("storing %s: %w", source, err)
		}
	}
	if _, err := ix.catalog.Put(ix.ctx, catalog.RecordFor(source, res)); err != nil {
		return fmt.Errorf("indexing %s: %w", source, err)
	}
	logging.DebugContext(ix.ctx, "indexed document", "source", source, "dialect", res.Type().String())
	ix.indexed++
	return nil
}

// SearchCmd lists catalog records.
type SearchCmd struct {
	Catalog string `help:"Catalog database." default:"gbifmeta.db" env:"GBIFMETA_CATALOG" type:"path"`
	Dialect string `help:"Only records of this dialect (eml, dc)."`
	Title   string `help:"Only records whose title contains this text."`
	Keyword string `help:"Only records with this keyword."`
	License string `help:"Only records under this license (e.g. CC_BY_4_0, CC-BY, cc0)."`
	Counts  bool   `help:"Print the number of records per dialect instead."`
	JSON    bool   `help:"Print JSON instead of text."`
}

func (c *SearchCmd) filter() (catalog.Filter, error) {
	var f catalog.Filter
	if c.Dialect != "" {
		t, err := metadata.ParseType(c.Dialect)
		if err != nil {
			return f, err
		}
		f.Dialect = t
	}
	if c.License != "" {
		l, ok := metadata.ParseLicense(c.License)
		if !ok {
			return f, fmt.Errorf("unknown license %q", c.License)
		}
		f.License = l
	}
	f.Title = c.Title
	f.Keyword = c.Keyword
	return f, nil
}

func (c *SearchCmd) Run() error {
	f, err := c.filter()
	if err != nil {
		return err
	}

	ctx := context.Background()
	cat, err := catalog.Open(ctx, c.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()

	if c.Counts {
		return c.printCounts(ctx, cat)
	}

	records, err := cat.List(ctx, f)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, r := range records {
		fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", r.Dialect, r.Digest.Short(), r.Title, r.Source)
	}
	return nil
}

func (c *SearchCmd) printCounts(ctx context.Context, cat *catalog.Catalog) error {
	counts, err := cat.Counts(ctx)
	if err != nil {
		return err
	}
	types := make([]metadata.Type, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Fprintf(stdout, "%s\t%d\n", t, counts[t])
	}
	return nil
}

// BundleCmd converts documents to EML and packs them into one archive.
type BundleCmd struct {
	Paths   []string `arg:"" help:"Documents to convert" type:"existingfile"`
	Out     string   `short:"o" required:"" help:"Bundle to write (.tar.xz, .tar.gz or .tar)"`
	Profile string   `help:"GBIF profile version to write (1.1, 1.2, 1.3)." default:"1.3"`
	BaseDir string   `help:"Directory inside the bundle." default:"eml"`
}

func (c *BundleCmd) Run(g *Globals) error {
	profile, err := eml.ParseProfile(c.Profile)
	if err != nil {
		return err
	}
	if !archive.IsBundle(c.Out) {
		return fmt.Errorf("unsupported bundle format: %s", c.Out)
	}

	p := g.parser()
	type entry struct {
		name string
		data []byte
	}
	var entries []entry
	seen := make(map[string]string)
	for _, path := range c.Paths {
		res, err := resolve(p, path, false)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out, err := renderEML(toEML(res.Document), profile, false)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		base, err := validation.SanitizeFilename(archive.DocumentName(path))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		name := base + ".xml"
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s and %s both map to %s", prev, path, name)
		}
		seen[name] = path
		entries = append(entries, entry{name, out})
	}

	bw, err := archive.CreateBundle(c.Out, c.BaseDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := bw.Add(e.name, e.data); err != nil {
			bw.Close()
			os.Remove(c.Out)
			return err
		}
	}
	if err := bw.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d documents to %s\n", len(entries), c.Out)
	return nil
}

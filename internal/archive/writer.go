package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/kbraak/gbif-metadata-profile-sub000/internal/validation"
)

// BundleWriter writes documents into a tar bundle. Entries carry a fixed
// modification time so that the same documents produce the same bundle.
type BundleWriter struct {
	tw      *tar.Writer
	comp    io.WriteCloser
	file    *os.File
	baseDir string
	modTime time.Time
}

// CreateBundle creates a bundle at path. The format follows the extension
// (.tar.xz, .tar.gz or .tar). Entries are placed under baseDir when it is
// not empty. Parent directories of path are created.
func CreateBundle(path, baseDir string) (*BundleWriter, error) {
	format := DetectFormat(path)
	if !IsBundle(path) {
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}
	if baseDir != "" {
		if err := validation.ValidateEntryName(baseDir); err != nil {
			return nil, fmt.Errorf("invalid base directory: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	var comp io.WriteCloser
	var w io.Writer = f
	switch format {
	case FormatTarXz:
		xw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		comp, w = xw, xw
	case FormatTarGz:
		gw := gzip.NewWriter(f)
		comp, w = gw, gw
	}

	return &BundleWriter{
		tw:      tar.NewWriter(w),
		comp:    comp,
		file:    f,
		baseDir: baseDir,
		modTime: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// Add writes one document entry. Names must be relative and stay inside the
// bundle.
func (b *BundleWriter) Add(name string, data []byte) error {
	if b.baseDir != "" {
		name = b.baseDir + "/" + name
	}
	if err := validation.ValidateEntryName(name); err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  b.modTime,
		Typeflag: tar.TypeReg,
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := b.tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Close flushes the tar stream, the compressor and the file.
func (b *BundleWriter) Close() error {
	err := b.tw.Close()
	if b.comp != nil {
		if cerr := b.comp.Close(); err == nil {
			err = cerr
		}
	}
	if ferr := b.file.Close(); err == nil {
		err = ferr
	}
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

// CreateBundleFromDir bundles every regular file under srcDir into dstPath,
// placing entries under the base name of srcDir.
func CreateBundleFromDir(srcDir, dstPath string) error {
	b, err := CreateBundle(dstPath, filepath.Base(srcDir))
	if err != nil {
		return err
	}
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.Mode().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return b.Add(filepath.ToSlash(rel), data)
	})
	if cerr := b.Close(); err == nil {
		err = cerr
	}
	return err
}

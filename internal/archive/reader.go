// Package archive reads and writes the containers metadata documents travel
// in: single .xml files, optionally xz or gzip compressed, and tar bundles
// (.tar, .tar.gz, .tar.xz) holding many documents.
package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/kbraak/gbif-metadata-profile-sub000/internal/validation"
)

// MaxDocumentSize bounds how much of one document is read into memory.
const MaxDocumentSize = 64 << 20

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// decompress wraps r according to format. The returned closer is nil when
// the decompressor holds no resources.
func decompress(r io.Reader, format Format) (io.Reader, io.Closer, error) {
	switch format {
	case FormatTarXz, FormatXMLXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xzr, nil, nil
	case FormatTarGz, FormatXMLGz:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gzr, gzr, nil
	case FormatTar, FormatXML:
		return r, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported format: %s", format)
}

// NewReader opens the bundle at path.
func NewReader(path string) (*Reader, error) {
	if !IsBundle(path) {
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r, closer, err := decompress(f, DetectFormat(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{Reader: tar.NewReader(r), file: f, decompressor: closer}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateBundle opens a bundle and iterates through its entries.
func IterateBundle(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// Documents calls fn with the name and content of every regular .xml entry
// in the bundle, in archive order. An error from fn stops the walk.
func Documents(path string, fn func(name string, data []byte) error) error {
	return IterateBundle(path, func(h *tar.Header, r io.Reader) (bool, error) {
		if h.Typeflag != tar.TypeReg || !strings.HasSuffix(strings.ToLower(h.Name), ".xml") {
			return false, nil
		}
		data, err := readLimited(r, h.Name)
		if err != nil {
			return true, err
		}
		return false, fn(h.Name, data)
	})
}

// ReadDocument reads a single document file, decompressing .xz and .gz.
// Files without a known extension are decompressed according to their
// leading bytes.
func ReadDocument(path string) ([]byte, error) {
	format := DetectFormat(path)
	if IsBundle(path) {
		return nil, fmt.Errorf("%s is a bundle, not a document", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if format == FormatUnknown {
		prefix, _ := br.Peek(validation.SniffLength)
		switch validation.SniffCompression(prefix) {
		case validation.CompressionXZ:
			format = FormatXMLXz
		case validation.CompressionGzip:
			format = FormatXMLGz
		default:
			format = FormatXML
		}
	}

	r, closer, err := decompress(br, format)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	return readLimited(r, path)
}

func readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("read %s: document exceeds %d bytes", name, MaxDocumentSize)
	}
	return data, nil
}

// ReadFile reads a specific file from the bundle. The name may omit the
// bundle's top-level directory.
func ReadFile(bundlePath, filename string) ([]byte, error) {
	data, _, err := FindFile(bundlePath, func(name string) bool {
		if name == filename {
			return true
		}
		if idx := strings.Index(name, "/"); idx >= 0 {
			return name[idx+1:] == filename
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("file not found: %s: %w", filename, err)
	}
	return data, nil
}

// FindFile returns the content and name of the first entry matching the
// predicate.
func FindFile(bundlePath string, predicate func(name string) bool) ([]byte, string, error) {
	var content []byte
	var foundName string
	err := IterateBundle(bundlePath, func(header *tar.Header, r io.Reader) (bool, error) {
		if !predicate(header.Name) {
			return false, nil
		}
		var err error
		content, err = readLimited(r, header.Name)
		foundName = header.Name
		return true, err
	})
	if err != nil {
		return nil, "", err
	}
	if content == nil {
		return nil, "", fmt.Errorf("no matching file found")
	}
	return content, foundName, nil
}

package archive

import (
	"path/filepath"
	"strings"
)

// Format is the container layout of an input file.
type Format string

const (
	FormatTarXz   Format = "tar.xz"
	FormatTarGz   Format = "tar.gz"
	FormatTar     Format = "tar"
	FormatXMLXz   Format = "xml.xz"
	FormatXMLGz   Format = "xml.gz"
	FormatXML     Format = "xml"
	FormatUnknown Format = "unknown"
)

// suffixes is ordered so that compound extensions win.
var suffixes = []struct {
	ext    string
	format Format
}{
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar", FormatTar},
	{".xml.xz", FormatXMLXz},
	{".xml.gz", FormatXMLGz},
	{".xml", FormatXML},
}

// DetectFormat detects the format from the file extension.
func DetectFormat(path string) Format {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.format
		}
	}
	return FormatUnknown
}

// IsBundle reports whether path names a tar archive of documents.
func IsBundle(path string) bool {
	switch DetectFormat(path) {
	case FormatTarXz, FormatTarGz, FormatTar:
		return true
	}
	return false
}

// IsDocument reports whether path names a single, possibly compressed,
// metadata document.
func IsDocument(path string) bool {
	switch DetectFormat(path) {
	case FormatXMLXz, FormatXMLGz, FormatXML:
		return true
	}
	return false
}

// DocumentName returns the base name of path without its known extensions,
// e.g. "dataset" for "in/dataset.xml.xz".
func DocumentName(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return name[:len(name)-len(s.ext)]
		}
	}
	return name
}

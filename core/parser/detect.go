package parser

import (
	"encoding/xml"
	"io"

	"golang.org/x/net/html/charset"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/dc"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/internal/logging"
)

// Detect reads r until it can tell which dialect the document is written in.
// An eml root with a dataset child is EML. Otherwise any element in the
// Dublin Core terms namespace makes it DC, but scanning continues because EML
// takes priority when both apply.
func Detect(r io.Reader) (metadata.Type, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var (
		path  []string
		found metadata.Type
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if found != 0 {
				return found, nil
			}
			return 0, unreadable(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(path) == 1 && path[0] == "eml" && t.Name.Local == "dataset" {
				return metadata.EML, nil
			}
			if found == 0 && t.Name.Space == dc.Namespace {
				found = metadata.DC
			}
			path = append(path, t.Name.Local)

		case xml.EndElement:
			if len(path) == 0 {
				logging.StreamMismatch("", t.Name.Local)
				continue
			}
			open := path[len(path)-1]
			path = path[:len(path)-1]
			if open != t.Name.Local {
				logging.StreamMismatch(open, t.Name.Local)
			}
		}
	}

	if found == 0 {
		return 0, ErrNoDialect
	}
	return found, nil
}

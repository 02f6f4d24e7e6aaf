// Package metadata defines the dialect-independent view of a bound metadata
// document and the value types shared by the dialect packages.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/errors"
)

// Type identifies a metadata dialect.
type Type int

const (
	// EML is the Ecological Metadata Language, GBIF profile.
	EML Type = iota + 1
	// DC is Dublin Core.
	DC
)

func (t Type) String() string {
	switch t {
	case EML:
		return "EML"
	case DC:
		return "DC"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a dialect name such as "eml" or "dc".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eml":
		return EML, nil
	case "dc", "dublincore", "dublin-core":
		return DC, nil
	}
	return 0, errors.NewValidation("type", fmt.Sprintf("unknown metadata type %q", s))
}

// Basic is the metadata every dialect can provide. Empty strings and a nil
// Published mean the value is absent.
type Basic struct {
	Title          string
	Descriptions   []string
	Subject        string
	Rights         string
	License        License
	Homepage       string
	CreatorName    string
	CreatorEmail   string
	PublisherName  string
	PublisherEmail string
	Published      *time.Time
	SourceID       string
	Language       string
}

// Document is a bound metadata document of any dialect.
type Document interface {
	Type() Type
	BasicMetadata() Basic
}

// HasContent reports whether b carries enough information to be considered a
// real metadata document rather than the residue of binding the wrong dialect.
func HasContent(b Basic) bool {
	return b.Title != "" ||
		len(b.Descriptions) > 0 ||
		b.Subject != "" ||
		b.SourceID != "" ||
		b.Homepage != "" ||
		b.Published != nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate parses the date forms found in metadata documents: full
// timestamps, calendar dates, year-month and year.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewParse("date", "", fmt.Sprintf("unrecognized date %q", s))
}

// FormatDate formats t as an ISO 8601 calendar date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// Package dc binds flat Dublin Core records.
//
// The wrapping element varies between sources (oai_dc:dc, metadata, record),
// so Rules is relative to whatever the document element is.
package dc

import (
	"net/mail"
	"strings"
	"time"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/digester"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
)

// Namespace is the Dublin Core terms namespace URI.
const Namespace = "http://purl.org/dc/terms/"

// DublinCore is a flat Dublin Core record.
type DublinCore struct {
	Title          string
	Descriptions   []string
	Subjects       []string
	Source         string
	Identifier     string
	Rights         string
	License        metadata.License
	Creator        string
	CreatorEmail   string
	Publisher      string
	PublisherEmail string
	Contributors   []string
	Date           *time.Time
	Created        *time.Time
	Issued         *time.Time
	Language       string
	Format         string
}

// Rules is the binding table for Dublin Core records.
var Rules = digester.MustRuleSet([]digester.Rule{
	digester.Call[DublinCore]("title", func(d *DublinCore, v string) error {
		if d.Title == "" {
			d.Title = v
		}
		return nil
	}),
	digester.Call[DublinCore]("description", (*DublinCore).addDescription),
	digester.Call[DublinCore]("abstract", (*DublinCore).addDescription),
	digester.Call[DublinCore]("subject", func(d *DublinCore, v string) error {
		if v != "" {
			d.Subjects = append(d.Subjects, v)
		}
		return nil
	}),
	digester.SetText[DublinCore]("source", func(d *DublinCore, v string) { d.Source = v }),
	digester.Call[DublinCore]("identifier", func(d *DublinCore, v string) error {
		if d.Identifier == "" {
			d.Identifier = v
		}
		return nil
	}),
	digester.SetText[DublinCore]("rights", (*DublinCore).SetRights),
	digester.SetText[DublinCore]("license", (*DublinCore).setLicense),
	digester.SetText[DublinCore]("creator", func(d *DublinCore, v string) {
		d.Creator, d.CreatorEmail = splitAddress(v)
	}),
	digester.SetText[DublinCore]("publisher", func(d *DublinCore, v string) {
		d.Publisher, d.PublisherEmail = splitAddress(v)
	}),
	digester.Call[DublinCore]("contributor", func(d *DublinCore, v string) error {
		if v != "" {
			d.Contributors = append(d.Contributors, v)
		}
		return nil
	}),
	digester.SetParsed[DublinCore]("date", metadata.ParseDate, func(d *DublinCore, t time.Time) { d.Date = &t }),
	digester.SetParsed[DublinCore]("created", metadata.ParseDate, func(d *DublinCore, t time.Time) { d.Created = &t }),
	digester.SetParsed[DublinCore]("issued", metadata.ParseDate, func(d *DublinCore, t time.Time) { d.Issued = &t }),
	digester.SetText[DublinCore]("language", func(d *DublinCore, v string) { d.Language = v }),
	digester.SetText[DublinCore]("format", func(d *DublinCore, v string) { d.Format = v }),
}, digester.RelativeToRoot())

func (d *DublinCore) addDescription(v string) error {
	if v != "" {
		d.Descriptions = append(d.Descriptions, v)
	}
	return nil
}

// SetRights stores a rights statement, expanding license shorthands, and
// records the license it links to.
func (d *DublinCore) SetRights(v string) {
	d.Rights = metadata.ExpandLicense(v)
	if l, ok := metadata.LicenseFromText(d.Rights); ok {
		d.License = l
	}
}

func (d *DublinCore) setLicense(v string) {
	if l, ok := metadata.ParseLicense(v); ok {
		d.License = l
		return
	}
	if v != "" {
		d.License = metadata.LicenseUnsupported
		if d.Rights == "" {
			d.Rights = v
		}
	}
}

// Published returns the issued date, falling back to created and then date.
func (d *DublinCore) Published() *time.Time {
	switch {
	case d.Issued != nil:
		return d.Issued
	case d.Created != nil:
		return d.Created
	default:
		return d.Date
	}
}

// Type implements metadata.Document.
func (d *DublinCore) Type() metadata.Type {
	return metadata.DC
}

// BasicMetadata implements metadata.Document.
func (d *DublinCore) BasicMetadata() metadata.Basic {
	return metadata.Basic{
		Title:          d.Title,
		Descriptions:   d.Descriptions,
		Subject:        strings.Join(d.Subjects, "; "),
		Rights:         d.Rights,
		License:        d.License,
		Homepage:       d.Source,
		CreatorName:    d.Creator,
		CreatorEmail:   d.CreatorEmail,
		PublisherName:  d.Publisher,
		PublisherEmail: d.PublisherEmail,
		Published:      d.Published(),
		SourceID:       d.Identifier,
		Language:       d.Language,
	}
}

// splitAddress splits "Jane Doe <jane@example.org>" into name and email. A
// bare email yields an empty name; anything else is returned as the name.
func splitAddress(s string) (name, email string) {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Name, a.Address
	}
	return s, ""
}

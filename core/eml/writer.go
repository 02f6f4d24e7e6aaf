package eml

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/docbook"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/encoding"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// templates is parsed once at package load; a broken template is a build bug.
var templates = template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.tmpl"))

var templateFuncs = template.FuncMap{
	"xml":  encoding.EscapeXMLText,
	"attr": encoding.EscapeXMLAttr,
	"docbook": func(html string) string {
		return docbook.Paragraphs(docbook.ToDocBook(html))
	},
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return metadata.FormatDate(*t)
	},
	"coord": func(f float64) string {
		return strconv.FormatFloat(f, 'f', -1, 64)
	},
	"agent": func(tag, indent string, a *Agent, withRole bool) agentView {
		return agentView{Tag: tag, Indent: indent, Agent: a, WithRole: withRole}
	},
}

// Writer renders documents as GBIF profile EML. It is safe for concurrent
// use.
type Writer struct {
	now func() time.Time
}

// NewWriter returns a Writer stamping documents with the current time.
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// Write renders e for profile p. e is not modified: a missing GUID is minted
// for the output only and a missing date stamp is taken from the clock.
func (w *Writer) Write(out io.Writer, e *Eml, p Profile) error {
	if e == nil {
		return fmt.Errorf("write EML: nil document")
	}
	if err := templates.ExecuteTemplate(out, "eml.xml.tmpl", w.view(e, p)); err != nil {
		return fmt.Errorf("write EML: %w", err)
	}
	return nil
}

// Marshal renders e for profile p with a default Writer.
func Marshal(e *Eml, p Profile) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewWriter().Write(&buf, e, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// document is the template view of an Eml.
type document struct {
	*Eml
	Profile Profile
	ID      string
	Stamp   time.Time

	DateCoverages     []*TemporalCoverage
	FormationPeriods  []string
	LivingTimePeriods []string
}

type agentView struct {
	Tag      string
	Indent   string
	Agent    *Agent
	WithRole bool
}

func (w *Writer) view(e *Eml, p Profile) document {
	guid := e.GUID
	if guid == "" {
		guid = uuid.NewString()
	}
	v := e.Version()
	if v.IsZero() {
		v = metadata.DefaultVersion
	}
	d := document{
		Eml:     e,
		Profile: p,
		ID:      metadata.FormatPackageID(guid, v),
		Stamp:   w.now().UTC(),
	}
	if e.DateStamp != nil {
		d.Stamp = *e.DateStamp
	}
	for _, tc := range e.TemporalCoverages {
		switch tc.Kind {
		case FormationPeriod:
			d.FormationPeriods = append(d.FormationPeriods, tc.Period)
		case LivingTimePeriod:
			d.LivingTimePeriods = append(d.LivingTimePeriods, tc.Period)
		default:
			d.DateCoverages = append(d.DateCoverages, tc)
		}
	}
	return d
}

// Rights returns the rights statement, falling back to the license statement.
func (d document) Rights() string {
	if d.IntellectualRights != "" {
		return d.IntellectualRights
	}
	return d.License.Statement()
}

// HasCoverage reports whether a coverage element is needed.
func (d document) HasCoverage() bool {
	return len(d.GeospatialCoverages) > 0 || len(d.TaxonomicCoverages) > 0 || len(d.DateCoverages) > 0
}

// HasMethods reports whether a methods element is needed. EML requires at
// least one method step.
func (d document) HasMethods() bool {
	return len(d.MethodSteps) > 0
}

// HasMaintenance reports whether a maintenance element is needed.
func (d document) HasMaintenance() bool {
	return d.UpdateFrequencyDescription != "" || d.UpdateFrequency != FrequencyUnset
}

// StampDate formats the GBIF dateStamp.
func (d document) StampDate() string {
	return d.Stamp.Format(time.RFC3339)
}

// IsRange reports whether the coverage is a begin/end date range.
func (tc *TemporalCoverage) IsRange() bool {
	return tc.Kind == DateRange
}

// HasRange reports whether the unit is expressed as a range.
func (u *CuratorialUnit) HasRange() bool {
	return u.RangeStart != 0 || u.RangeEnd != 0
}

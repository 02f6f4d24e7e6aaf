// Package eml binds, models and writes GBIF profile EML documents.
//
// Free-text fields (abstract, rights, methods and the like) are stored as
// display HTML. They are read from DocBook markup and converted back to it
// when written.
package eml

import (
	"strings"
	"time"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/docbook"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
)

// Eml is a dataset metadata document.
type Eml struct {
	GUID             string
	MetadataLanguage string

	version         metadata.Version
	previousVersion metadata.Version

	Title                string
	ShortName            string
	AlternateIdentifiers []string
	Creators             []*Agent
	MetadataProviders    []*Agent
	AssociatedParties    []*Agent
	Contacts             []*Agent
	PubDate              *time.Time
	Language             string
	Description          string
	KeywordSets          []*KeywordSet
	AdditionalInfo       string
	IntellectualRights   string
	License              metadata.License
	DistributionURL      string

	GeospatialCoverages []*GeospatialCoverage
	TaxonomicCoverages  []*TaxonomicCoverage
	TemporalCoverages   []*TemporalCoverage

	Purpose          string
	Introduction     string
	GettingStarted   string
	Acknowledgements string

	UpdateFrequency            UpdateFrequency
	UpdateFrequencyDescription string

	MethodSteps       []string
	StudyExtent       string
	SampleDescription string
	QualityControl    string

	Project *Project

	DateStamp                   *time.Time
	HierarchyLevel              string
	Citation                    *Citation
	BibliographicCitations      []*Citation
	PhysicalData                []*PhysicalData
	LogoURL                     string
	Collections                 []*Collection
	SpecimenPreservationMethods []string
	CuratorialUnits             []*CuratorialUnit
}

// New returns an empty document at DefaultVersion.
func New() *Eml {
	return &Eml{version: metadata.DefaultVersion}
}

// Version returns the current resource version.
func (e *Eml) Version() metadata.Version {
	return e.version
}

// PreviousVersion returns the version in effect before the last SetVersion.
func (e *Eml) PreviousVersion() metadata.Version {
	return e.previousVersion
}

// SetVersion records v as the current version.
func (e *Eml) SetVersion(v metadata.Version) {
	e.previousVersion = e.version
	e.version = v
}

// BumpMajorVersion moves to the next major version, resetting the minor one.
func (e *Eml) BumpMajorVersion() {
	e.SetVersion(e.version.BumpMajor())
}

// BumpMinorVersion moves to the next minor version.
func (e *Eml) BumpMinorVersion() {
	e.SetVersion(e.version.BumpMinor())
}

// PackageID returns guid/v{major}.{minor}.
func (e *Eml) PackageID() string {
	return metadata.FormatPackageID(e.GUID, e.version)
}

// SetPackageID sets the guid and, when present, the version encoded in id.
func (e *Eml) SetPackageID(id string) {
	guid, v, ok := metadata.ParsePackageID(id)
	e.GUID = guid
	if ok {
		e.SetVersion(v)
	}
}

// SetIntellectualRights stores rights HTML, expanding license shorthands and
// recording the license the statement refers to.
func (e *Eml) SetIntellectualRights(html string) {
	inner := docbook.StripOuterTag(html)
	if expanded := metadata.ExpandLicense(inner); expanded != inner {
		html = strings.Replace(html, inner, expanded, 1)
	}
	e.IntellectualRights = html
	if l, ok := metadata.LicenseFromText(e.IntellectualRights); ok {
		e.License = l
	}
}

// Type implements metadata.Document.
func (e *Eml) Type() metadata.Type {
	return metadata.EML
}

// BasicMetadata implements metadata.Document. The first creator and first
// contact stand in for creator and publisher.
func (e *Eml) BasicMetadata() metadata.Basic {
	b := metadata.Basic{
		Title:     e.Title,
		Rights:    e.IntellectualRights,
		License:   e.License,
		Homepage:  e.DistributionURL,
		Published: e.PubDate,
		Language:  e.Language,
	}
	if e.Description != "" {
		b.Descriptions = []string{e.Description}
	}
	var subjects []string
	for _, ks := range e.KeywordSets {
		subjects = append(subjects, ks.Keywords...)
	}
	b.Subject = strings.Join(subjects, "; ")
	if len(e.AlternateIdentifiers) > 0 {
		b.SourceID = e.AlternateIdentifiers[0]
	}
	if len(e.Creators) > 0 {
		b.CreatorName = e.Creators[0].FullName()
		b.CreatorEmail = e.Creators[0].Email
	}
	if len(e.Contacts) > 0 {
		b.PublisherName = e.Contacts[0].FullName()
		b.PublisherEmail = e.Contacts[0].Email
	}
	return b
}

// Agent is a person or organisation with a role in the dataset.
type Agent struct {
	FirstName    string
	LastName     string
	Organisation string
	Position     string
	Address      Address
	Phone        string
	Email        string
	Homepage     string
	UserIDs      []*UserID
	Role         string
}

// FullName joins first and last name, falling back to the organisation.
func (a *Agent) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Organisation
	}
	return name
}

// IsEmpty reports whether no identifying field is set.
func (a *Agent) IsEmpty() bool {
	return a.FirstName == "" && a.LastName == "" && a.Organisation == "" && a.Position == ""
}

// Address is a postal address.
type Address struct {
	Address    string
	City       string
	Province   string
	PostalCode string
	Country    string
}

// IsEmpty reports whether no address field is set.
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// UserID is an identifier of an agent in a directory such as ORCID.
type UserID struct {
	Directory  string
	Identifier string
}

// KeywordSet is a list of keywords from one thesaurus.
type KeywordSet struct {
	Keywords  []string
	Thesaurus string
}

func (ks *KeywordSet) addKeyword(k string) error {
	if k != "" {
		ks.Keywords = append(ks.Keywords, k)
	}
	return nil
}

// BBox is a geographic bounding box in decimal degrees.
type BBox struct {
	West, East, North, South float64
}

// Valid reports whether the box lies within world bounds and is ordered.
func (b BBox) Valid() bool {
	return b.West >= -180 && b.East <= 180 && b.South >= -90 && b.North <= 90 &&
		b.South <= b.North
}

// GeospatialCoverage describes where the data was collected.
type GeospatialCoverage struct {
	Description string
	BBox        BBox
}

// TaxonKeyword is one taxon of a taxonomic coverage.
type TaxonKeyword struct {
	ScientificName string
	Rank           string
	CommonName     string
}

// TaxonomicCoverage describes which taxa the data covers.
type TaxonomicCoverage struct {
	Description string
	Keywords    []*TaxonKeyword
}

// TemporalKind distinguishes the forms of temporal coverage.
type TemporalKind int

const (
	SingleDate TemporalKind = iota
	DateRange
	FormationPeriod
	LivingTimePeriod
)

// TemporalCoverage is a date, a date range or a named period.
type TemporalCoverage struct {
	Kind   TemporalKind
	Start  *time.Time
	End    *time.Time
	Period string
}

func (tc *TemporalCoverage) setSingle(t time.Time) {
	tc.Kind = SingleDate
	tc.Start = &t
}

func (tc *TemporalCoverage) setBegin(t time.Time) {
	tc.Kind = DateRange
	tc.Start = &t
}

func (tc *TemporalCoverage) setEnd(t time.Time) {
	tc.Kind = DateRange
	tc.End = &t
}

// Project is the research project the dataset was produced in.
type Project struct {
	ID                   string
	Title                string
	Personnel            []*Agent
	Description          string
	Funding              string
	Awards               []*Award
	StudyAreaDescription string
	DesignDescription    string
}

// Award is a grant that funded the project.
type Award struct {
	FunderName        string
	FunderIdentifiers []string
	AwardNumber       string
	Title             string
	URL               string
}

// Citation is a bibliographic reference with an optional identifier.
type Citation struct {
	Identifier string
	Text       string
}

// PhysicalData describes an external data file.
type PhysicalData struct {
	Name            string
	CharsetEncoding string
	DistributionURL string
	Format          string
	FormatVersion   string
}

// Collection identifies a natural history collection.
type Collection struct {
	ParentIdentifier string
	Identifier       string
	Name             string
}

// CuratorialUnit is a JGTI count of specimens, either as a range or as a
// count with uncertainty.
type CuratorialUnit struct {
	UnitType    string
	RangeStart  int
	RangeEnd    int
	Count       int
	Uncertainty int
}

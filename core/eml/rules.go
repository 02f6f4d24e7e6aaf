package eml

import (
	"strconv"
	"strings"
	"time"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/digester"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/docbook"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
)

const (
	datasetPath = "eml/dataset"
	gbifPath    = "eml/additionalMetadata/metadata/gbif"
	coverPath   = datasetPath + "/coverage"
	methodsPath = datasetPath + "/methods"
	projectPath = datasetPath + "/project"
)

// Rules is the binding table for GBIF profile EML documents. Bind it against
// a root created with New.
var Rules = digester.MustRuleSet(concat(
	[]digester.Rule{
		digester.SetAttr[Eml]("eml", "packageId", (*Eml).SetPackageID),
		digester.SetAttr[Eml]("eml", "lang", func(e *Eml, v string) { e.MetadataLanguage = v }),

		digester.Call[Eml](datasetPath+"/alternateIdentifier", func(e *Eml, v string) error {
			if v != "" {
				e.AlternateIdentifiers = append(e.AlternateIdentifiers, v)
			}
			return nil
		}),
		digester.SetText[Eml](datasetPath+"/shortName", func(e *Eml, v string) { e.ShortName = v }),
		digester.Call[Eml](datasetPath+"/title", func(e *Eml, v string) error {
			if e.Title == "" {
				e.Title = v
			}
			return nil
		}),
		digester.SetParsed[Eml](datasetPath+"/pubDate", metadata.ParseDate, func(e *Eml, t time.Time) { e.PubDate = &t }),
		digester.SetText[Eml](datasetPath+"/language", func(e *Eml, v string) { e.Language = v }),
		digester.SetRawXML[Eml](datasetPath+"/abstract", func(e *Eml, v string) { e.Description = docbook.FromRawXML(v) }),

		digester.Create[KeywordSet](datasetPath + "/keywordSet"),
		digester.Call[KeywordSet](datasetPath+"/keywordSet/keyword", (*KeywordSet).addKeyword),
		digester.SetText[KeywordSet](datasetPath+"/keywordSet/keywordThesaurus", func(ks *KeywordSet, v string) { ks.Thesaurus = v }),
		digester.SetNext[Eml, KeywordSet](datasetPath+"/keywordSet", func(e *Eml, ks *KeywordSet) { e.KeywordSets = append(e.KeywordSets, ks) }),

		digester.SetRawXML[Eml](datasetPath+"/additionalInfo", func(e *Eml, v string) { e.AdditionalInfo = docbook.FromRawXML(v) }),
		digester.SetRawXML[Eml](datasetPath+"/intellectualRights", func(e *Eml, v string) {
			e.SetIntellectualRights(docbook.FromRawXML(v))
		}),
		digester.Call[Eml](datasetPath+"/licensed/url", func(e *Eml, v string) error {
			if l, ok := metadata.ParseLicense(v); ok {
				e.License = l
			}
			return nil
		}),
		digester.SetText[Eml](datasetPath+"/distribution/online/url", func(e *Eml, v string) { e.DistributionURL = v }).
			When("function", "information"),

		// Coverage
		digester.Create[GeospatialCoverage](coverPath + "/geographicCoverage"),
		digester.SetText[GeospatialCoverage](coverPath+"/geographicCoverage/geographicDescription", func(g *GeospatialCoverage, v string) { g.Description = v }),
		digester.SetParsed[GeospatialCoverage](coverPath+"/geographicCoverage/boundingCoordinates/westBoundingCoordinate", parseFloat, func(g *GeospatialCoverage, f float64) { g.BBox.West = f }),
		digester.SetParsed[GeospatialCoverage](coverPath+"/geographicCoverage/boundingCoordinates/eastBoundingCoordinate", parseFloat, func(g *GeospatialCoverage, f float64) { g.BBox.East = f }),
		digester.SetParsed[GeospatialCoverage](coverPath+"/geographicCoverage/boundingCoordinates/northBoundingCoordinate", parseFloat, func(g *GeospatialCoverage, f float64) { g.BBox.North = f }),
		digester.SetParsed[GeospatialCoverage](coverPath+"/geographicCoverage/boundingCoordinates/southBoundingCoordinate", parseFloat, func(g *GeospatialCoverage, f float64) { g.BBox.South = f }),
		digester.SetNext[Eml, GeospatialCoverage](coverPath+"/geographicCoverage", func(e *Eml, g *GeospatialCoverage) {
			e.GeospatialCoverages = append(e.GeospatialCoverages, g)
		}),

		digester.Create[TemporalCoverage](coverPath + "/temporalCoverage"),
		digester.SetParsed[TemporalCoverage](coverPath+"/temporalCoverage/singleDateTime/calendarDate", metadata.ParseDate, (*TemporalCoverage).setSingle),
		digester.SetParsed[TemporalCoverage](coverPath+"/temporalCoverage/rangeOfDates/beginDate/calendarDate", metadata.ParseDate, (*TemporalCoverage).setBegin),
		digester.SetParsed[TemporalCoverage](coverPath+"/temporalCoverage/rangeOfDates/endDate/calendarDate", metadata.ParseDate, (*TemporalCoverage).setEnd),
		digester.SetNext[Eml, TemporalCoverage](coverPath+"/temporalCoverage", func(e *Eml, tc *TemporalCoverage) {
			e.TemporalCoverages = append(e.TemporalCoverages, tc)
		}),

		digester.Create[TaxonomicCoverage](coverPath + "/taxonomicCoverage"),
		digester.SetText[TaxonomicCoverage](coverPath+"/taxonomicCoverage/generalTaxonomicCoverage", func(tc *TaxonomicCoverage, v string) { tc.Description = v }),
		digester.Create[TaxonKeyword](coverPath + "/taxonomicCoverage/taxonomicClassification"),
		digester.SetText[TaxonKeyword](coverPath+"/taxonomicCoverage/taxonomicClassification/taxonRankName", func(k *TaxonKeyword, v string) { k.Rank = v }),
		digester.SetText[TaxonKeyword](coverPath+"/taxonomicCoverage/taxonomicClassification/taxonRankValue", func(k *TaxonKeyword, v string) { k.ScientificName = v }),
		digester.SetText[TaxonKeyword](coverPath+"/taxonomicCoverage/taxonomicClassification/commonName", func(k *TaxonKeyword, v string) { k.CommonName = v }),
		digester.SetNext[TaxonomicCoverage, TaxonKeyword](coverPath+"/taxonomicCoverage/taxonomicClassification", func(tc *TaxonomicCoverage, k *TaxonKeyword) {
			tc.Keywords = append(tc.Keywords, k)
		}),
		digester.SetNext[Eml, TaxonomicCoverage](coverPath+"/taxonomicCoverage", func(e *Eml, tc *TaxonomicCoverage) {
			e.TaxonomicCoverages = append(e.TaxonomicCoverages, tc)
		}),

		digester.SetRawXML[Eml](datasetPath+"/purpose", func(e *Eml, v string) { e.Purpose = docbook.FromRawXML(v) }),
		digester.SetRawXML[Eml](datasetPath+"/introduction", func(e *Eml, v string) { e.Introduction = docbook.FromRawXML(v) }),
		digester.SetRawXML[Eml](datasetPath+"/gettingStarted", func(e *Eml, v string) { e.GettingStarted = docbook.FromRawXML(v) }),
		digester.SetRawXML[Eml](datasetPath+"/acknowledgements", func(e *Eml, v string) { e.Acknowledgements = docbook.FromRawXML(v) }),

		digester.SetRawXML[Eml](datasetPath+"/maintenance/description", func(e *Eml, v string) {
			e.UpdateFrequencyDescription = docbook.FromRawXML(v)
		}),
		digester.Call[Eml](datasetPath+"/maintenance/maintenanceUpdateFrequency", func(e *Eml, v string) error {
			f, err := ParseUpdateFrequency(v)
			if err != nil {
				return err
			}
			e.UpdateFrequency = f
			return nil
		}),

		// Methods
		digester.SetRawXML[Eml](methodsPath+"/methodStep/description", func(e *Eml, v string) {
			if step := docbook.FromRawXML(v); step != "" {
				e.MethodSteps = append(e.MethodSteps, step)
			}
		}),
		digester.SetRawXML[Eml](methodsPath+"/sampling/studyExtent/description", func(e *Eml, v string) { e.StudyExtent = docbook.FromRawXML(v) }),
		digester.SetRawXML[Eml](methodsPath+"/sampling/samplingDescription", func(e *Eml, v string) { e.SampleDescription = docbook.FromRawXML(v) }),
		digester.SetRawXML[Eml](methodsPath+"/qualityControl/description", func(e *Eml, v string) { e.QualityControl = docbook.FromRawXML(v) }),

		// Project
		digester.Create[Project](projectPath),
		digester.SetAttr[Project](projectPath, "id", func(p *Project, v string) { p.ID = v }),
		digester.SetText[Project](projectPath+"/title", func(p *Project, v string) { p.Title = v }),
		digester.SetRawXML[Project](projectPath+"/abstract", func(p *Project, v string) { p.Description = docbook.FromRawXML(v) }),
		digester.SetRawXML[Project](projectPath+"/funding", func(p *Project, v string) { p.Funding = docbook.FromRawXML(v) }),
		digester.SetText[Project](projectPath+"/studyAreaDescription/descriptor/descriptorValue", func(p *Project, v string) { p.StudyAreaDescription = v }),
		digester.SetRawXML[Project](projectPath+"/designDescription/description", func(p *Project, v string) { p.DesignDescription = docbook.FromRawXML(v) }),
		digester.Create[Award](projectPath + "/award"),
		digester.SetText[Award](projectPath+"/award/funderName", func(a *Award, v string) { a.FunderName = v }),
		digester.Call[Award](projectPath+"/award/funderIdentifier", func(a *Award, v string) error {
			if v != "" {
				a.FunderIdentifiers = append(a.FunderIdentifiers, v)
			}
			return nil
		}),
		digester.SetText[Award](projectPath+"/award/awardNumber", func(a *Award, v string) { a.AwardNumber = v }),
		digester.SetText[Award](projectPath+"/award/title", func(a *Award, v string) { a.Title = v }),
		digester.SetText[Award](projectPath+"/award/awardUrl", func(a *Award, v string) { a.URL = v }),
		digester.SetNext[Project, Award](projectPath+"/award", func(p *Project, a *Award) { p.Awards = append(p.Awards, a) }),
		digester.SetNext[Eml, Project](projectPath, func(e *Eml, p *Project) { e.Project = p }),
	},

	agentRules[Eml](datasetPath+"/creator", func(e *Eml, a *Agent) { e.Creators = append(e.Creators, a) }),
	agentRules[Eml](datasetPath+"/metadataProvider", func(e *Eml, a *Agent) { e.MetadataProviders = append(e.MetadataProviders, a) }),
	agentRules[Eml](datasetPath+"/associatedParty", func(e *Eml, a *Agent) { e.AssociatedParties = append(e.AssociatedParties, a) }),
	agentRules[Eml](datasetPath+"/contact", func(e *Eml, a *Agent) { e.Contacts = append(e.Contacts, a) }),
	agentRules[Project](projectPath+"/personnel", func(p *Project, a *Agent) { p.Personnel = append(p.Personnel, a) }),

	[]digester.Rule{
		// GBIF additional metadata
		digester.SetParsed[Eml](gbifPath+"/dateStamp", metadata.ParseDate, func(e *Eml, t time.Time) { e.DateStamp = &t }),
		digester.SetText[Eml](gbifPath+"/hierarchyLevel", func(e *Eml, v string) { e.HierarchyLevel = v }),
		digester.SetText[Eml](gbifPath+"/resourceLogoUrl", func(e *Eml, v string) { e.LogoURL = v }),

		digester.Create[Citation](gbifPath + "/citation"),
		digester.SetAttr[Citation](gbifPath+"/citation", "identifier", func(c *Citation, v string) { c.Identifier = v }),
		digester.SetText[Citation](gbifPath+"/citation", func(c *Citation, v string) { c.Text = v }),
		digester.SetNext[Eml, Citation](gbifPath+"/citation", func(e *Eml, c *Citation) { e.Citation = c }),

		digester.CallWithAttr[Eml](gbifPath+"/bibliography/citation", "identifier", func(e *Eml, text, id string) error {
			if text != "" {
				e.BibliographicCitations = append(e.BibliographicCitations, &Citation{Identifier: id, Text: text})
			}
			return nil
		}),

		digester.Create[PhysicalData](gbifPath + "/physical"),
		digester.SetText[PhysicalData](gbifPath+"/physical/objectName", func(p *PhysicalData, v string) { p.Name = v }),
		digester.SetText[PhysicalData](gbifPath+"/physical/characterEncoding", func(p *PhysicalData, v string) { p.CharsetEncoding = v }),
		digester.SetText[PhysicalData](gbifPath+"/physical/dataFormat/externallyDefinedFormat/formatName", func(p *PhysicalData, v string) { p.Format = v }),
		digester.SetText[PhysicalData](gbifPath+"/physical/dataFormat/externallyDefinedFormat/formatVersion", func(p *PhysicalData, v string) { p.FormatVersion = v }),
		digester.SetText[PhysicalData](gbifPath+"/physical/distribution/online/url", func(p *PhysicalData, v string) { p.DistributionURL = v }),
		digester.SetNext[Eml, PhysicalData](gbifPath+"/physical", func(e *Eml, p *PhysicalData) { e.PhysicalData = append(e.PhysicalData, p) }),

		digester.Create[Collection](gbifPath + "/collection"),
		digester.SetText[Collection](gbifPath+"/collection/parentCollectionIdentifier", func(c *Collection, v string) { c.ParentIdentifier = v }),
		digester.SetText[Collection](gbifPath+"/collection/collectionIdentifier", func(c *Collection, v string) { c.Identifier = v }),
		digester.SetText[Collection](gbifPath+"/collection/collectionName", func(c *Collection, v string) { c.Name = v }),
		digester.SetNext[Eml, Collection](gbifPath+"/collection", func(e *Eml, c *Collection) { e.Collections = append(e.Collections, c) }),

		digester.Create[TemporalCoverage](gbifPath + "/formationPeriod"),
		digester.SetText[TemporalCoverage](gbifPath+"/formationPeriod", func(tc *TemporalCoverage, v string) {
			tc.Kind = FormationPeriod
			tc.Period = v
		}),
		digester.SetNext[Eml, TemporalCoverage](gbifPath+"/formationPeriod", func(e *Eml, tc *TemporalCoverage) {
			e.TemporalCoverages = append(e.TemporalCoverages, tc)
		}),
		digester.Create[TemporalCoverage](gbifPath + "/livingTimePeriod"),
		digester.SetText[TemporalCoverage](gbifPath+"/livingTimePeriod", func(tc *TemporalCoverage, v string) {
			tc.Kind = LivingTimePeriod
			tc.Period = v
		}),
		digester.SetNext[Eml, TemporalCoverage](gbifPath+"/livingTimePeriod", func(e *Eml, tc *TemporalCoverage) {
			e.TemporalCoverages = append(e.TemporalCoverages, tc)
		}),

		digester.Call[Eml](gbifPath+"/specimenPreservationMethod", func(e *Eml, v string) error {
			if v != "" {
				e.SpecimenPreservationMethods = append(e.SpecimenPreservationMethods, v)
			}
			return nil
		}),

		digester.Create[CuratorialUnit](gbifPath + "/jgtiCuratorialUnit"),
		digester.SetText[CuratorialUnit](gbifPath+"/jgtiCuratorialUnit/jgtiUnitType", func(u *CuratorialUnit, v string) { u.UnitType = v }),
		digester.SetParsed[CuratorialUnit](gbifPath+"/jgtiCuratorialUnit/jgtiUnitRange/beginRange", strconv.Atoi, func(u *CuratorialUnit, n int) { u.RangeStart = n }),
		digester.SetParsed[CuratorialUnit](gbifPath+"/jgtiCuratorialUnit/jgtiUnitRange/endRange", strconv.Atoi, func(u *CuratorialUnit, n int) { u.RangeEnd = n }),
		digester.CallWithAttr[CuratorialUnit](gbifPath+"/jgtiCuratorialUnit/jgtiUnits", "uncertaintyMeasure", (*CuratorialUnit).setCount),
		digester.SetNext[Eml, CuratorialUnit](gbifPath+"/jgtiCuratorialUnit", func(e *Eml, u *CuratorialUnit) {
			e.CuratorialUnits = append(e.CuratorialUnits, u)
		}),
	},
))

// agentRules binds an agent element at path and links it to the parent P.
func agentRules[P any](path string, link func(*P, *Agent)) []digester.Rule {
	return []digester.Rule{
		digester.Create[Agent](path),
		digester.SetText[Agent](path+"/individualName/givenName", func(a *Agent, v string) { a.FirstName = v }),
		digester.SetText[Agent](path+"/individualName/surName", func(a *Agent, v string) { a.LastName = v }),
		digester.SetText[Agent](path+"/organizationName", func(a *Agent, v string) { a.Organisation = v }),
		digester.SetText[Agent](path+"/positionName", func(a *Agent, v string) { a.Position = v }),
		digester.Call[Agent](path+"/address/deliveryPoint", func(a *Agent, v string) error {
			a.Address.Address = joinNonEmpty(", ", a.Address.Address, v)
			return nil
		}),
		digester.SetText[Agent](path+"/address/city", func(a *Agent, v string) { a.Address.City = v }),
		digester.SetText[Agent](path+"/address/administrativeArea", func(a *Agent, v string) { a.Address.Province = v }),
		digester.SetText[Agent](path+"/address/postalCode", func(a *Agent, v string) { a.Address.PostalCode = v }),
		digester.SetText[Agent](path+"/address/country", func(a *Agent, v string) { a.Address.Country = v }),
		digester.SetText[Agent](path+"/phone", func(a *Agent, v string) { a.Phone = v }),
		digester.SetText[Agent](path+"/electronicMailAddress", func(a *Agent, v string) { a.Email = v }),
		digester.SetText[Agent](path+"/onlineUrl", func(a *Agent, v string) { a.Homepage = v }),
		digester.Create[UserID](path + "/userId"),
		digester.SetAttr[UserID](path+"/userId", "directory", func(u *UserID, v string) { u.Directory = v }),
		digester.SetText[UserID](path+"/userId", func(u *UserID, v string) { u.Identifier = v }),
		digester.SetNext[Agent, UserID](path+"/userId", func(a *Agent, u *UserID) { a.UserIDs = append(a.UserIDs, u) }),
		digester.SetText[Agent](path+"/role", func(a *Agent, v string) { a.Role = v }),
		digester.SetNext[P, Agent](path, link),
	}
}

func (u *CuratorialUnit) setCount(text, uncertainty string) error {
	n, err := strconv.Atoi(text)
	if err != nil {
		return err
	}
	u.Count = n
	if uncertainty == "" {
		return nil
	}
	d, err := strconv.Atoi(uncertainty)
	if err != nil {
		return err
	}
	u.Uncertainty = d
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func concat(tables ...[]digester.Rule) []digester.Rule {
	var out []digester.Rule
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

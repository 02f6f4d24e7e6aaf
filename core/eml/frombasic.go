package eml

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
)

// FromBasic builds an EML document from flat metadata, typically a bound
// Dublin Core record, so that it can be written as EML. The document gets a
// fresh GUID at DefaultVersion.
func FromBasic(b metadata.Basic) *Eml {
	e := New()
	e.GUID = uuid.NewString()
	e.Title = b.Title
	e.Language = b.Language
	e.PubDate = b.Published
	e.DistributionURL = b.Homepage

	switch len(b.Descriptions) {
	case 0:
	case 1:
		e.Description = b.Descriptions[0]
	default:
		var sb strings.Builder
		for _, d := range b.Descriptions {
			sb.WriteString("<p>" + d + "</p>")
		}
		e.Description = sb.String()
	}

	if b.Subject != "" {
		ks := &KeywordSet{Thesaurus: "N/A"}
		for _, k := range strings.Split(b.Subject, ";") {
			ks.addKeyword(strings.TrimSpace(k))
		}
		e.KeywordSets = append(e.KeywordSets, ks)
	}

	if b.Rights != "" {
		e.SetIntellectualRights(b.Rights)
	}
	if e.License == metadata.LicenseUnspecified && b.License.IsConcrete() {
		e.License = b.License
	}

	if b.SourceID != "" {
		e.AlternateIdentifiers = append(e.AlternateIdentifiers, b.SourceID)
	}
	if a := agentFromName(b.CreatorName, b.CreatorEmail); a != nil {
		e.Creators = append(e.Creators, a)
		e.MetadataProviders = append(e.MetadataProviders, a)
	}
	if a := agentFromName(b.PublisherName, b.PublisherEmail); a != nil {
		e.Contacts = append(e.Contacts, a)
	}
	return e
}

// agentFromName splits a display name on its last space into given name and
// surname. A bare email gives an agent with only the email set.
func agentFromName(name, email string) *Agent {
	name = strings.TrimSpace(name)
	if name == "" && email == "" {
		return nil
	}
	a := &Agent{Email: email}
	if i := strings.LastIndex(name, " "); i > 0 {
		a.FirstName = strings.TrimSpace(name[:i])
		a.LastName = name[i+1:]
	} else {
		a.LastName = name
	}
	return a
}

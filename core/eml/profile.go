package eml

import (
	"fmt"
	"strings"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/errors"
)

// Profile is a version of the GBIF metadata profile of EML.
type Profile struct {
	Name      string
	Version   string
	Namespace string
	Schema    string
	// EML22 profiles carry licensed, introduction, gettingStarted,
	// acknowledgements and project awards.
	EML22 bool
}

var (
	ProfileGBIF11 = Profile{
		Name:      "GBIF 1.1",
		Version:   "1.1",
		Namespace: "eml://ecoinformatics.org/eml-2.1.1",
		Schema:    "http://rs.gbif.org/schema/eml-gbif-profile/1.1/eml.xsd",
	}
	ProfileGBIF12 = Profile{
		Name:      "GBIF 1.2",
		Version:   "1.2",
		Namespace: "https://eml.ecoinformatics.org/eml-2.2.0",
		Schema:    "http://rs.gbif.org/schema/eml-gbif-profile/1.2/eml.xsd",
		EML22:     true,
	}
	ProfileGBIF13 = Profile{
		Name:      "GBIF 1.3",
		Version:   "1.3",
		Namespace: "https://eml.ecoinformatics.org/eml-2.2.0",
		Schema:    "http://rs.gbif.org/schema/eml-gbif-profile/1.3/eml.xsd",
		EML22:     true,
	}

	// DefaultProfile is the profile written when none is requested.
	DefaultProfile = ProfileGBIF13
)

// Profiles returns the supported profiles, oldest first.
func Profiles() []Profile {
	return []Profile{ProfileGBIF11, ProfileGBIF12, ProfileGBIF13}
}

// SchemaLocation returns the xsi:schemaLocation value.
func (p Profile) SchemaLocation() string {
	return p.Namespace + " " + p.Schema
}

func (p Profile) String() string {
	return p.Name
}

// ParseProfile accepts "1.3", "gbif-1.3" or "GBIF 1.3".
func ParseProfile(s string) (Profile, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "gbif")
	v = strings.TrimLeft(v, " -_v")
	for _, p := range Profiles() {
		if v == p.Version {
			return p, nil
		}
	}
	return Profile{}, errors.NewUnsupported("profile", fmt.Sprintf("%q is not a GBIF EML profile", s))
}

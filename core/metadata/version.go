package metadata

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/errors"
)

// Version is a major.minor resource version.
type Version struct {
	Major int
	Minor int
}

// DefaultVersion is the version of a resource that was never published.
var DefaultVersion = Version{Major: 1, Minor: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// BumpMajor returns the next major version. The minor version restarts at 0.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1}
}

// BumpMinor returns the next minor version of the same major version.
func (v Version) BumpMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// Compare returns -1, 0 or +1 depending on whether v is older, equal or newer
// than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

// versionGrammar matches "v7", "v7.41", "7.41" and "7".
//
//nolint:govet // participle grammar tags are not standard struct tags
type versionGrammar struct {
	Prefix bool `@("v" | "V")?`
	Major  int  `@Int`
	Minor  *int `( "." @Int )?`
}

var versionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[vV]`},
	{Name: "Punct", Pattern: `\.`},
})

var versionParser = participle.MustBuild[versionGrammar](
	participle.Lexer(versionLexer),
)

// ParseVersion parses "1.3" or "v1.3". A version without a minor part has
// minor version 0.
func ParseVersion(s string) (Version, error) {
	g, err := parseVersionGrammar(s)
	if err != nil {
		return Version{}, err
	}
	v := Version{Major: g.Major}
	if g.Minor != nil {
		v.Minor = *g.Minor
	}
	return v, nil
}

func parseVersionGrammar(s string) (*versionGrammar, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.NewParse("version", "", "empty version")
	}
	g, err := versionParser.ParseString("", s)
	if err != nil {
		return nil, &errors.ParseError{Format: "version", Path: s, Message: "invalid version", Err: err}
	}
	return g, nil
}

// ParsePackageID splits an EML packageId of the form guid/v{major}.{minor}.
// A suffix without a minor part ("guid/v7") is not a version this system
// wrote and yields DefaultVersion. Without a version suffix the whole input
// is the guid and ok is false.
func ParsePackageID(s string) (guid string, v Version, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return s, Version{}, false
	}
	suffix := s[i+1:]
	if suffix == "" || (suffix[0] != 'v' && suffix[0] != 'V') {
		return s, Version{}, false
	}
	g, err := parseVersionGrammar(suffix)
	if err != nil {
		return s, Version{}, false
	}
	if g.Minor == nil {
		return s[:i], DefaultVersion, true
	}
	return s[:i], Version{Major: g.Major, Minor: *g.Minor}, true
}

// FormatPackageID joins a guid and version into a packageId.
func FormatPackageID(guid string, v Version) string {
	return guid + "/v" + v.String()
}

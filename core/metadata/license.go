package metadata

import (
	"strings"
)

// License is one of the licenses GBIF accepts for published data.
type License int

const (
	LicenseUnspecified License = iota
	LicenseCC0
	LicenseCCBy
	LicenseCCByNC
	LicenseUnsupported
)

type licenseInfo struct {
	code      string
	spdx      string
	title     string
	url       string
	statement string
}

var licenses = map[License]licenseInfo{
	LicenseCC0: {
		code:  "CC0_1_0",
		spdx:  "CC0-1.0",
		title: "Public Domain (CC0 1.0)",
		url:   "http://creativecommons.org/publicdomain/zero/1.0/legalcode",
		statement: `To the extent possible under law, the publisher has waived all rights to these data and has dedicated them to the ` +
			`<a href="http://creativecommons.org/publicdomain/zero/1.0/legalcode">Public Domain (CC0 1.0)</a>. ` +
			`Users may copy, modify, distribute and use the work, including for commercial purposes, without restriction.`,
	},
	LicenseCCBy: {
		code:  "CC_BY_4_0",
		spdx:  "CC-BY-4.0",
		title: "Creative Commons Attribution (CC-BY) 4.0",
		url:   "http://creativecommons.org/licenses/by/4.0/legalcode",
		statement: `This work is licensed under a ` +
			`<a href="http://creativecommons.org/licenses/by/4.0/legalcode">Creative Commons Attribution (CC-BY) 4.0 License</a>.`,
	},
	LicenseCCByNC: {
		code:  "CC_BY_NC_4_0",
		spdx:  "CC-BY-NC-4.0",
		title: "Creative Commons Attribution Non Commercial (CC-BY-NC) 4.0",
		url:   "http://creativecommons.org/licenses/by-nc/4.0/legalcode",
		statement: `This work is licensed under a ` +
			`<a href="http://creativecommons.org/licenses/by-nc/4.0/legalcode">Creative Commons Attribution Non Commercial (CC-BY-NC) 4.0 License</a>.`,
	},
}

// shorthands maps normalized acronyms to licenses.
var shorthands = map[string]License{
	"cc0":      LicenseCC0,
	"cc-zero":  LicenseCC0,
	"cc-by":    LicenseCCBy,
	"ccby":     LicenseCCBy,
	"cc-by-nc": LicenseCCByNC,
	"ccbync":   LicenseCCByNC,
}

// Licenses returns every concrete license in declaration order.
func Licenses() []License {
	return []License{LicenseCC0, LicenseCCBy, LicenseCCByNC}
}

func (l License) String() string {
	switch l {
	case LicenseUnspecified:
		return "UNSPECIFIED"
	case LicenseUnsupported:
		return "UNSUPPORTED"
	}
	if info, ok := licenses[l]; ok {
		return info.code
	}
	return "UNSUPPORTED"
}

// Title returns the human readable license name.
func (l License) Title() string {
	return licenses[l].title
}

// SPDX returns the SPDX license identifier, or "" for no concrete license.
func (l License) SPDX() string {
	return licenses[l].spdx
}

// URL returns the canonical legal code URL, or "" for no concrete license.
func (l License) URL() string {
	return licenses[l].url
}

// Statement returns the canonical rights statement in HTML, linking to the
// legal code.
func (l License) Statement() string {
	return licenses[l].statement
}

// IsConcrete reports whether l names an actual license.
func (l License) IsConcrete() bool {
	_, ok := licenses[l]
	return ok
}

// ParseLicense recognizes a license from its code (CC_BY_4_0), acronym
// (CC-BY, CC BY 4.0, cc0) or legal code URL, with or without scheme, "www."
// prefix, "/legalcode" or trailing slash.
func ParseLicense(s string) (License, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LicenseUnspecified, false
	}
	if l, ok := licenseFromURL(s); ok {
		return l, true
	}
	l, ok := shorthands[normalizeCode(s)]
	return l, ok
}

// LicenseFromText finds the single license whose legal code URL appears in
// free text, such as an HTML rights statement.
func LicenseFromText(s string) (License, bool) {
	if l, ok := ParseLicense(s); ok {
		return l, true
	}
	lower := strings.ToLower(s)
	found := LicenseUnspecified
	for _, l := range Licenses() {
		if strings.Contains(lower, urlKey(licenses[l].url)) {
			if found != LicenseUnspecified {
				return LicenseUnspecified, false
			}
			found = l
		}
	}
	return found, found != LicenseUnspecified
}

// ExpandLicense replaces a recognized license shorthand or URL with its
// canonical statement. Anything else is returned unchanged.
func ExpandLicense(s string) string {
	if l, ok := ParseLicense(s); ok {
		return l.Statement()
	}
	return s
}

func licenseFromURL(s string) (License, bool) {
	key := urlKey(s)
	for _, l := range Licenses() {
		if key == urlKey(licenses[l].url) {
			return l, true
		}
	}
	return LicenseUnspecified, false
}

// urlKey reduces a legal code URL to host and path.
func urlKey(u string) string {
	u = strings.ToLower(u)
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/legalcode")
	return u
}

func normalizeCode(s string) string {
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	for _, suffix := range []string{"-4.0", "-4-0", "4.0", "-1.0", "-1-0", "1.0"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	return strings.TrimSuffix(s, "-")
}

package clixml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// versionPattern mirrors pypsrp's PSVersion validation: major and minor are
// mandatory, build and revision are optional but cannot be supplied with a
// leading zero unless the component's value is exactly zero.
var versionPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)(\.(0|[1-9]\d*)(\.(0|[1-9]\d*))?)?$`)

// Version is .NET's System.Version: 2-4 non-negative integer components
// (Major.Minor[.Build[.Revision]]).
type Version struct {
	Major, Minor, Build, Revision int
	HasBuild, HasRevision         bool
}

// ParseVersion parses the wire form "M.m[.b[.r]]".
func ParseVersion(s string) (Version, error) {
	if !versionPattern.MatchString(s) {
		return Version{}, &FormatError{Type: "Version", Reason: fmt.Sprintf("malformed version string %q", s)}
	}
	parts := strings.Split(s, ".")
	v := Version{}
	v.Major, _ = strconv.Atoi(parts[0])
	v.Minor, _ = strconv.Atoi(parts[1])
	if len(parts) > 2 {
		v.Build, _ = strconv.Atoi(parts[2])
		v.HasBuild = true
	}
	if len(parts) > 3 {
		v.Revision, _ = strconv.Atoi(parts[3])
		v.HasRevision = true
	}
	return v, nil
}

// String renders the version in its wire form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d", v.Major, v.Minor)
	if v.HasBuild {
		s += fmt.Sprintf(".%d", v.Build)
	}
	if v.HasRevision {
		s += fmt.Sprintf(".%d", v.Revision)
	}
	return s
}

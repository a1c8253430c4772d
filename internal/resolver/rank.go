package resolver

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

type rankedTag struct {
	name    string
	version *semver.Version
}

// parseTagVersion strictly parses a tag name as major.minor.patch with
// optional pre-release and build metadata. A single leading "v" is allowed.
func parseTagVersion(name string) *semver.Version {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(name, "v"))
	if err != nil {
		return nil
	}
	return v
}

// Rank orders tag names newest first. Names that parse as semantic versions
// come first in descending precedence; the rest keep their listing order
// after them.
func Rank(names []string) []string {
	tags := make([]rankedTag, len(names))
	for i, name := range names {
		tags[i] = rankedTag{name: name, version: parseTagVersion(name)}
	}

	sort.SliceStable(tags, func(i, j int) bool {
		a, b := tags[i].version, tags[j].version
		switch {
		case a != nil && b != nil:
			return a.GreaterThan(b)
		case a != nil:
			return true
		default:
			return false
		}
	})

	ranked := make([]string, len(tags))
	for i, t := range tags {
		ranked[i] = t.name
	}
	return ranked
}

// Newest returns the first tag name after ranking.
func Newest(names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	return Rank(names)[0], true
}

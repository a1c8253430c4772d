package resolver

import (
	"regexp"
	"strings"
)

// Kind classifies the version part of an action reference.
type Kind int

const (
	KindExactTag Kind = iota
	KindCommit
	KindFloatingMajor
	KindBranchAlias
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindFloatingMajor:
		return "floating major"
	case KindBranchAlias:
		return "branch alias"
	default:
		return "exact tag"
	}
}

var (
	commitPattern        = regexp.MustCompile(`^[0-9a-f]{40}$`)
	floatingMajorPattern = regexp.MustCompile(`^v[0-9]+$`)
)

// Classify returns the kind of a specifier as written in a workflow.
func Classify(specifier string) Kind {
	switch {
	case commitPattern.MatchString(specifier):
		return KindCommit
	case floatingMajorPattern.MatchString(specifier):
		return KindFloatingMajor
	case strings.EqualFold(specifier, "main"), strings.EqualFold(specifier, "master"):
		return KindBranchAlias
	default:
		return KindExactTag
	}
}

// IsCommitSHA reports whether s is a full lowercase commit SHA.
func IsCommitSHA(s string) bool {
	return commitPattern.MatchString(s)
}

package workflow

import (
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders the change from before to after. It returns "" when
// both are equal.
func UnifiedDiff(filePath string, before, after []byte) (string, error) {
	if string(before) == string(after) {
		return "", nil
	}

	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "a/" + filePath,
		ToFile:   "b/" + filePath,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(d)
}

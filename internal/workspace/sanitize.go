package workspace

import "strings"

// unsafeBranchChars are the characters spec §4.4 requires replacing for
// filesystem use: / \ : * ? " < > |
const unsafeBranchChars = `/\:*?"<>|`

// SanitizeBranchName replaces characters unsafe in a filesystem path with
// "-" and trims leading/trailing "-". It is idempotent and injective over
// the allowed character set (spec §8 round-trip laws).
func SanitizeBranchName(branch string) string {
	var b strings.Builder
	b.Grow(len(branch))
	for _, r := range branch {
		if strings.ContainsRune(unsafeBranchChars, r) {
			b.WriteByte('-')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

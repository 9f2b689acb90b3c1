package filter

import "regexp"

// MaxNameLength is the longest accepted filter name, in bytes.
const MaxNameLength = 200

// Names become folder names, so path separators and NUL are rejected.
var validName = regexp.MustCompile(`^[^ \t\n\r/\\\x00]{1,200}$`)

// ValidName reports whether name can be used as a filter name.
func ValidName(name string) bool {
	return len(name) <= MaxNameLength && validName.MatchString(name)
}

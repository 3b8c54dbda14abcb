package flatconf

import (
	"regexp"
	"strings"
	"unicode"
)

// keyPattern is the grammar for mapping keys: no path delimiters or spaces
// anywhere and no leading ':' so a key can never collide with a marker.
var keyPattern = regexp.MustCompile(`^[^:/\[\] ][^/\[\] ]*$`)

// ValidKey reports whether key can be used as a mapping key.
func ValidKey(key string) bool {
	if !keyPattern.MatchString(key) {
		return false
	}
	return strings.IndexFunc(key, unicode.IsControl) < 0
}

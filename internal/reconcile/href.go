package reconcile

import (
	"path"
	"strings"
)

const (
	// SchemeMarker prefixes every canonical location reference.
	SchemeMarker = "file:"
	// ContentMarker is the leading segment naming the content root.
	ContentMarker = "content"
)

// CandidatePath turns a raw xlink:href into a path relative to the content
// root. underContent is false when the reference did not start with the
// content marker segment; the cleaned path is still returned.
func CandidatePath(href string) (rel string, underContent bool) {
	s := strings.TrimSpace(href)
	for strings.HasPrefix(strings.ToLower(s), SchemeMarker) {
		s = strings.TrimSpace(s[len(SchemeMarker):])
	}
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.TrimLeft(s, "/")
	if s == "" {
		return "", false
	}
	s = path.Clean(s)

	if s == ContentMarker {
		return "", true
	}
	if strings.HasPrefix(s, ContentMarker+"/") {
		return strings.TrimPrefix(s, ContentMarker+"/"), true
	}
	return s, false
}

// CanonicalHref is the normalized reference for a content-relative path.
func CanonicalHref(rel string) string {
	return SchemeMarker + ContentMarker + "/" + rel
}

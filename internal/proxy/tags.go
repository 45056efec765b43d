package proxy

import (
	"strings"

	"github.com/Gopher0727/GlobalChat/internal/models"
)

// MatchTag returns the index of the first tag in tags that encloses text,
// and the enclosed content with surrounding whitespace trimmed.
//
// Tags are tried in stored order and the first hit wins even when a later
// tag would match more of the text; users order their tags to pick
// precedence. A tag with neither prefix nor suffix never matches, and the
// text between prefix and suffix must be at least one byte long.
// caseSensitive only affects the prefix and suffix comparison.
func MatchTag(text string, tags []models.ProxyTag, caseSensitive bool) (int, string, bool) {
	for i, tag := range tags {
		if tag.IsEmpty() {
			continue
		}
		if len(text)-len(tag.Prefix)-len(tag.Suffix) <= 0 {
			continue
		}
		if !hasPrefix(text, tag.Prefix, caseSensitive) || !hasSuffix(text, tag.Suffix, caseSensitive) {
			continue
		}
		inner := text[len(tag.Prefix) : len(text)-len(tag.Suffix)]
		return i, strings.TrimSpace(inner), true
	}
	return -1, "", false
}

func hasPrefix(s, prefix string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.HasPrefix(s, prefix)
	}
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffix(s, suffix string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.HasSuffix(s, suffix)
	}
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// ValidateTag rejects tags that could never match.
func ValidateTag(tag models.ProxyTag) error {
	if tag.IsEmpty() {
		return errEmptyTag
	}
	return nil
}

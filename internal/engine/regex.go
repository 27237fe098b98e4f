package engine

import (
	"regexp"

	"github.com/rulez-dev/rulez/internal/regexcache"
)

// regexMatcher is a thin handle into the process-wide regex cache,
// retained per compiled rule so Matches never repeats the cache lookup.
type regexMatcher struct {
	re *regexp.Regexp
}

func newRegexMatcher(pattern string, caseInsensitive bool) (*regexMatcher, error) {
	re, err := regexcache.Get(pattern, caseInsensitive)
	if err != nil {
		return nil, err
	}
	return &regexMatcher{re: re}, nil
}

func (m *regexMatcher) MatchString(s string) bool {
	if m == nil || m.re == nil {
		return false
	}
	return m.re.MatchString(s)
}

// Package regexcache provides a process-wide, concurrency-safe cache of
// compiled regular expressions keyed by (pattern, case-insensitive).
// Compilation is amortized across every event the process evaluates —
// the pattern set is finite and bounded by whatever configuration loaded.
//
// Standard-library only: regexp.Compile plus a map guarded by a
// sync.RWMutex is the entire
// concern here; no third-party cache library in the reference corpus
// covers this narrow a need without pulling in unrelated features.
package regexcache

import (
	"fmt"
	"regexp"
	"sync"
)

type key struct {
	pattern         string
	caseInsensitive bool
}

var (
	mu    sync.RWMutex
	cache = map[key]*regexp.Regexp{}
)

// Get returns the compiled regex for pattern, compiling and caching it on
// first use. caseInsensitive wraps the pattern in a (?i) flag group.
func Get(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	k := key{pattern: pattern, caseInsensitive: caseInsensitive}

	mu.RLock()
	re, ok := cache[k]
	mu.RUnlock()
	if ok {
		return re, nil
	}

	effective := pattern
	if caseInsensitive {
		effective = "(?i)" + pattern
	}
	re, err := regexp.Compile(effective)
	if err != nil {
		return nil, fmt.Errorf("compiling regex %q: %w", pattern, err)
	}

	mu.Lock()
	// Accept occasional duplicate compilation on a concurrent miss rather
	// than serializing every lookup through a single writer lock.
	cache[k] = re
	mu.Unlock()

	return re, nil
}

// Len reports the number of distinct compiled patterns currently cached.
// Exposed for tests.
func Len() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(cache)
}

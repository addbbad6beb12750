// Package glob wraps doublestar's shell-style matcher to give AFD's
// query engine and job-filter evaluation the exact matching rules
// spec.md §4.2 calls for: '*', '?', '[set]', '\' escapes, and an empty
// pattern that matches everything (doublestar, like filepath.Match,
// treats an empty pattern as matching only the empty string).
package glob

import "github.com/bmatcuk/doublestar/v4"

// Match reports whether name satisfies pattern under AFD's matching
// rules. doublestar treats '/' as a path separator: '*' and '?' never
// match it, and '**' matches across separators.
func Match(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		// A malformed pattern (e.g. an unterminated '[') cannot match
		// anything; the caller already validated the pattern at job
		// creation time in the normal flow, so this is a defensive
		// fallback rather than an expected path.
		return false
	}
	return ok
}

// Valid reports whether pattern is syntactically well-formed, so
// callers constructing a JobIdentity's filter list can reject garbage
// early instead of having every later Match call silently return
// false.
func Valid(pattern string) bool {
	if pattern == "" {
		return true
	}
	_, err := doublestar.Match(pattern, "")
	return err == nil
}

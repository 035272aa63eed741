package pathsync

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

type exclusionMatchType int

const (
	prefixMatch exclusionMatchType = iota
	suffixMatch
	dirPrefixMatch
	globMatch
)

// exclusionSet holds the categorized exclusion patterns for efficient matching.
type exclusionSet struct {
	// literals are for exact full-path matches, which are the fastest to check.
	literals map[string]struct{}
	// basenameLiterals are for exact basename matches (e.g., "node_modules").
	basenameLiterals map[string]struct{}
	// nonLiterals need a scan: prefixes, suffixes and doublestar globs.
	nonLiterals []exclusion
}

// exclusion stores the pre-analyzed pattern details.
type exclusion struct {
	pattern       string // original pattern, kept for logging
	cleanPattern  string // pattern without wildcards for prefix/suffix matching, the full glob otherwise
	matchType     exclusionMatchType
	matchBasename bool // match against the basename instead of the relative path
}

// makeExclusionSet analyzes and categorizes patterns to enable optimized matching later.
// Patterns are expected to be valid doublestar patterns; config validation rejects the rest.
func makeExclusionSet(patterns []string) exclusionSet {
	set := exclusionSet{
		literals:         make(map[string]struct{}),
		basenameLiterals: make(map[string]struct{}),
		nonLiterals:      make([]exclusion, 0, len(patterns)),
	}

	// Like .gitignore, a pattern without a separator matches anywhere in the tree.
	shouldMatchBasename := func(p string) bool { return !strings.Contains(p, "/") }

	for _, p := range patterns {
		p = normalizeExclusionPattern(p)
		if p == "" {
			continue
		}
		switch {
		case strings.ContainsAny(p, "*?[]{}"):
			rest := p[1:]
			head := p[:len(p)-1]
			if strings.HasSuffix(p, "*") && !strings.ContainsAny(head, "*?[]{}/") {
				// `~*` or `temp_*`
				set.nonLiterals = append(set.nonLiterals, exclusion{pattern: p, cleanPattern: head, matchType: prefixMatch, matchBasename: true})
			} else if strings.HasPrefix(p, "*") && !strings.ContainsAny(rest, "*?[]{}/") {
				// `*.log` or `*.tmp`
				set.nonLiterals = append(set.nonLiterals, exclusion{pattern: p, cleanPattern: rest, matchType: suffixMatch, matchBasename: true})
			} else {
				set.nonLiterals = append(set.nonLiterals, exclusion{pattern: p, cleanPattern: p, matchType: globMatch, matchBasename: shouldMatchBasename(p)})
			}
		case strings.HasSuffix(p, "/"):
			// `build/` excludes that directory and everything below it.
			set.nonLiterals = append(set.nonLiterals, exclusion{pattern: p, cleanPattern: strings.TrimSuffix(p, "/"), matchType: dirPrefixMatch})
		case shouldMatchBasename(p):
			set.basenameLiterals[p] = struct{}{}
		default:
			set.literals[p] = struct{}{}
		}
	}
	return set
}

// empty reports whether the set can never match.
func (es *exclusionSet) empty() bool {
	return len(es.literals) == 0 && len(es.basenameLiterals) == 0 && len(es.nonLiterals) == 0
}

// matches checks if a relative path (slash separated) or its basename matches any pattern.
func (es *exclusionSet) matches(relPath, basename string) bool {
	normalizedPath := normalizeExclusionPattern(relPath)
	normalizedBasename := normalizeExclusionPattern(basename)

	if _, ok := es.literals[normalizedPath]; ok {
		return true
	}
	if _, ok := es.basenameLiterals[normalizedBasename]; ok {
		return true
	}

	for _, p := range es.nonLiterals {
		pathToCheck := normalizedPath
		if p.matchBasename {
			pathToCheck = normalizedBasename
		}

		switch p.matchType {
		case prefixMatch:
			if strings.HasPrefix(pathToCheck, p.cleanPattern) {
				return true
			}
		case suffixMatch:
			if strings.HasSuffix(pathToCheck, p.cleanPattern) {
				return true
			}
		case dirPrefixMatch:
			// Avoid false positives such as "build-tools" for "build/".
			if pathToCheck == p.cleanPattern || strings.HasPrefix(pathToCheck, p.cleanPattern+"/") {
				return true
			}
		case globMatch:
			match, err := doublestar.Match(p.cleanPattern, pathToCheck)
			if err != nil {
				plog.Warn("Invalid exclusion pattern", "pattern", p.pattern, "error", err)
				continue
			}
			if match {
				return true
			}
		}
	}
	return false
}

// normalizeExclusionPattern converts a path or pattern into a standardized,
// case-insensitive key format (forward slashes, lowercase).
func normalizeExclusionPattern(p string) string {
	return strings.ToLower(util.NormalizePath(p))
}

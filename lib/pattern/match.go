// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"path"
	"strings"
)

// Match checks whether a "/"-separated subject matches a glob pattern:
//
//   - Exact match: "etc/hosts" matches only "etc/hosts"
//   - Single-segment wildcard: "etc/*" matches "etc/hosts" but not "etc/ssl/certs"
//   - Recursive wildcard: "etc/**" matches "etc/hosts", "etc/ssl/certs", etc.
//   - Universal: "**" matches anything
//   - Interior recursive: "etc/**/conf" matches "etc/conf", "etc/ssl/conf", etc.
//   - Character wildcards: "?" matches a single non-separator character
//
// The single-segment wildcard "*" does not cross "/" boundaries — the
// standard path.Match behavior. Use "**" to match across hierarchy
// boundaries.
//
// Malformed patterns (unmatched brackets, etc.) return false rather
// than propagating an error — a malformed pattern should never grant
// access.
func Match(p, subject string) bool {
	if p == "**" {
		return true
	}

	if !strings.Contains(p, "**") {
		matched, err := path.Match(p, subject)
		if err != nil {
			return false
		}
		return matched
	}

	if strings.HasSuffix(p, "/**") {
		prefix := p[:len(p)-3]
		if matchGlob(prefix, subject) {
			return true
		}
		return hasMatchingPrefix(prefix, subject)
	}

	if strings.HasPrefix(p, "**/") {
		suffix := p[3:]
		if matchGlob(suffix, subject) {
			return true
		}
		return hasMatchingSuffix(suffix, subject)
	}

	separatorIndex := strings.Index(p, "/**/")
	if separatorIndex >= 0 {
		prefix := p[:separatorIndex]
		suffix := p[separatorIndex+4:]

		if matchGlob(prefix+"/"+suffix, subject) {
			return true
		}

		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(subject, "/")

		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}

		prefixCandidate := strings.Join(segments[:prefixDepth], "/")
		if !matchGlob(prefix, prefixCandidate) {
			return false
		}

		suffixCandidate := strings.Join(segments[len(segments)-suffixDepth:], "/")
		if !matchGlob(suffix, suffixCandidate) {
			return false
		}

		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** segments or other complex patterns — not supported.
	return false
}

func matchGlob(p, s string) bool {
	matched, err := path.Match(p, s)
	return err == nil && matched
}

func hasMatchingPrefix(p, subject string) bool {
	depth := strings.Count(p, "/") + 1
	segments := strings.SplitN(subject, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[:depth], "/")
	return matchGlob(p, candidate)
}

func hasMatchingSuffix(p, subject string) bool {
	depth := strings.Count(p, "/") + 1
	segments := strings.Split(subject, "/")
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[len(segments)-depth:], "/")
	return matchGlob(p, candidate)
}

// MatchAny reports whether subject matches any of patterns. Returns
// false for an empty pattern list (default-deny).
func MatchAny(patterns []string, subject string) bool {
	for _, p := range patterns {
		if Match(p, subject) {
			return true
		}
	}
	return false
}

// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"exact match", "etc/hosts", "etc/hosts", true},
		{"exact mismatch", "etc/hosts", "etc/passwd", false},

		{"double star matches anything", "**", "etc/hosts", true},
		{"double star matches deeply nested", "**", "a/b/c/d", true},

		{"star matches single segment", "etc/*", "etc/hosts", true},
		{"star does not cross slash", "etc/*", "etc/ssl/certs", false},
		{"star in middle", "etc/*/conf", "etc/ssl/conf", true},
		{"star in middle too deep", "etc/*/conf", "etc/ssl/sub/conf", false},

		{"suffix doublestar matches child", "etc/**", "etc/hosts", true},
		{"suffix doublestar matches grandchild", "etc/**", "etc/ssl/certs", true},
		{"suffix doublestar matches exact prefix", "etc/**", "etc", true},
		{"suffix doublestar no match different prefix", "etc/**", "home/user", false},
		{"suffix doublestar no match partial prefix", "etc/**", "etcx/hosts", false},

		{"prefix doublestar matches child", "**/hosts", "etc/hosts", true},
		{"prefix doublestar matches exact", "**/hosts", "hosts", true},
		{"prefix doublestar no match", "**/hosts", "etc/passwd", false},

		{"interior doublestar zero segments", "etc/**/hosts", "etc/hosts", true},
		{"interior doublestar one segment", "etc/**/hosts", "etc/ssl/hosts", true},
		{"interior doublestar rejects empty segment", "etc/**/hosts", "etc//hosts", false},

		{"question mark single char", "file-?.txt", "file-1.txt", true},
		{"question mark no match multi char", "file-?.txt", "file-12.txt", false},

		{"malformed pattern denies", "[", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.pattern, tt.subject); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
			}
		})
	}
}

func TestMatchAnyDefaultDeny(t *testing.T) {
	if MatchAny(nil, "etc/hosts") {
		t.Error("MatchAny with empty pattern list should deny")
	}
	if !MatchAny([]string{"tmp/**", "etc/**"}, "etc/hosts") {
		t.Error("MatchAny should match against any pattern in the list")
	}
}

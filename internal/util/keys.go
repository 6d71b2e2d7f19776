package util

import "strings"

// Delimiter separates the namespace from the rest of a key.
const Delimiter = ":"

// Namespace returns the key segment before the first ':'.
// A key without a delimiter is its own namespace.
func Namespace(key string) string {
	if i := strings.Index(key, Delimiter); i >= 0 {
		return key[:i]
	}
	return key
}

// LiteralPrefix returns the leading part of a glob pattern that contains no
// metacharacters. Escaped characters are unescaped in the result.
func LiteralPrefix(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*', '?', '[':
			return b.String()
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// PatternNamespace returns the namespace a pattern is confined to, or ok=false
// when the namespace segment itself contains a glob (e.g. "trending*").
func PatternNamespace(pattern string) (ns string, ok bool) {
	lit := LiteralPrefix(pattern)
	i := strings.Index(lit, Delimiter)
	if i < 0 {
		if lit == pattern {
			return lit, true // exact key without delimiter
		}
		return "", false
	}
	return lit[:i], true
}

// EscapeGlob escapes glob metacharacters so s matches only itself, under
// Redis MATCH and under CompileGlob.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]{},\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '*', '?', '[', ']', '{', '}', ',', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

package util

import (
	"strings"

	"github.com/gobwas/glob"
)

// CompileGlob compiles a Redis MATCH pattern for in-process matching, so every
// provider agrees with SCAN on what a pattern selects. gobwas/glob reads
// "{a,b}" as alternation and negates classes with '!'; Redis treats braces
// and commas as plain bytes and negates with '^'.
func CompileGlob(pattern string) (glob.Glob, error) {
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			i++
			b.WriteByte(pattern[i])
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
			if i+1 < len(pattern) {
				switch pattern[i+1] {
				case '^':
					b.WriteByte('!')
					i++
				case '!':
					b.WriteString(`\!`)
					i++
				}
			}
		case c == '{', c == '}', c == ',':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return glob.Compile(b.String())
}

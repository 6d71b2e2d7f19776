package util

import "testing"

func TestNamespace(t *testing.T) {
	cases := map[string]string{
		"search:local:hobbit": "search",
		"bookData:b1":         "bookData",
		"trending":            "trending",
		":x":                  "",
	}
	for in, want := range cases {
		if got := Namespace(in); got != want {
			t.Fatalf("Namespace(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPatternNamespace(t *testing.T) {
	cases := []struct {
		pattern string
		ns      string
		ok      bool
	}{
		{"rankings:*", "rankings", true},
		{"user:42:*", "user", true},
		{"userStats:42", "userStats", true},
		{"trending*", "", false},
		{"activity:recent*", "activity", true},
		{"*", "", false},
		{"trending", "trending", true},
		{`a\*b:*`, "a*b", true},
	}
	for _, tc := range cases {
		ns, ok := PatternNamespace(tc.pattern)
		if ns != tc.ns || ok != tc.ok {
			t.Fatalf("PatternNamespace(%q)=(%q,%v) want (%q,%v)", tc.pattern, ns, ok, tc.ns, tc.ok)
		}
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := EscapeGlob("b1"); got != "b1" {
		t.Fatalf("plain id changed: %q", got)
	}
	if got := EscapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("escape: %q", got)
	}
	if got := LiteralPrefix(EscapeGlob("x*") + ":*"); got != "x*:" {
		t.Fatalf("escaped literal prefix: %q", got)
	}
}

func TestEscapeGlobBraces(t *testing.T) {
	if got := EscapeGlob("a{b,c}"); got != `a\{b\,c\}` {
		t.Fatalf("escape: %q", got)
	}
	if got := LiteralPrefix("book:" + EscapeGlob("a{b,c}") + ":*"); got != "book:a{b,c}:" {
		t.Fatalf("literal prefix: %q", got)
	}
}

func TestCompileGlobFollowsRedis(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"book:a{b,c}:*", "book:a{b,c}:meta", true},
		{"book:a{b,c}:*", "book:ab:meta", false},
		{"book:a{b,c}:*", "book:ac:meta", false},
		{"book:" + EscapeGlob("a{b,c}") + ":*", "book:a{b,c}:meta", true},
		{"book:" + EscapeGlob("a{b,c}") + ":*", "book:ab:meta", false},
		{"user:" + EscapeGlob("u*1") + ":*", "user:u21:x", false},
		{"user:[^a]1", "user:b1", true},
		{"user:[^a]1", "user:a1", false},
		{"user:[!a]1", "user:!1", true},
		{"user:[!a]1", "user:b1", false},
		{"user:[ab]1", "user:a1", true},
		{"trending*", "trendingBooks:week", true},
		{"rankings:?", "rankings:x", true},
	}
	for _, tc := range cases {
		g, err := CompileGlob(tc.pattern)
		if err != nil {
			t.Fatalf("CompileGlob(%q): %v", tc.pattern, err)
		}
		if got := g.Match(tc.key); got != tc.want {
			t.Fatalf("%q match %q = %v want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}

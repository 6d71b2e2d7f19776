package shelfcache

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/unkn0wn-root/shelfcache/internal/util"
)

// GenerateKey joins namespace and parts with ':'. Nil parts (including typed
// nil pointers) are dropped; non-nil pointers are dereferenced. Empty strings
// are kept, so callers decide whether "" is meaningful.
//
//	GenerateKey("x", "a", nil, "b") == "x:a:b"
func GenerateKey(namespace string, parts ...any) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		s, ok := keyPart(p)
		if !ok {
			continue
		}
		b.WriteString(util.Delimiter)
		b.WriteString(s)
	}
	return b.String()
}

func keyPart(p any) (string, bool) {
	switch v := p.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case fmt.Stringer:
		if isNilPointer(p) {
			return "", false
		}
		return v.String(), true
	}
	rv := reflect.ValueOf(p)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	return fmt.Sprint(rv.Interface()), true
}

func isNilPointer(p any) bool {
	rv := reflect.ValueOf(p)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

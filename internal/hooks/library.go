package hooks

import (
	"context"
	"strings"
)

// Library is the symbol table an extension exposes at load time.
// Values are Methods, plain funcs with the Method signature, or nested Libraries.
type Library map[string]any

// lookup walks a dotted path. found is false when any segment is missing;
// method is nil when the final symbol exists but cannot be called.
func (l Library) lookup(path string) (method Method, found bool) {
	var cur any = l
	for _, part := range strings.Split(path, ".") {
		var next any
		switch m := cur.(type) {
		case Library:
			next = m[part]
		case map[string]any:
			next = m[part]
		default:
			return nil, false
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	switch fn := cur.(type) {
	case Method:
		return fn, true
	case func(context.Context, any) (any, error):
		return Method(fn), true
	}
	return nil, true
}

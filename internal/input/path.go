package input

import (
	"strconv"
	"strings"
)

type component struct {
	literal string
	any     bool
	recurse bool
}

func (c component) matches(key string) bool {
	return c.any || c.literal == key
}

// Path selects values in a stream of JSON documents.
//
// Components are separated by dots. "*" matches any object key or array
// index, a literal matches a key or an index, and an empty component (as
// in "a..b") matches any number of levels. A leading "$" names the root,
// so "$" alone selects each root document.
type Path struct {
	components []component
	expr       string
}

// ParsePath compiles a path expression.
func ParsePath(expr string) Path {
	p := Path{expr: expr}
	parts := strings.Split(expr, ".")
	if len(parts) > 0 && parts[0] == "$" {
		parts = parts[1:]
		if len(parts) == 0 {
			return p
		}
	}
	for _, part := range parts {
		switch part {
		case "":
			if n := len(p.components); n > 0 && p.components[n-1].recurse {
				continue
			}
			p.components = append(p.components, component{recurse: true})
		case "*":
			p.components = append(p.components, component{any: true})
		default:
			p.components = append(p.components, component{literal: part})
		}
	}
	return p
}

// String returns the source expression.
func (p Path) String() string {
	return p.expr
}

// Match reports whether the value at keys is selected.
func (p Path) Match(keys []string) bool {
	return matchFull(p.components, keys)
}

// CanDescend reports whether some value below keys could be selected.
func (p Path) CanDescend(keys []string) bool {
	return prefixMatch(p.components, keys)
}

func matchFull(cs []component, keys []string) bool {
	if len(cs) == 0 {
		return len(keys) == 0
	}
	if cs[0].recurse {
		for i := 0; i <= len(keys); i++ {
			if matchFull(cs[1:], keys[i:]) {
				return true
			}
		}
		return false
	}
	if len(keys) == 0 {
		return false
	}
	return cs[0].matches(keys[0]) && matchFull(cs[1:], keys[1:])
}

func prefixMatch(cs []component, keys []string) bool {
	if len(keys) == 0 {
		return len(cs) > 0
	}
	if len(cs) == 0 {
		return false
	}
	if cs[0].recurse {
		return prefixMatch(cs[1:], keys) || prefixMatch(cs, keys[1:])
	}
	return cs[0].matches(keys[0]) && prefixMatch(cs[1:], keys[1:])
}

func indexKey(i int) string {
	return strconv.Itoa(i)
}

package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathMatch(t *testing.T) {
	tests := []struct {
		expr    string
		keys    []string
		match   bool
		descend bool
	}{
		{"*", nil, false, true},
		{"*", []string{"0"}, true, false},
		{"*", []string{"message"}, true, false},
		{"*.d", []string{"3"}, false, true},
		{"*.d", []string{"3", "d"}, true, false},
		{"*.d", []string{"3", "e"}, false, false},
		{"rows.*", []string{"rows"}, false, true},
		{"rows.*", []string{"cols"}, false, false},
		{"rows.1", []string{"rows", "1"}, true, false},
		{"rows.1", []string{"rows", "0"}, false, false},
		{"$", nil, true, false},
		{"$.*", []string{"a"}, true, false},
		{"a..id", []string{"a", "id"}, true, true},
		{"a..id", []string{"a", "x", "y", "id"}, true, true},
		{"a..id", []string{"a", "x"}, false, true},
		{"a..id", []string{"b"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p := ParsePath(tt.expr)
			assert.Equal(t, tt.match, p.Match(tt.keys), "match %v", tt.keys)
			assert.Equal(t, tt.descend, p.CanDescend(tt.keys), "descend %v", tt.keys)
		})
	}
}

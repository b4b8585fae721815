package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b  string
		trans bool
		want  int
	}{
		{"", "", false, 0},
		{"cat", "", false, 3},
		{"", "cat", false, 3},
		{"cat", "cat", false, 0},
		{"cat", "cut", false, 1},
		{"cat", "cats", false, 1},
		{"kitten", "sitting", false, 3},
		{"cat", "act", false, 2},
		{"cat", "act", true, 1},
		{"café", "cafe", false, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EditDistance(tt.a, tt.b, tt.trans), "%q vs %q", tt.a, tt.b)
	}
}
